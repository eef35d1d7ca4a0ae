// Package dto holds the JSON shapes shared by the REST and websocket APIs.
package dto

import (
	"time"

	"auction-marketplace/internal/domain"
)

type BidResultResponse struct {
	Type         string     `json:"type,omitempty"`
	AuctionID    int64      `json:"auction_id"`
	Outcome      string     `json:"outcome"`
	Reason       string     `json:"reason"`
	Retryable    bool       `json:"retryable"`
	BidID        string     `json:"bid_id,omitempty"`
	Amount       string     `json:"amount,omitempty"`
	CurrentPrice string     `json:"current_price,omitempty"`
	MinimumBid   string     `json:"minimum_bid,omitempty"`
	PlacedAt     *time.Time `json:"placed_at,omitempty"`
}

func NewBidResultResponse(auctionID int64, res domain.BidResult) BidResultResponse {
	out := BidResultResponse{
		AuctionID: auctionID,
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason,
		Retryable: res.Outcome.Retryable(),
	}
	// storage failures are logged by the arbiter, clients only see the outcome
	if res.Outcome == domain.OutcomeError {
		out.Reason = "internal error"
	}
	if res.Bid != nil {
		at := res.Bid.PlacedAt
		out.BidID = res.Bid.ID
		out.Amount = domain.FormatMoney(res.Bid.Amount)
		out.CurrentPrice = out.Amount
		out.PlacedAt = &at
		return out
	}
	if !res.CurrentPrice.IsZero() {
		out.CurrentPrice = domain.FormatMoney(res.CurrentPrice)
	}
	if !res.MinimumBid.IsZero() {
		out.MinimumBid = domain.FormatMoney(res.MinimumBid)
	}
	return out
}

type AuctionResponse struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	ItemName      string     `json:"item_name"`
	CategoryID    int64      `json:"category_id"`
	CategoryName  string     `json:"category_name"`
	ImageURL      string     `json:"image_url,omitempty"`
	StartingPrice string     `json:"starting_price"`
	CurrentPrice  string     `json:"current_price"`
	WinnerID      *int64     `json:"winner_id,omitempty"`
	Status        string     `json:"status"`
	EndTime       time.Time  `json:"end_time"`
	LastBidAt     *time.Time `json:"last_bid_at,omitempty"`
	BidCount      int        `json:"bid_count"`
	Momentum      string     `json:"momentum"`
}

func NewAuctionResponse(a *domain.AuctionDetails) AuctionResponse {
	return AuctionResponse{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		ItemName:      a.ItemName,
		CategoryID:    a.CategoryID,
		CategoryName:  a.CategoryName,
		ImageURL:      a.ImageURL,
		StartingPrice: domain.FormatMoney(a.StartingPrice),
		CurrentPrice:  domain.FormatMoney(a.CurrentPrice),
		WinnerID:      a.WinnerID,
		Status:        a.Status.String(),
		EndTime:       a.EndTime,
		LastBidAt:     a.LastBidAt,
		BidCount:      a.BidCount,
		Momentum:      a.Momentum(),
	}
}

func NewAuctionList(list []*domain.AuctionDetails) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(list))
	for _, a := range list {
		out = append(out, NewAuctionResponse(a))
	}
	return out
}

type BidResponse struct {
	ID        string    `json:"id"`
	AuctionID int64     `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    string    `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

func NewBidList(bids []*domain.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, BidResponse{
			ID:        b.ID,
			AuctionID: b.AuctionID,
			BidderID:  b.BidderID,
			Amount:    domain.FormatMoney(b.Amount),
			PlacedAt:  b.PlacedAt,
		})
	}
	return out
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type SessionResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type CategoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func NewCategoryList(cats []*domain.Category) []CategoryResponse {
	out := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryResponse{ID: c.ID, Name: c.Name})
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
}
