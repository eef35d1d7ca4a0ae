package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places carried by every monetary amount.
const MoneyPlaces int32 = 2

// DefaultCategoryID is the seeded "Uncategorized" category.
const DefaultCategoryID int64 = 1

type Auction struct {
	ID            int64
	OwnerID       int64
	ItemName      string
	CategoryID    int64
	ImageURL      string
	StartingPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	WinnerID      *int64
	Status        AuctionStatus
	EndTime       time.Time
	LastBidAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOpen reports whether bids may still be placed at instant now.
func (a *Auction) IsOpen(now time.Time) bool {
	return a.Status == AuctionActive && now.Before(a.EndTime)
}

type AuctionStatus string

const (
	AuctionActive AuctionStatus = "active"
	AuctionClosed AuctionStatus = "closed"
)

func (s AuctionStatus) String() string {
	return string(s)
}

// AuctionDetails is the listing view of an auction.
type AuctionDetails struct {
	Auction
	CategoryName string
	BidCount     int
}

// Momentum labels how far the price has moved from the starting price.
func (d *AuctionDetails) Momentum() string {
	start := d.StartingPrice
	switch {
	case d.CurrentPrice.GreaterThan(start.Mul(decimal.NewFromFloat(1.5))):
		return "excellent"
	case d.CurrentPrice.GreaterThan(start.Mul(decimal.NewFromFloat(1.25))):
		return "good"
	case d.CurrentPrice.GreaterThan(start.Mul(decimal.NewFromFloat(1.1))):
		return "fair"
	default:
		return "new"
	}
}

// PriceSnapshot is the row-locked view of an auction read inside a bid transaction.
type PriceSnapshot struct {
	AuctionID    int64
	CurrentPrice decimal.Decimal
	Status       AuctionStatus
	EndTime      time.Time
	LastBidAt    *time.Time
}

func (p *PriceSnapshot) IsOpen(now time.Time) bool {
	return p.Status == AuctionActive && now.Before(p.EndTime)
}

// Bid is an accepted bid. Ledger rows are never updated or deleted.
type Bid struct {
	ID        string
	AuctionID int64
	BidderID  int64
	Amount    decimal.Decimal
	PlacedAt  time.Time
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Category struct {
	ID   int64
	Name string
}

type BidEvent struct {
	Type      BidEventType    `json:"type"`
	AuctionID int64           `json:"auction_id"`
	UserID    int64           `json:"user_id"`
	BidID     string          `json:"bid_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type BidEventType string

const (
	BidAccepted BidEventType = "bid_accepted"
)

// CachedPrice is the last accepted price of an auction as seen by the cache.
type CachedPrice struct {
	AuctionID    int64
	CurrentPrice decimal.Decimal
	WinnerID     int64
	LastUpdated  time.Time
}
