package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	// DefaultListingDuration applies when a listing names no end time.
	DefaultListingDuration = 7 * 24 * time.Hour
	// MaxListingDuration is the latest end time a listing may ask for.
	MaxListingDuration = 365 * 24 * time.Hour
)

// ListingDuration converts a client supplied number of hours, rejecting
// values that are not positive or exceed MaxListingDuration.
func ListingDuration(hours float64) (time.Duration, error) {
	if !(hours > 0) || hours > MaxListingDuration.Hours() {
		return 0, fmt.Errorf("%w: duration must be between 0 and %.0f hours", domain.ErrInvalidListing, MaxListingDuration.Hours())
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

type ListingRequest struct {
	OwnerID       int64
	ItemName      string
	StartingPrice decimal.Decimal
	EndTime       time.Time
	CategoryID    int64
	ImageURL      string
}

// ListingService creates auctions and serves the read side of the marketplace.
type ListingService struct {
	auctions   domain.AuctionRepository
	bids       domain.BidRepository
	categories domain.CategoryRepository
	log        logger.Logger
	now        func() time.Time
}

func NewListingService(
	auctions domain.AuctionRepository,
	bids domain.BidRepository,
	categories domain.CategoryRepository,
	log logger.Logger,
) *ListingService {
	return &ListingService{
		auctions:   auctions,
		bids:       bids,
		categories: categories,
		log:        log,
		now:        time.Now,
	}
}

func (s *ListingService) CreateListing(ctx context.Context, req ListingRequest) (*domain.AuctionDetails, error) {
	now := s.now()

	name := strings.TrimSpace(req.ItemName)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", domain.ErrInvalidListing)
	}
	if err := domain.ValidateAmount(req.StartingPrice); err != nil {
		return nil, fmt.Errorf("%w: starting price: %v", domain.ErrInvalidListing, err)
	}

	end := req.EndTime
	if end.IsZero() {
		end = now.Add(DefaultListingDuration)
	}
	if !end.After(now) {
		return nil, fmt.Errorf("%w: end time must be in the future", domain.ErrInvalidListing)
	}
	if end.After(now.Add(MaxListingDuration)) {
		return nil, fmt.Errorf("%w: end time is more than %s away", domain.ErrInvalidListing, MaxListingDuration)
	}

	if req.ImageURL != "" {
		u, err := url.Parse(req.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: image url must be an absolute http(s) url", domain.ErrInvalidListing)
		}
	}

	categoryID := req.CategoryID
	if categoryID == 0 {
		categoryID = domain.DefaultCategoryID
	}
	ok, err := s.categories.CategoryExists(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("category %d: %w", categoryID, domain.ErrCategoryUnknown)
	}

	auction := &domain.Auction{
		OwnerID:       req.OwnerID,
		ItemName:      name,
		CategoryID:    categoryID,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		CurrentPrice:  req.StartingPrice,
		Status:        domain.AuctionActive,
		EndTime:       end,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.auctions.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	s.log.Info("Auction created", "auction_id", auction.ID, "owner_id", req.OwnerID,
		"starting_price", domain.FormatMoney(req.StartingPrice), "end_time", end)
	return s.auctions.GetAuction(ctx, auction.ID)
}

func (s *ListingService) GetAuction(ctx context.Context, auctionID int64) (*domain.AuctionDetails, error) {
	return s.auctions.GetAuction(ctx, auctionID)
}

func (s *ListingService) ListActive(ctx context.Context) ([]*domain.AuctionDetails, error) {
	return s.auctions.ListActiveAuctions(ctx, s.now())
}

// BidHistory returns the accepted bids of an existing auction, oldest first.
func (s *ListingService) BidHistory(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	if _, err := s.auctions.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bids.ListBids(ctx, auctionID)
}

func (s *ListingService) Categories(ctx context.Context) ([]*domain.Category, error) {
	return s.categories.ListCategories(ctx)
}
