package domain

//go:generate mockgen -destination=mocks/mock_domain.go -package=mocks auction-marketplace/internal/domain EventPublisher,PriceCache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID int64) (*AuctionDetails, error)
	ListActiveAuctions(ctx context.Context, now time.Time) ([]*AuctionDetails, error)
}

type BidRepository interface {
	ListBids(ctx context.Context, auctionID int64) ([]*Bid, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]*Category, error)
	CategoryExists(ctx context.Context, categoryID int64) (bool, error)
}

// AuctionTxStore is the auction side of a bid transaction. Both methods must
// be called through the TxScope handed out by UnitOfWork.InTx.
type AuctionTxStore interface {
	// GetCurrentPriceForUpdate reads the auction row under an exclusive row
	// lock without waiting for it. Returns ErrAuctionNotFound or ErrRowLocked.
	GetCurrentPriceForUpdate(ctx context.Context, auctionID int64) (*PriceSnapshot, error)
	SetCurrentPrice(ctx context.Context, auctionID int64, amount decimal.Decimal, winnerID int64, at time.Time) error
}

// BidLedger is the append-only history of accepted bids.
type BidLedger interface {
	Append(ctx context.Context, bid *Bid) error
}

// TxScope groups the stores that share one ambient transaction.
type TxScope struct {
	Auctions AuctionTxStore
	Ledger   BidLedger
}

// UnitOfWork runs fn inside a single transaction bounded by timeout. The
// transaction commits if fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, scope TxScope) error) error
}

// BidPlacer is the caller-facing arbitration operation.
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, userID int64, amount decimal.Decimal) BidResult
}

// Cache interfaces
type PriceCache interface {
	SetPrice(ctx context.Context, price *CachedPrice) error
	GetPrice(ctx context.Context, auctionID int64) (*CachedPrice, error)
}

// Event interfaces
type EventPublisher interface {
	PublishBidEvent(ctx context.Context, event *BidEvent) error
}

type EventSubscriber interface {
	SubscribeToBidEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *BidEvent) error

// Leadership elects the single instance that runs cluster-wide jobs.
type Leadership interface {
	AcquireLeadership(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Notification interfaces
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int64, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID int64, message interface{}) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() int64
	AuctionID() int64
}

type ConnectionManager interface {
	RegisterConnection(conn WebSocketConnection) error
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForAuction(auctionID int64) []WebSocketConnection
	GetConnectionsForUser(userID int64) []WebSocketConnection
	BroadcastToAuction(auctionID int64, message interface{}) error
	NotifyUser(userID int64, message interface{}) error
}
