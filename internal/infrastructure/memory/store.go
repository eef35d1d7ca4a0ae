// Package memory is a process-local implementation of the storage interfaces.
// It backs the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-marketplace/internal/domain"

	"github.com/shopspring/decimal"
)

// Faults lets tests inject failures into a bid transaction.
type Faults struct {
	// AfterLock runs once the row lock is taken in GetCurrentPriceForUpdate.
	AfterLock func(ctx context.Context, auctionID int64) error
	// BeforeCommit runs after fn succeeded and before writes are applied.
	BeforeCommit func(ctx context.Context) error
}

type Store struct {
	mu         sync.RWMutex
	auctions   map[int64]*domain.Auction
	bids       map[int64][]*domain.Bid
	users      map[int64]*domain.User
	usernames  map[string]int64
	categories map[int64]*domain.Category

	nextAuctionID int64
	nextUserID    int64

	rowLocks sync.Map // int64 -> *sync.Mutex

	faultsMu sync.RWMutex
	faults   Faults
}

func NewStore() *Store {
	return &Store{
		auctions:   make(map[int64]*domain.Auction),
		bids:       make(map[int64][]*domain.Bid),
		users:      make(map[int64]*domain.User),
		usernames:  make(map[string]int64),
		categories: map[int64]*domain.Category{domain.DefaultCategoryID: {ID: domain.DefaultCategoryID, Name: "Uncategorized"}},
	}
}

func (s *Store) SetFaults(f Faults) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults = f
}

func (s *Store) getFaults() Faults {
	s.faultsMu.RLock()
	defer s.faultsMu.RUnlock()
	return s.faults
}

// AddCategory registers a category; the SQL stores seed theirs in the schema.
func (s *Store) AddCategory(c *domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.categories[c.ID] = &cp
}

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuctionID++
	auction.ID = s.nextAuctionID
	cp := *auction
	s.auctions[cp.ID] = &cp
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID int64) (*domain.AuctionDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return s.details(a), nil
}

func (s *Store) ListActiveAuctions(ctx context.Context, now time.Time) ([]*domain.AuctionDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AuctionDetails
	for _, a := range s.auctions {
		if a.IsOpen(now) {
			out = append(out, s.details(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out, nil
}

// details must be called with s.mu held.
func (s *Store) details(a *domain.Auction) *domain.AuctionDetails {
	d := &domain.AuctionDetails{Auction: *a, BidCount: len(s.bids[a.ID]), CategoryName: "Uncategorized"}
	if c, ok := s.categories[a.CategoryID]; ok {
		d.CategoryName = c.Name
	}
	return d
}

func (s *Store) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Bid, 0, len(s.bids[auctionID]))
	for _, b := range s.bids[auctionID] {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[user.Username]; ok {
		return fmt.Errorf("user %q: %w", user.Username, domain.ErrUserExists)
	}
	s.nextUserID++
	user.ID = s.nextUserID
	cp := *user
	s.users[cp.ID] = &cp
	s.usernames[cp.Username] = cp.ID
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrUserNotFound)
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.categories[categoryID]
	return ok, nil
}

func (s *Store) rowLock(auctionID int64) *sync.Mutex {
	m, _ := s.rowLocks.LoadOrStore(auctionID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// InTx buffers writes and applies them atomically on commit. Row locks are
// taken with TryLock so a second transaction on the same auction fails with
// ErrRowLocked instead of waiting.
func (s *Store) InTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, scope domain.TxScope) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx := &memTx{store: s, locked: make(map[int64]*sync.Mutex), prices: make(map[int64]priceWrite)}
	defer tx.release()

	if err := fn(ctx, domain.TxScope{Auctions: tx, Ledger: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return timeoutErr(err)
	}
	if hook := s.getFaults().BeforeCommit; hook != nil {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return tx.commit()
}

func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTxnTimeout, err)
	}
	return err
}

type priceWrite struct {
	amount   decimal.Decimal
	winnerID int64
	at       time.Time
}

type memTx struct {
	store   *Store
	locked  map[int64]*sync.Mutex
	prices  map[int64]priceWrite
	appends []*domain.Bid
}

func (t *memTx) GetCurrentPriceForUpdate(ctx context.Context, auctionID int64) (*domain.PriceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, timeoutErr(err)
	}

	t.store.mu.RLock()
	a, ok := t.store.auctions[auctionID]
	t.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}

	if _, held := t.locked[auctionID]; !held {
		m := t.store.rowLock(auctionID)
		if !m.TryLock() {
			return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrRowLocked)
		}
		t.locked[auctionID] = m
	}

	if hook := t.store.getFaults().AfterLock; hook != nil {
		if err := hook(ctx, auctionID); err != nil {
			return nil, timeoutErr(err)
		}
	}

	t.store.mu.RLock()
	snap := &domain.PriceSnapshot{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		Status:       a.Status,
		EndTime:      a.EndTime,
	}
	if a.LastBidAt != nil {
		at := *a.LastBidAt
		snap.LastBidAt = &at
	}
	t.store.mu.RUnlock()

	if w, ok := t.prices[auctionID]; ok {
		snap.CurrentPrice = w.amount
		at := w.at
		snap.LastBidAt = &at
	}
	return snap, nil
}

func (t *memTx) SetCurrentPrice(ctx context.Context, auctionID int64, amount decimal.Decimal, winnerID int64, at time.Time) error {
	if _, held := t.locked[auctionID]; !held {
		return fmt.Errorf("set current price of auction %d: row not locked", auctionID)
	}
	t.prices[auctionID] = priceWrite{amount: amount, winnerID: winnerID, at: at}
	return nil
}

func (t *memTx) Append(ctx context.Context, bid *domain.Bid) error {
	cp := *bid
	t.appends = append(t.appends, &cp)
	return nil
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.prices {
		if _, ok := s.auctions[id]; !ok {
			return fmt.Errorf("set current price of auction %d: %w", id, domain.ErrAuctionNotFound)
		}
	}
	for id, w := range t.prices {
		a := s.auctions[id]
		winner := w.winnerID
		at := w.at
		a.CurrentPrice = w.amount
		a.WinnerID = &winner
		a.LastBidAt = &at
		a.UpdatedAt = at
	}
	for _, b := range t.appends {
		s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b)
	}
	return nil
}

func (t *memTx) release() {
	for _, m := range t.locked {
		m.Unlock()
	}
}
