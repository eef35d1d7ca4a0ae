package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/locktable"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	publishTimeout = 2 * time.Second
	// eventQueueSize bounds accepted-bid events waiting for the publisher.
	eventQueueSize = 1024
)

// ArbiterPolicy bounds how bids are accepted and how long a caller may wait.
type ArbiterPolicy struct {
	MinIncrement    decimal.Decimal
	LockWaitTimeout time.Duration
	TxnTimeout      time.Duration
}

func PolicyFromConfig(cfg config.ArbiterConfig) ArbiterPolicy {
	return ArbiterPolicy{
		MinIncrement:    cfg.MinIncrement,
		LockWaitTimeout: cfg.LockWaitTimeout,
		TxnTimeout:      cfg.TxnTimeout,
	}
}

// ArbiterStats is a point-in-time copy of the arbiter counters.
type ArbiterStats struct {
	Outcomes    map[string]int64
	LockHandles int
}

func (s ArbiterStats) Total() int64 {
	var n int64
	for _, c := range s.Outcomes {
		n += c
	}
	return n
}

// BidArbiter serializes bids per auction. Within one process the lock table
// orders contenders; across processes the non-waiting row lock taken inside
// the transaction does.
type BidArbiter struct {
	locks     *locktable.Table
	uow       domain.UnitOfWork
	policy    ArbiterPolicy
	publisher domain.EventPublisher
	log       logger.Logger
	now       func() time.Time
	counts    [domain.OutcomeError + 1]atomic.Int64

	// Events leave through a single dispatcher so a slow publisher never
	// delays a bid result and subscribers see them in commit order.
	queueMu sync.Mutex
	closed  bool
	queue   chan *domain.BidEvent
	drained chan struct{}
}

// NewBidArbiter returns an arbiter over uow. publisher may be nil.
func NewBidArbiter(
	locks *locktable.Table,
	uow domain.UnitOfWork,
	policy ArbiterPolicy,
	publisher domain.EventPublisher,
	log logger.Logger,
) *BidArbiter {
	a := &BidArbiter{
		locks:     locks,
		uow:       uow,
		policy:    policy,
		publisher: publisher,
		log:       log,
		now:       time.Now,
		drained:   make(chan struct{}),
	}
	if publisher == nil {
		close(a.drained)
		return a
	}
	a.queue = make(chan *domain.BidEvent, eventQueueSize)
	go a.dispatch()
	return a
}

// Close stops accepting events and waits until queued ones are published
// or ctx is done.
func (a *BidArbiter) Close(ctx context.Context) error {
	a.queueMu.Lock()
	if !a.closed {
		a.closed = true
		if a.queue != nil {
			close(a.queue)
		}
	}
	a.queueMu.Unlock()

	select {
	case <-a.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetClock replaces the time source used for open checks and bid timestamps.
func (a *BidArbiter) SetClock(now func() time.Time) {
	a.now = now
}

func (a *BidArbiter) Policy() ArbiterPolicy {
	return a.policy
}

func (a *BidArbiter) Stats() ArbiterStats {
	s := ArbiterStats{Outcomes: make(map[string]int64, len(a.counts)), LockHandles: a.locks.Len()}
	for i := range a.counts {
		s.Outcomes[domain.Outcome(i).String()] = a.counts[i].Load()
	}
	return s
}

// PlaceBid arbitrates one bid. It always returns within LockWaitTimeout plus
// TxnTimeout and never panics.
func (a *BidArbiter) PlaceBid(ctx context.Context, auctionID, userID int64, amount decimal.Decimal) domain.BidResult {
	result := a.arbitrate(ctx, auctionID, userID, amount)
	a.counts[result.Outcome].Add(1)

	switch result.Outcome {
	case domain.OutcomeAccepted:
		a.log.Info("Bid accepted", "auction_id", auctionID, "user_id", userID,
			"amount", domain.FormatMoney(amount), "bid_id", result.Bid.ID)
		a.enqueueAccepted(result.Bid)
	case domain.OutcomeError:
		a.log.Error("Bid failed", "auction_id", auctionID, "user_id", userID,
			"amount", domain.FormatMoney(amount), "reason", result.Reason)
	default:
		a.log.Debug("Bid rejected", "auction_id", auctionID, "user_id", userID,
			"amount", domain.FormatMoney(amount), "outcome", result.Outcome.String(), "reason", result.Reason)
	}
	return result
}

func (a *BidArbiter) arbitrate(ctx context.Context, auctionID, userID int64, amount decimal.Decimal) (result domain.BidResult) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Recovered panic in bid arbitration", "auction_id", auctionID, "panic", r)
			result = domain.BidResult{Outcome: domain.OutcomeError, Reason: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if err := domain.ValidateAmount(amount); err != nil {
		return domain.BidResult{Outcome: domain.OutcomeTooLow, Reason: err.Error()}
	}

	handle := a.locks.AcquireFor(auctionID)
	lockCtx, cancel := context.WithTimeout(ctx, a.policy.LockWaitTimeout)
	err := handle.Lock(lockCtx)
	cancel()
	if err != nil {
		return domain.BidResult{
			Outcome: domain.OutcomeBusy,
			Reason:  fmt.Errorf("auction %d: %w", auctionID, domain.ErrLockTimeout).Error(),
		}
	}
	defer handle.Unlock()

	var res domain.BidResult
	err = a.uow.InTx(ctx, a.policy.TxnTimeout, func(ctx context.Context, tx domain.TxScope) error {
		snap, err := tx.Auctions.GetCurrentPriceForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		res.CurrentPrice = snap.CurrentPrice

		now := a.now().UTC().Truncate(time.Microsecond)
		if !snap.IsOpen(now) {
			return fmt.Errorf("auction %d: %w", auctionID, domain.ErrAuctionClosed)
		}

		res.MinimumBid = snap.CurrentPrice.Add(a.policy.MinIncrement)
		if amount.LessThan(res.MinimumBid) {
			return domain.ErrBidTooLow
		}

		at := now
		if snap.LastBidAt != nil && !at.After(*snap.LastBidAt) {
			at = snap.LastBidAt.UTC().Add(time.Microsecond)
		}
		bid := &domain.Bid{
			ID:        utils.GenerateID("bid"),
			AuctionID: auctionID,
			BidderID:  userID,
			Amount:    amount,
			PlacedAt:  at,
		}
		if err := tx.Auctions.SetCurrentPrice(ctx, auctionID, amount, userID, at); err != nil {
			return err
		}
		if err := tx.Ledger.Append(ctx, bid); err != nil {
			return err
		}
		res.Bid = bid
		return nil
	})

	res.Outcome, res.Reason = classify(auctionID, err, res)
	if res.Outcome != domain.OutcomeAccepted {
		res.Bid = nil
	}
	return res
}

func classify(auctionID int64, err error, res domain.BidResult) (domain.Outcome, string) {
	switch {
	case err == nil:
		return domain.OutcomeAccepted, "bid accepted"
	case errors.Is(err, domain.ErrAuctionNotFound):
		return domain.OutcomeNotFound, fmt.Sprintf("auction %d not found", auctionID)
	case errors.Is(err, domain.ErrAuctionClosed):
		return domain.OutcomeClosed, fmt.Sprintf("auction %d is closed", auctionID)
	case errors.Is(err, domain.ErrBidTooLow):
		return domain.OutcomeTooLow, fmt.Sprintf("bid must be at least %s (current price %s)",
			domain.FormatMoney(res.MinimumBid), domain.FormatMoney(res.CurrentPrice))
	case errors.Is(err, domain.ErrRowLocked),
		errors.Is(err, domain.ErrTxnTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.OutcomeBusy, err.Error()
	default:
		return domain.OutcomeError, err.Error()
	}
}

func (a *BidArbiter) enqueueAccepted(bid *domain.Bid) {
	if a.publisher == nil {
		return
	}
	event := &domain.BidEvent{
		Type:      domain.BidAccepted,
		AuctionID: bid.AuctionID,
		UserID:    bid.BidderID,
		BidID:     bid.ID,
		Amount:    bid.Amount,
		Timestamp: bid.PlacedAt,
	}

	a.queueMu.Lock()
	defer a.queueMu.Unlock()
	if a.closed {
		a.log.Warn("Arbiter closed, dropping bid event", "auction_id", bid.AuctionID, "bid_id", bid.ID)
		return
	}
	select {
	case a.queue <- event:
	default:
		a.log.Warn("Event queue full, dropping bid event", "auction_id", bid.AuctionID, "bid_id", bid.ID)
	}
}

func (a *BidArbiter) dispatch() {
	defer close(a.drained)
	for event := range a.queue {
		a.publish(event)
	}
}

func (a *BidArbiter) publish(event *domain.BidEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := a.publisher.PublishBidEvent(ctx, event); err != nil {
		a.log.Warn("Failed to publish bid event", "auction_id", event.AuctionID, "bid_id", event.BidID, "error", err)
	}
}
