package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/domain/mocks"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/internal/locktable"
	"auction-marketplace/pkg/logger"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testPolicy() ArbiterPolicy {
	return ArbiterPolicy{
		MinIncrement:    decimal.NewFromInt(10),
		LockWaitTimeout: 200 * time.Millisecond,
		TxnTimeout:      time.Second,
	}
}

type arbiterFixture struct {
	store   *memory.Store
	locks   *locktable.Table
	arbiter *BidArbiter
}

func newArbiterFixture(t *testing.T, policy ArbiterPolicy, publisher domain.EventPublisher) *arbiterFixture {
	t.Helper()
	store := memory.NewStore()
	locks := locktable.New()
	return &arbiterFixture{
		store:   store,
		locks:   locks,
		arbiter: NewBidArbiter(locks, store, policy, publisher, logger.NewNop()),
	}
}

func (f *arbiterFixture) addAuction(t *testing.T, price string, end time.Time) int64 {
	t.Helper()
	p := decimal.RequireFromString(price)
	a := &domain.Auction{
		OwnerID:       1,
		ItemName:      "painting",
		CategoryID:    domain.DefaultCategoryID,
		StartingPrice: p,
		CurrentPrice:  p,
		Status:        domain.AuctionActive,
		EndTime:       end,
	}
	require.NoError(t, f.store.CreateAuction(context.Background(), a))
	return a.ID
}

func (f *arbiterFixture) price(t *testing.T, auctionID int64) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return a.CurrentPrice
}

func (f *arbiterFixture) ledger(t *testing.T, auctionID int64) []*domain.Bid {
	t.Helper()
	bids, err := f.store.ListBids(context.Background(), auctionID)
	require.NoError(t, err)
	return bids
}

func (f *arbiterFixture) assertUnlocked(t *testing.T, auctionID int64) {
	t.Helper()
	h := f.locks.AcquireFor(auctionID)
	require.True(t, h.TryLock(), "lock for auction %d still held", auctionID)
	h.Unlock()
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlaceBid_Scenario(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	res := f.arbiter.PlaceBid(ctx, id, 2, amt("105.00"))
	assert.Equal(t, domain.OutcomeTooLow, res.Outcome)
	assert.Equal(t, "110.00", res.MinimumBid.StringFixed(2))
	assert.Equal(t, "100.00", res.CurrentPrice.StringFixed(2))
	assert.Nil(t, res.Bid)

	res = f.arbiter.PlaceBid(ctx, id, 2, amt("110.00"))
	require.Equal(t, domain.OutcomeAccepted, res.Outcome, res.Reason)
	require.NotNil(t, res.Bid)
	assert.Equal(t, int64(2), res.Bid.BidderID)
	assert.True(t, f.price(t, id).Equal(amt("110")))

	var g errgroup.Group
	results := make([]domain.BidResult, 2)
	for i := range results {
		i := i
		g.Go(func() error {
			results[i] = f.arbiter.PlaceBid(ctx, id, int64(3+i), amt("120.00"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	accepted := 0
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeAccepted:
			accepted++
		case domain.OutcomeTooLow, domain.OutcomeBusy:
		default:
			t.Fatalf("unexpected outcome %s: %s", r.Outcome, r.Reason)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.True(t, f.price(t, id).Equal(amt("120")))

	res = f.arbiter.PlaceBid(ctx, 999, 2, amt("500.00"))
	assert.Equal(t, domain.OutcomeNotFound, res.Outcome)

	assert.Len(t, f.ledger(t, id), 2)
}

func TestPlaceBid_IncrementBoundary(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		outcome domain.Outcome
	}{
		{name: "one cent short", amount: "109.99", outcome: domain.OutcomeTooLow},
		{name: "exactly minimum", amount: "110.00", outcome: domain.OutcomeAccepted},
		{name: "above minimum", amount: "150.50", outcome: domain.OutcomeAccepted},
		{name: "equal to current", amount: "100.00", outcome: domain.OutcomeTooLow},
		{name: "below current", amount: "50.00", outcome: domain.OutcomeTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newArbiterFixture(t, testPolicy(), nil)
			id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

			res := f.arbiter.PlaceBid(context.Background(), id, 5, amt(tt.amount))
			assert.Equal(t, tt.outcome, res.Outcome, res.Reason)

			want := 0
			if tt.outcome == domain.OutcomeAccepted {
				want = 1
			}
			assert.Len(t, f.ledger(t, id), want)
		})
	}
}

func TestPlaceBid_InvalidAmount(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	for _, a := range []string{"0", "-120", "120.001"} {
		res := f.arbiter.PlaceBid(context.Background(), id, 5, amt(a))
		assert.Equal(t, domain.OutcomeTooLow, res.Outcome, a)
		assert.Contains(t, res.Reason, domain.ErrInvalidAmount.Error())
	}
	assert.Empty(t, f.ledger(t, id))
	assert.True(t, f.price(t, id).Equal(amt("100")))
}

func TestPlaceBid_Closed(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()

	expired := f.addAuction(t, "100.00", time.Now().Add(-time.Second))
	res := f.arbiter.PlaceBid(ctx, expired, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeClosed, res.Outcome)
	assert.False(t, res.Outcome.Retryable())

	// end time is exclusive
	end := time.Now().Add(time.Hour).Truncate(time.Microsecond)
	open := f.addAuction(t, "100.00", end)
	f.arbiter.SetClock(func() time.Time { return end })
	res = f.arbiter.PlaceBid(ctx, open, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeClosed, res.Outcome)

	f.arbiter.SetClock(func() time.Time { return end.Add(-time.Millisecond) })
	res = f.arbiter.PlaceBid(ctx, open, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeAccepted, res.Outcome)
}

func TestPlaceBid_NoDoubleWin(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	const bidders = 50
	results := make([]domain.BidResult, bidders)
	var g errgroup.Group
	for i := 0; i < bidders; i++ {
		i := i
		g.Go(func() error {
			results[i] = f.arbiter.PlaceBid(ctx, id, int64(100+i), amt("110.00"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	counts := map[domain.Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	assert.Equal(t, 1, counts[domain.OutcomeAccepted])
	assert.Equal(t, bidders-1, counts[domain.OutcomeTooLow]+counts[domain.OutcomeBusy])
	assert.Len(t, f.ledger(t, id), 1)
	assert.True(t, f.price(t, id).Equal(amt("110")))
	f.assertUnlocked(t, id)
}

func TestPlaceBid_Monotonic(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	var (
		mu       sync.Mutex
		accepted []decimal.Decimal
	)
	var g errgroup.Group
	for i := 1; i <= 40; i++ {
		bid := decimal.NewFromInt(int64(100 + 10*i))
		user := int64(i)
		g.Go(func() error {
			res := f.arbiter.PlaceBid(ctx, id, user, bid)
			if res.Accepted() {
				mu.Lock()
				accepted = append(accepted, bid)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ledger := f.ledger(t, id)
	require.Len(t, ledger, len(accepted))
	require.NotEmpty(t, ledger)
	for i := 1; i < len(ledger); i++ {
		assert.True(t, ledger[i].Amount.GreaterThan(ledger[i-1].Amount), "ledger amounts must increase")
		assert.True(t, ledger[i].PlacedAt.After(ledger[i-1].PlacedAt), "ledger timestamps must increase")
	}
	assert.True(t, f.price(t, id).Equal(ledger[len(ledger)-1].Amount))
}

func TestPlaceBid_StrictTimestampsWithFrozenClock(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.arbiter.SetClock(func() time.Time { return frozen })
	id := f.addAuction(t, "100.00", frozen.Add(time.Hour))

	for _, a := range []string{"110", "120", "130"} {
		require.True(t, f.arbiter.PlaceBid(context.Background(), id, 1, amt(a)).Accepted())
	}
	ledger := f.ledger(t, id)
	require.Len(t, ledger, 3)
	assert.True(t, ledger[0].PlacedAt.Equal(frozen))
	assert.True(t, ledger[1].PlacedAt.After(ledger[0].PlacedAt))
	assert.True(t, ledger[2].PlacedAt.After(ledger[1].PlacedAt))
}

func TestPlaceBid_BusyOnLockTimeout(t *testing.T) {
	policy := testPolicy()
	policy.LockWaitTimeout = 20 * time.Millisecond
	f := newArbiterFixture(t, policy, nil)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	h := f.locks.AcquireFor(id)
	require.NoError(t, h.Lock(context.Background()))

	start := time.Now()
	res := f.arbiter.PlaceBid(context.Background(), id, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeBusy, res.Outcome)
	assert.True(t, res.Outcome.Retryable())
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, f.ledger(t, id))

	h.Unlock()
	assert.True(t, f.arbiter.PlaceBid(context.Background(), id, 5, amt("200.00")).Accepted())
}

func TestPlaceBid_BusyOnRowLock(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	// another process holds the row inside its own transaction
	err := f.store.InTx(ctx, time.Second, func(ctx context.Context, tx domain.TxScope) error {
		if _, err := tx.Auctions.GetCurrentPriceForUpdate(ctx, id); err != nil {
			return err
		}
		res := f.arbiter.PlaceBid(ctx, id, 5, amt("200.00"))
		assert.Equal(t, domain.OutcomeBusy, res.Outcome, res.Reason)
		return nil
	})
	require.NoError(t, err)

	f.assertUnlocked(t, id)
	assert.Empty(t, f.ledger(t, id))
}

func TestPlaceBid_BusyOnTxnTimeout(t *testing.T) {
	policy := testPolicy()
	policy.TxnTimeout = 20 * time.Millisecond
	f := newArbiterFixture(t, policy, nil)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	f.store.SetFaults(memory.Faults{AfterLock: func(ctx context.Context, _ int64) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	res := f.arbiter.PlaceBid(context.Background(), id, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeBusy, res.Outcome, res.Reason)
	f.assertUnlocked(t, id)
	assert.True(t, f.price(t, id).Equal(amt("100")))
}

func TestPlaceBid_ErrorOnCommitFailure(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	f.store.SetFaults(memory.Faults{BeforeCommit: func(context.Context) error {
		return errors.New("disk full")
	}})

	res := f.arbiter.PlaceBid(context.Background(), id, 5, amt("200.00"))
	assert.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Contains(t, res.Reason, "disk full")
	assert.Nil(t, res.Bid)
	f.assertUnlocked(t, id)
	assert.True(t, f.price(t, id).Equal(amt("100")))
	assert.Empty(t, f.ledger(t, id))

	f.store.SetFaults(memory.Faults{})
	assert.True(t, f.arbiter.PlaceBid(context.Background(), id, 5, amt("200.00")).Accepted())
}

type panickingUnitOfWork struct{}

func (panickingUnitOfWork) InTx(context.Context, time.Duration, func(context.Context, domain.TxScope) error) error {
	panic("driver exploded")
}

func TestPlaceBid_PanicBecomesError(t *testing.T) {
	locks := locktable.New()
	a := NewBidArbiter(locks, panickingUnitOfWork{}, testPolicy(), nil, logger.NewNop())

	var res domain.BidResult
	require.NotPanics(t, func() {
		res = a.PlaceBid(context.Background(), 1, 5, amt("200.00"))
	})
	assert.Equal(t, domain.OutcomeError, res.Outcome)

	h := locks.AcquireFor(1)
	require.True(t, h.TryLock())
	h.Unlock()
}

func TestPlaceBid_LockReleasedAfterEveryOutcome(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	open := f.addAuction(t, "100.00", time.Now().Add(time.Hour))
	closed := f.addAuction(t, "100.00", time.Now().Add(-time.Hour))

	cases := []struct {
		auctionID int64
		amount    string
		outcome   domain.Outcome
	}{
		{open, "110.00", domain.OutcomeAccepted},
		{open, "111.00", domain.OutcomeTooLow},
		{closed, "500.00", domain.OutcomeClosed},
		{404, "500.00", domain.OutcomeNotFound},
	}
	for _, c := range cases {
		res := f.arbiter.PlaceBid(ctx, c.auctionID, 5, amt(c.amount))
		require.Equal(t, c.outcome, res.Outcome, res.Reason)
		f.assertUnlocked(t, c.auctionID)
	}
}

func TestPlaceBid_AuctionsAreIsolated(t *testing.T) {
	policy := testPolicy()
	policy.LockWaitTimeout = 2 * time.Second
	f := newArbiterFixture(t, policy, nil)
	a := f.addAuction(t, "100.00", time.Now().Add(time.Hour))
	b := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	h := f.locks.AcquireFor(a)
	require.NoError(t, h.Lock(context.Background()))
	defer h.Unlock()

	start := time.Now()
	res := f.arbiter.PlaceBid(context.Background(), b, 5, amt("110.00"))
	assert.True(t, res.Accepted(), res.Reason)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPlaceBid_PublishesAcceptedEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := mocks.NewMockEventPublisher(ctrl)
	f := newArbiterFixture(t, testPolicy(), pub)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	var got *domain.BidEvent
	pub.EXPECT().PublishBidEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.BidEvent) error {
			got = e
			return nil
		}).Times(1)

	res := f.arbiter.PlaceBid(context.Background(), id, 9, amt("110.00"))
	require.True(t, res.Accepted())

	// rejected bids publish nothing
	rejected := f.arbiter.PlaceBid(context.Background(), id, 9, amt("111.00"))
	assert.Equal(t, domain.OutcomeTooLow, rejected.Outcome)

	require.NoError(t, f.arbiter.Close(context.Background()))
	require.NotNil(t, got)
	assert.Equal(t, domain.BidAccepted, got.Type)
	assert.Equal(t, id, got.AuctionID)
	assert.Equal(t, int64(9), got.UserID)
	assert.Equal(t, res.Bid.ID, got.BidID)
	assert.True(t, got.Amount.Equal(amt("110")))
}

func TestPlaceBid_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := mocks.NewMockEventPublisher(ctrl)
	pub.EXPECT().PublishBidEvent(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	f := newArbiterFixture(t, testPolicy(), pub)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	res := f.arbiter.PlaceBid(context.Background(), id, 9, amt("110.00"))
	assert.True(t, res.Accepted())
	assert.Len(t, f.ledger(t, id), 1)
	require.NoError(t, f.arbiter.Close(context.Background()))
}

func TestPlaceBid_SlowSubscriberDoesNotDelayResult(t *testing.T) {
	policy := testPolicy()
	bound := policy.LockWaitTimeout + policy.TxnTimeout

	bus := NewLocalEventBus(logger.NewNop())
	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.SubscribeToBidEvents(ctx, func(e *domain.BidEvent) error {
		<-release
		mu.Lock()
		delivered = append(delivered, e.AuctionID)
		mu.Unlock()
		return nil
	})
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.handlers) == 1
	}, time.Second, 5*time.Millisecond)

	f := newArbiterFixture(t, policy, bus)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	// the subscriber stays blocked well past the arbitration bound
	time.AfterFunc(2*bound, func() { close(release) })

	for i, amount := range []string{"110.00", "120.00"} {
		start := time.Now()
		res := f.arbiter.PlaceBid(context.Background(), id, int64(i+1), amt(amount))
		require.True(t, res.Accepted(), res.Reason)
		assert.Less(t, time.Since(start), bound/2)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*bound)
	defer closeCancel()
	require.NoError(t, f.arbiter.Close(closeCtx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{id, id}, delivered)
}

func TestPlaceBid_AfterCloseStillArbitrates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no publish is expected once the arbiter is closed
	pub := mocks.NewMockEventPublisher(ctrl)
	f := newArbiterFixture(t, testPolicy(), pub)
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	require.NoError(t, f.arbiter.Close(context.Background()))
	require.NoError(t, f.arbiter.Close(context.Background()))

	res := f.arbiter.PlaceBid(context.Background(), id, 9, amt("110.00"))
	assert.True(t, res.Accepted())
	assert.True(t, f.price(t, id).Equal(amt("110")))
}

func TestArbiterStats(t *testing.T) {
	f := newArbiterFixture(t, testPolicy(), nil)
	ctx := context.Background()
	id := f.addAuction(t, "100.00", time.Now().Add(time.Hour))

	f.arbiter.PlaceBid(ctx, id, 1, amt("110"))
	f.arbiter.PlaceBid(ctx, id, 1, amt("111"))
	f.arbiter.PlaceBid(ctx, 77, 1, amt("111"))

	s := f.arbiter.Stats()
	assert.Equal(t, int64(1), s.Outcomes["accepted"])
	assert.Equal(t, int64(1), s.Outcomes["too_low"])
	assert.Equal(t, int64(1), s.Outcomes["not_found"])
	assert.Equal(t, int64(3), s.Total())
	assert.Equal(t, 2, s.LockHandles)
	assert.True(t, f.arbiter.Policy().MinIncrement.Equal(decimal.NewFromInt(10)))
}
