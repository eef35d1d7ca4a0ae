package services

import (
	"context"
	"sync"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/robfig/cron/v3"
)

// PriceReconciler copies the current price of every active auction from the
// store into the price cache, repairing entries missed when an event was
// dropped. A run is skipped unless this instance holds leadership.
type PriceReconciler struct {
	cron       *cron.Cron
	auctions   domain.AuctionRepository
	cache      domain.PriceCache
	leadership domain.Leadership
	instanceID string
	schedule   string
	log        logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	leader bool
}

func NewPriceReconciler(
	auctions domain.AuctionRepository,
	cache domain.PriceCache,
	leadership domain.Leadership,
	instanceID string,
	schedule string,
	log logger.Logger,
) *PriceReconciler {
	return &PriceReconciler{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		auctions:   auctions,
		cache:      cache,
		leadership: leadership,
		instanceID: instanceID,
		schedule:   schedule,
		log:        log,
		now:        time.Now,
	}
}

func (r *PriceReconciler) Start() error {
	r.log.Info("Starting price reconciler", "schedule", r.schedule, "instance_id", r.instanceID)

	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.Reconcile(ctx); err != nil {
			r.log.Error("Price reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop waits for a running pass and gives up leadership.
func (r *PriceReconciler) Stop(ctx context.Context) {
	r.log.Info("Stopping price reconciler")
	<-r.cron.Stop().Done()

	r.mu.Lock()
	wasLeader := r.leader
	r.leader = false
	r.mu.Unlock()
	if wasLeader {
		if err := r.leadership.ReleaseLeadership(ctx, r.instanceID); err != nil {
			r.log.Error("Failed to release leadership", "error", err)
		}
	}
}

// Reconcile runs one pass and returns the number of cache entries written.
func (r *PriceReconciler) Reconcile(ctx context.Context) (int, error) {
	leader, err := r.leadership.AcquireLeadership(ctx, r.instanceID)
	if err != nil {
		return 0, err
	}
	r.setLeader(leader)
	if !leader {
		return 0, nil
	}

	active, err := r.auctions.ListActiveAuctions(ctx, r.now())
	if err != nil {
		return 0, err
	}

	written := 0
	for _, a := range active {
		cached, err := r.cache.GetPrice(ctx, a.ID)
		if err != nil {
			r.log.Warn("Failed to read cached price", "auction_id", a.ID, "error", err)
			continue
		}
		if cached != nil && cached.CurrentPrice.GreaterThanOrEqual(a.CurrentPrice) {
			continue
		}
		if err := r.cache.SetPrice(ctx, cachedPriceOf(&a.Auction)); err != nil {
			return written, err
		}
		written++
	}
	if written > 0 {
		r.log.Info("Reconciled price cache", "written", written, "active", len(active))
	}
	return written, nil
}

func (r *PriceReconciler) setLeader(leader bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if leader != r.leader {
		r.log.Info("Reconciler leadership changed", "instance_id", r.instanceID, "leader", leader)
	}
	r.leader = leader
}

func cachedPriceOf(a *domain.Auction) *domain.CachedPrice {
	p := &domain.CachedPrice{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		LastUpdated:  a.UpdatedAt,
	}
	if a.WinnerID != nil {
		p.WinnerID = *a.WinnerID
	}
	if a.LastBidAt != nil {
		p.LastUpdated = *a.LastBidAt
	}
	return p
}
