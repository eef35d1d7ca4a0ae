package services

import (
	"context"
	"sync"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// LocalEventBus delivers bid events to in-process subscribers. It stands in
// for Redis pub/sub when redis.enabled is false.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[int]domain.EventHandler
	nextID   int
	log      logger.Logger
}

func NewLocalEventBus(log logger.Logger) *LocalEventBus {
	return &LocalEventBus{handlers: make(map[int]domain.EventHandler), log: log}
}

// PublishBidEvent calls every subscriber synchronously.
func (b *LocalEventBus) PublishBidEvent(ctx context.Context, event *domain.BidEvent) error {
	b.mu.RLock()
	handlers := make([]domain.EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			b.log.Error("Failed to handle event", "auction_id", event.AuctionID, "bid_id", event.BidID, "error", err)
		}
	}
	return nil
}

// SubscribeToBidEvents registers handler and blocks until ctx is done.
func (b *LocalEventBus) SubscribeToBidEvents(ctx context.Context, handler domain.EventHandler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return ctx.Err()
}
