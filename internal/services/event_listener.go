package services

import (
	"context"
	"fmt"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// EventListener turns bus events into cache updates and websocket
// broadcasts. priceCache may be nil.
type EventListener struct {
	priceCache  domain.PriceCache
	broadcaster domain.AuctionBroadcaster
	log         logger.Logger
}

func NewEventListener(priceCache domain.PriceCache, broadcaster domain.AuctionBroadcaster, log logger.Logger) *EventListener {
	return &EventListener{
		priceCache:  priceCache,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Start blocks until ctx is done or the subscription fails.
func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToBidEvents(ctx, el.HandleBidEvent)
}

func (el *EventListener) HandleBidEvent(event *domain.BidEvent) error {
	el.log.Debug("Handling bid event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.BidAccepted:
		return el.handleBidAccepted(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidAccepted(event *domain.BidEvent) error {
	ctx := context.Background()

	if el.priceCache != nil {
		err := el.priceCache.SetPrice(ctx, &domain.CachedPrice{
			AuctionID:    event.AuctionID,
			CurrentPrice: event.Amount,
			WinnerID:     event.UserID,
			LastUpdated:  event.Timestamp,
		})
		if err != nil {
			el.log.Warn("Failed to update price cache", "auction_id", event.AuctionID, "error", err)
		}
	}

	// Broadcast to all connected users for this auction
	return el.broadcaster.BroadcastToAuction(ctx, event.AuctionID, map[string]interface{}{
		"type":           "bid_update",
		"auction_id":     event.AuctionID,
		"bid_id":         event.BidID,
		"current_price":  domain.FormatMoney(event.Amount),
		"current_winner": event.UserID,
		"timestamp":      event.Timestamp,
	})
}
