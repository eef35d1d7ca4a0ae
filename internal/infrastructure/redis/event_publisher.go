package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-marketplace/internal/domain"

	"github.com/go-redis/redis/v8"
)

// EventsChannel is the pub/sub channel carrying accepted bid events.
const EventsChannel = "auction_events"

type EventPublisherImpl struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) PublishBidEvent(ctx context.Context, event *domain.BidEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventsChannel, payload).Err()
}

func encodeEvent(event *domain.BidEvent) (string, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode bid event: %w", err)
	}
	return string(b), nil
}

func decodeEvent(payload string) (*domain.BidEvent, error) {
	var event domain.BidEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload %q: %w", payload, err)
	}
	if event.AuctionID == 0 || event.Type == "" {
		return nil, fmt.Errorf("invalid event payload %q: missing auction or type", payload)
	}
	return &event, nil
}
