package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"auction-marketplace/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// raisePriceScript stores the price only if it is higher than the cached one,
// so events delivered out of order never move the cached price backwards.
var raisePriceScript = redis.NewScript(`
        local key = KEYS[1]
        local cached = redis.call('HGET', key, 'current_price')
        if cached ~= false and tonumber(cached) >= tonumber(ARGV[1]) then
            return 0
        end
        redis.call('HSET', key,
            'current_price', ARGV[1],
            'winner_id', ARGV[2],
            'last_updated', ARGV[3])
        return 1
    `)

// RedisPriceCache keeps the last accepted price of each auction in a hash.
// It is a read model only; the database row stays authoritative.
type RedisPriceCache struct {
	client *redis.Client
}

func NewRedisPriceCache(client *redis.Client) *RedisPriceCache {
	return &RedisPriceCache{client: client}
}

func priceKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

func (r *RedisPriceCache) SetPrice(ctx context.Context, price *domain.CachedPrice) error {
	return raisePriceScript.Run(ctx, r.client, []string{priceKey(price.AuctionID)},
		price.CurrentPrice.StringFixed(domain.MoneyPlaces),
		strconv.FormatInt(price.WinnerID, 10),
		strconv.FormatInt(price.LastUpdated.UnixMilli(), 10),
	).Err()
}

// GetPrice returns nil without error when the auction is not cached.
func (r *RedisPriceCache) GetPrice(ctx context.Context, auctionID int64) (*domain.CachedPrice, error) {
	result, err := r.client.HMGet(ctx, priceKey(auctionID), "current_price", "winner_id", "last_updated").Result()
	if err != nil {
		return nil, err
	}
	if result[0] == nil {
		return nil, nil
	}
	return parseCachedPrice(auctionID, result)
}

func parseCachedPrice(auctionID int64, fields []interface{}) (*domain.CachedPrice, error) {
	price := &domain.CachedPrice{AuctionID: auctionID}

	s, _ := fields[0].(string)
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("cached price of auction %d: %w", auctionID, err)
	}
	price.CurrentPrice = amount

	if s, ok := fields[1].(string); ok {
		price.WinnerID, _ = strconv.ParseInt(s, 10, 64)
	}
	if s, ok := fields[2].(string); ok {
		ms, _ := strconv.ParseInt(s, 10, 64)
		price.LastUpdated = time.UnixMilli(ms)
	}
	return price, nil
}
