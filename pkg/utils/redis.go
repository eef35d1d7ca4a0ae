package utils

import (
	"context"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// InitializeRedis connects and pings redis. It returns nil, nil when redis is
// disabled in config.
func InitializeRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled; using in-process event bus")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)
	return rdb, nil
}
