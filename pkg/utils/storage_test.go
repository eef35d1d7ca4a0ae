package utils

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeStorage(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "memory", cfg: config.Config{Storage: config.StorageConfig{Driver: "memory"}}},
		{name: "sqlite", cfg: config.Config{
			Storage: config.StorageConfig{Driver: "sqlite", AutoMigrate: true},
			SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "a.db"), BusyTimeout: time.Second},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			storage, err := InitializeStorage(ctx, &tc.cfg, logger.NewNop())
			require.NoError(t, err)
			defer storage.Close()
			assert.Equal(t, tc.name, storage.Driver)

			ok, err := storage.Categories.CategoryExists(ctx, domain.DefaultCategoryID)
			require.NoError(t, err)
			assert.True(t, ok)

			owner := &domain.User{Username: "owner", PasswordHash: "x", CreatedAt: time.Now()}
			require.NoError(t, storage.Users.CreateUser(ctx, owner))

			a := &domain.Auction{
				OwnerID:       owner.ID,
				ItemName:      "chair",
				CategoryID:    domain.DefaultCategoryID,
				StartingPrice: decimal.NewFromInt(10),
				CurrentPrice:  decimal.NewFromInt(10),
				Status:        domain.AuctionActive,
				EndTime:       time.Now().Add(time.Hour),
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}
			require.NoError(t, storage.Auctions.CreateAuction(ctx, a))
			got, err := storage.Auctions.GetAuction(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, "chair", got.ItemName)
		})
	}
}

func TestInitializeStorageUnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "oracle"}}
	_, err := InitializeStorage(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}
