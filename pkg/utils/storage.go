package utils

import (
	"context"
	"fmt"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/internal/infrastructure/mysql"
	"auction-marketplace/internal/infrastructure/sqlite"
	"auction-marketplace/internal/infrastructure/sqlstore"
	"auction-marketplace/pkg/logger"
)

// Storage bundles the repositories of one storage driver.
type Storage struct {
	Driver     string
	Auctions   domain.AuctionRepository
	Bids       domain.BidRepository
	Users      domain.UserRepository
	Categories domain.CategoryRepository
	UnitOfWork domain.UnitOfWork

	close func() error
}

func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

type repositories interface {
	domain.AuctionRepository
	domain.BidRepository
	domain.UserRepository
	domain.CategoryRepository
	domain.UnitOfWork
}

func newStorage(driver string, r repositories, closeFn func() error) *Storage {
	return &Storage{
		Driver:     driver,
		Auctions:   r,
		Bids:       r,
		Users:      r,
		Categories: r,
		UnitOfWork: r,
		close:      closeFn,
	}
}

// InitializeStorage opens the configured storage driver and, for the SQL
// drivers, applies the schema when storage.auto_migrate is set.
func InitializeStorage(ctx context.Context, cfg *config.Config, log logger.Logger) (*Storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("Using in-memory storage; data is lost on restart")
		return newStorage("memory", memory.NewStore(), nil), nil
	}

	store, err := OpenSQLStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.DB().Close()
			return nil, err
		}
		log.Info("Schema migrated", "driver", cfg.Storage.Driver)
	}

	log.Info("Connected to storage", "driver", cfg.Storage.Driver)
	return newStorage(cfg.Storage.Driver, store, store.DB().Close), nil
}

// OpenSQLStore connects to the mysql or sqlite driver without migrating.
func OpenSQLStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		return sqlstore.NewStore(db, mysql.Dialect()), nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return sqlstore.NewStore(db, sqlite.Dialect()), nil
	default:
		return nil, fmt.Errorf("storage driver %q has no SQL store", cfg.Storage.Driver)
	}
}
