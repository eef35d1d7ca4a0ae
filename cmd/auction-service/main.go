package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-marketplace/internal/api/handlers"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/leader"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/internal/locktable"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"
)

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	storage, err := utils.InitializeStorage(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	rdb, err := utils.InitializeRedis(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	var publisher domain.EventPublisher
	if rdb != nil {
		defer rdb.Close()
		publisher = redis.NewEventPublisher(rdb)
	}

	arbiter := services.NewBidArbiter(
		locktable.New(),
		storage.UnitOfWork,
		services.PolicyFromConfig(cfg.Arbiter),
		publisher,
		log,
	)
	users := services.NewUserService(storage.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	listings := services.NewListingService(storage.Auctions, storage.Bids, storage.Categories, log)

	e := handlers.NewRouter(
		handlers.NewAuctionHandler(listings, arbiter, log),
		handlers.NewUserHandler(users, log),
		users,
		log,
	)

	// Start background jobs
	var stats *services.StatsReporter
	if cfg.Stats.Enabled {
		stats = services.NewStatsReporter(arbiter, cfg.Stats.Schedule, log)
		if err := stats.Start(); err != nil {
			log.Error("Failed to start stats reporter", "error", err)
			os.Exit(1)
		}
	}

	// The price cache only exists in redis, so there is nothing to reconcile
	// without it.
	var reconciler *services.PriceReconciler
	if cfg.Reconciler.Enabled && rdb != nil {
		reconciler = services.NewPriceReconciler(
			storage.Auctions,
			redis.NewRedisPriceCache(rdb),
			leader.NewRedisLeaderElection(rdb, cfg.Reconciler.LeaderTTL),
			cfg.Instance.ID,
			cfg.Reconciler.Schedule,
			log,
		)
		if err := reconciler.Start(); err != nil {
			log.Error("Failed to start price reconciler", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		log.Info("Starting HTTP server", "address", cfg.Server.Addr())
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := arbiter.Close(shutdownCtx); err != nil {
		log.Error("Pending bid events were not published", "error", err)
	}
	if reconciler != nil {
		reconciler.Stop(shutdownCtx)
	}
	if stats != nil {
		stats.Stop()
		stats.Report()
	}

	log.Info("Auction service stopped")
}
