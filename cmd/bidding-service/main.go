package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-marketplace/internal/api/middleware"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/internal/infrastructure/websocket"
	"auction-marketplace/internal/locktable"
	"auction-marketplace/internal/services"
	"auction-marketplace/internal/session"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	"github.com/gorilla/mux"
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
	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	storage, err := utils.InitializeStorage(initCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	rdb, err := utils.InitializeRedis(initCtx, cfg, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Accepted bids reach the websocket broadcast through redis when it is
	// enabled, so bids placed by other instances are seen too.
	var (
		publisher  domain.EventPublisher
		subscriber domain.EventSubscriber
		priceCache domain.PriceCache
	)
	if rdb != nil {
		defer rdb.Close()
		publisher = redis.NewEventPublisher(rdb)
		subscriber = redis.NewRedisEventSubscriber(rdb, log)
		priceCache = redis.NewRedisPriceCache(rdb)
	} else {
		bus := services.NewLocalEventBus(log)
		publisher, subscriber = bus, bus
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

	connManager := websocket.NewConnectionManager(log)
	auctionBroadcaster := websocket.NewWebSocketNotifier(connManager)
	eventListener := services.NewEventListener(priceCache, auctionBroadcaster, log)
	wsHandler := websocket.NewWebSocketHandler(arbiter, listings, users, connManager, log)

	// Setup routes
	router := mux.NewRouter()
	router.Use(middleware.CORSWithLogging(log))
	router.HandleFunc("/ws/auction/{auctionID}", wsHandler.HandleConnection)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// Start background services
	go func() {
		if err := eventListener.Start(ctx, subscriber); err != nil && ctx.Err() == nil {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	var stats *services.StatsReporter
	if cfg.Stats.Enabled {
		stats = services.NewStatsReporter(arbiter, cfg.Stats.Schedule, log)
		if err := stats.Start(); err != nil {
			log.Error("Failed to start stats reporter", "error", err)
			os.Exit(1)
		}
	}

	sessionDone := make(chan struct{})
	if cfg.Session.Enabled {
		sessions := session.NewServer(cfg.Session, users, listings, arbiter, log)
		go func() {
			defer close(sessionDone)
			if err := sessions.ListenAndServe(ctx); err != nil {
				log.Error("Session server failed", "error", err)
			}
		}()
	} else {
		close(sessionDone)
	}

	server := &http.Server{
		Addr:              cfg.BiddingServer.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting bidding server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := arbiter.Close(shutdownCtx); err != nil {
		log.Error("Pending bid events were not published", "error", err)
	}
	cancel()
	<-sessionDone
	if stats != nil {
		stats.Stop()
		stats.Report()
	}

	log.Info("Bidding service stopped")
}
