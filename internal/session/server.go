// Package session serves the line-oriented TCP command protocol.
package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"

	"golang.org/x/sync/semaphore"
)

// Accounts registers and logs in users.
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
}

// Listings reads and creates auctions.
type Listings interface {
	CreateListing(ctx context.Context, req services.ListingRequest) (*domain.AuctionDetails, error)
	GetAuction(ctx context.Context, auctionID int64) (*domain.AuctionDetails, error)
	ListActive(ctx context.Context) ([]*domain.AuctionDetails, error)
	BidHistory(ctx context.Context, auctionID int64) ([]*domain.Bid, error)
}

type Server struct {
	cfg      config.SessionConfig
	accounts Accounts
	listings Listings
	placer   domain.BidPlacer
	log      logger.Logger
	slots    *semaphore.Weighted

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

func NewServer(cfg config.SessionConfig, accounts Accounts, listings Listings, placer domain.BidPlacer, log logger.Logger) *Server {
	limit := cfg.MaxSessions
	if limit <= 0 {
		limit = 256
	}
	return &Server{
		cfg:      cfg,
		accounts: accounts,
		listings: listings,
		placer:   placer,
		log:      log,
		slots:    semaphore.NewWeighted(limit),
		conns:    make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. When ctx is done the listener and every
// open session are closed and Serve returns after the sessions have exited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Session server listening", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			s.log.Debug("Listener close", "error", err)
		}
		s.closeAll()
	}()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("Failed to accept connection", "error", err)
			continue
		}

		// Reject immediately when every slot is taken.
		if !s.slots.TryAcquire(1) {
			s.log.Warn("Session limit reached, rejecting connection", "remote_addr", conn.RemoteAddr().String())
			_, _ = conn.Write([]byte("Server busy, try again later.\n"))
			_ = conn.Close()
			continue
		}

		// A connection accepted while shutdown runs would miss closeAll.
		if !s.track(conn) {
			s.slots.Release(1)
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.slots.Release(1)
			defer s.untrack(c)
			s.Handle(ctx, c)
		}(conn)
	}
}

// Handle runs one session on conn and closes it when the client leaves.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Panic recovered in session", "panic", r)
		}
		if err := conn.Close(); err != nil {
			s.log.Debug("Session close", "error", err)
		}
	}()

	sess := newSession(conn, s, s.idleTimeout())
	sess.run(ctx)
}

func (s *Server) idleTimeout() time.Duration {
	if s.cfg.IdleTimeout <= 0 {
		return 10 * time.Minute
	}
	return s.cfg.IdleTimeout
}

// track registers c unless the server is shutting down.
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	for c := range s.conns {
		_ = c.Close()
	}
}
