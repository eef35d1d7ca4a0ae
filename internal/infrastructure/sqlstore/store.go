package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"

	"github.com/shopspring/decimal"
)

// Store implements every storage interface of the domain over one *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, stmt := range s.dialect.Schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
			}
		}
		return nil
	})
}

const resetTimeout = 2 * time.Second

// TxBeginner is satisfied by *sql.DB and *sql.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RunInTx begins a transaction, runs run and commits. The transaction is
// rolled back when run fails.
func RunInTx(ctx context.Context, db TxBeginner, run func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = run(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InTx implements domain.UnitOfWork.
func (s *Store) InTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, scope domain.TxScope) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	setup := s.dialect.txTimeoutStatements(timeout)
	run := func(tx *sql.Tx) error {
		for _, stmt := range setup {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set transaction timeout: %w", err)
			}
		}
		return fn(ctx, domain.TxScope{
			Auctions: &txAuctionStore{tx: tx, dialect: s.dialect},
			Ledger:   &txBidLedger{tx: tx},
		})
	}

	if len(setup) == 0 || len(s.dialect.TxResetStatements) == 0 {
		return s.classify(ctx, RunInTx(ctx, s.db, run))
	}

	// The timeout settings are session scoped, so the transaction runs on a
	// pinned connection that is reset before it is released.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.classify(ctx, err)
	}
	defer conn.Close()

	err = RunInTx(ctx, conn, run)
	s.resetSession(ctx, conn)
	return s.classify(ctx, err)
}

// resetSession restores the session settings of conn. A connection that
// cannot be reset is discarded instead of being returned to the pool.
func (s *Store) resetSession(ctx context.Context, conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()

	for _, stmt := range s.dialect.TxResetStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			return
		}
	}
}

func (s *Store) classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRowLocked), errors.Is(err, domain.ErrTxnTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil && errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", domain.ErrTxnTimeout, err)
	case s.dialect.isLockConflict(err):
		return fmt.Errorf("%w: %v", domain.ErrRowLocked, err)
	default:
		return err
	}
}

type txAuctionStore struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txAuctionStore) GetCurrentPriceForUpdate(ctx context.Context, auctionID int64) (*domain.PriceSnapshot, error) {
	query := `SELECT current_price, status, end_time, last_bid_at FROM auctions WHERE id = ?`
	if t.dialect.ForUpdateClause != "" {
		query += " " + t.dialect.ForUpdateClause
	}

	snap := &domain.PriceSnapshot{AuctionID: auctionID}
	var status string
	var lastBidAt sql.NullTime
	err := t.tx.QueryRowContext(ctx, query, auctionID).Scan(&snap.CurrentPrice, &status, &snap.EndTime, &lastBidAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	case t.dialect.isLockConflict(err):
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrRowLocked)
	case err != nil:
		return nil, fmt.Errorf("read auction %d for update: %w", auctionID, err)
	}

	snap.Status = domain.AuctionStatus(status)
	if lastBidAt.Valid {
		at := lastBidAt.Time
		snap.LastBidAt = &at
	}
	return snap, nil
}

func (t *txAuctionStore) SetCurrentPrice(ctx context.Context, auctionID int64, amount decimal.Decimal, winnerID int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE auctions SET current_price = ?, winner_id = ?, last_bid_at = ?, updated_at = ? WHERE id = ?`,
		amount, winnerID, at.UTC(), at.UTC(), auctionID)
	if err != nil {
		if t.dialect.isLockConflict(err) {
			return fmt.Errorf("auction %d: %w", auctionID, domain.ErrRowLocked)
		}
		return fmt.Errorf("set current price of auction %d: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("set current price of auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return nil
}

type txBidLedger struct {
	tx *sql.Tx
}

func (l *txBidLedger) Append(ctx context.Context, bid *domain.Bid) error {
	_, err := l.tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at) VALUES (?, ?, ?, ?, ?)`,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.PlacedAt.UTC())
	if err != nil {
		return fmt.Errorf("append bid %s to ledger: %w", bid.ID, err)
	}
	return nil
}
