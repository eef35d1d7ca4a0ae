package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/infrastructure/sqlstore"

	"github.com/mattn/go-sqlite3"
)

// Open opens the database file at cfg.Path. Every transaction starts with
// BEGIN IMMEDIATE so a second writer fails with SQLITE_BUSY once the busy
// timeout runs out instead of deadlocking on lock upgrade.
func Open(ctx context.Context, cfg config.SQLiteConfig) (*sql.DB, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", fmt.Sprint(cfg.BusyTimeout.Milliseconds()))
	dsn := "file:" + cfg.Path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	return db, nil
}

// Dialect has no row lock clause: sqlite serializes writers on the database
// lock taken by BEGIN IMMEDIATE.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:           "sqlite",
		IsLockConflict: isLockConflict,
		IsDuplicateKey: isDuplicateKey,
		Schema:         schema,
	}
}

func isLockConflict(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isDuplicateKey(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Money columns are TEXT so amounts round-trip exactly through decimal.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL DEFAULT '',
        password_hash TEXT NOT NULL,
        created_at DATETIME NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS categories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE
    )`,
	`INSERT OR IGNORE INTO categories (id, name) VALUES (1, 'Uncategorized')`,
	`CREATE TABLE IF NOT EXISTS auctions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id INTEGER NOT NULL REFERENCES users(id),
        item_name TEXT NOT NULL,
        category_id INTEGER NOT NULL DEFAULT 1 REFERENCES categories(id),
        image_url TEXT NOT NULL DEFAULT '',
        starting_price TEXT NOT NULL,
        current_price TEXT NOT NULL,
        winner_id INTEGER NULL,
        status TEXT NOT NULL DEFAULT 'active',
        end_time DATETIME NOT NULL,
        last_bid_at DATETIME NULL,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions (status, end_time)`,
	`CREATE TABLE IF NOT EXISTS bids (
        id TEXT PRIMARY KEY,
        auction_id INTEGER NOT NULL REFERENCES auctions(id),
        bidder_id INTEGER NOT NULL REFERENCES users(id),
        amount TEXT NOT NULL,
        placed_at DATETIME NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_bids_auction_placed ON bids (auction_id, placed_at)`,
}
