package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"auction-marketplace/internal/config"
	"auction-marketplace/internal/infrastructure/sqlstore"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers treated as row lock conflicts.
const (
	errLockNowait      = 3572 // ER_LOCK_NOWAIT
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
	errLockDeadlock    = 1213 // ER_LOCK_DEADLOCK
	errDuplicateEntry  = 1062 // ER_DUP_ENTRY
)

// Open connects to MySQL. parseTime is forced on and times are read as UTC.
func Open(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                "mysql",
		ForUpdateClause:     "FOR UPDATE NOWAIT",
		TxTimeoutStatements: txTimeoutStatements,
		TxResetStatements:   txResetStatements,
		IsLockConflict:      isLockConflict,
		IsDuplicateKey: func(err error) bool {
			return errorNumber(err) == errDuplicateEntry
		},
		Schema: schema,
	}
}

func txTimeoutStatements(timeout time.Duration) []string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return []string{
		fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs),
		fmt.Sprintf("SET SESSION max_execution_time = %d", timeout.Milliseconds()),
	}
}

var txResetStatements = []string{
	"SET SESSION innodb_lock_wait_timeout = DEFAULT",
	"SET SESSION max_execution_time = DEFAULT",
}

func isLockConflict(err error) bool {
	switch errorNumber(err) {
	case errLockNowait, errLockWaitTimeout, errLockDeadlock:
		return true
	}
	return false
}

func errorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        username VARCHAR(64) NOT NULL UNIQUE,
        email VARCHAR(255) NOT NULL DEFAULT '',
        password_hash VARCHAR(100) NOT NULL,
        created_at DATETIME(6) NOT NULL
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS categories (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        name VARCHAR(100) NOT NULL UNIQUE
    ) ENGINE=InnoDB`,
	`INSERT IGNORE INTO categories (id, name) VALUES (1, 'Uncategorized')`,
	`CREATE TABLE IF NOT EXISTS auctions (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        owner_id BIGINT NOT NULL,
        item_name VARCHAR(255) NOT NULL,
        category_id BIGINT NOT NULL DEFAULT 1,
        image_url VARCHAR(1024) NOT NULL DEFAULT '',
        starting_price DECIMAL(14,2) NOT NULL,
        current_price DECIMAL(14,2) NOT NULL,
        winner_id BIGINT NULL,
        status VARCHAR(16) NOT NULL DEFAULT 'active',
        end_time DATETIME(6) NOT NULL,
        last_bid_at DATETIME(6) NULL,
        created_at DATETIME(6) NOT NULL,
        updated_at DATETIME(6) NOT NULL,
        INDEX idx_auctions_status_end (status, end_time),
        FOREIGN KEY (owner_id) REFERENCES users(id),
        FOREIGN KEY (category_id) REFERENCES categories(id)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bids (
        id VARCHAR(64) PRIMARY KEY,
        auction_id BIGINT NOT NULL,
        bidder_id BIGINT NOT NULL,
        amount DECIMAL(14,2) NOT NULL,
        placed_at DATETIME(6) NOT NULL,
        INDEX idx_bids_auction_placed (auction_id, placed_at),
        FOREIGN KEY (auction_id) REFERENCES auctions(id),
        FOREIGN KEY (bidder_id) REFERENCES users(id)
    ) ENGINE=InnoDB`,
}
