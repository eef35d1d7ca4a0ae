package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-marketplace/internal/domain"
)

const auctionDetailsColumns = `
        a.id, a.owner_id, a.item_name, a.category_id, COALESCE(c.name, 'Uncategorized'),
        a.image_url, a.starting_price, a.current_price, a.winner_id, a.status,
        a.end_time, a.last_bid_at, a.created_at, a.updated_at,
        (SELECT COUNT(*) FROM bids b WHERE b.auction_id = a.id)
    FROM auctions a
    LEFT JOIN categories c ON c.id = a.category_id`

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (owner_id, item_name, category_id, image_url, starting_price,
            current_price, status, end_time, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query,
		auction.OwnerID, auction.ItemName, auction.CategoryID, auction.ImageURL,
		auction.StartingPrice, auction.CurrentPrice, string(auction.Status),
		auction.EndTime.UTC(), auction.CreatedAt.UTC(), auction.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	auction.ID = id
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID int64) (*domain.AuctionDetails, error) {
	query := `SELECT` + auctionDetailsColumns + ` WHERE a.id = ?`

	details, err := scanAuctionDetails(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return details, nil
}

// ListActiveAuctions returns open auctions ordered by end time. The end time
// filter runs here rather than in SQL so both dialects compare instants the
// same way.
func (s *Store) ListActiveAuctions(ctx context.Context, now time.Time) ([]*domain.AuctionDetails, error) {
	query := `SELECT` + auctionDetailsColumns + ` WHERE a.status = ? ORDER BY a.end_time ASC, a.id ASC`

	rows, err := s.db.QueryContext(ctx, query, string(domain.AuctionActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.AuctionDetails
	for rows.Next() {
		details, err := scanAuctionDetails(rows)
		if err != nil {
			return nil, err
		}
		if details.IsOpen(now) {
			auctions = append(auctions, details)
		}
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuctionDetails(row rowScanner) (*domain.AuctionDetails, error) {
	var d domain.AuctionDetails
	var status string
	var winner sql.NullInt64
	var lastBidAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.ItemName, &d.CategoryID, &d.CategoryName,
		&d.ImageURL, &d.StartingPrice, &d.CurrentPrice, &winner, &status,
		&d.EndTime, &lastBidAt, &d.CreatedAt, &d.UpdatedAt,
		&d.BidCount)
	if err != nil {
		return nil, err
	}

	d.Status = domain.AuctionStatus(status)
	if winner.Valid {
		w := winner.Int64
		d.WinnerID = &w
	}
	if lastBidAt.Valid {
		at := lastBidAt.Time
		d.LastBidAt = &at
	}
	return &d, nil
}
