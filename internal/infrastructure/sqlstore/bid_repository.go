package sqlstore

import (
	"context"

	"auction-marketplace/internal/domain"
)

// ListBids returns the ledger of an auction in placement order.
func (s *Store) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, placed_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY placed_at ASC, id ASC
    `

	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}
	return bids, rows.Err()
}
