package redis

import (
	"testing"
	"time"

	"auction-marketplace/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &domain.BidEvent{
		Type:      domain.BidAccepted,
		AuctionID: 42,
		UserID:    7,
		BidID:     "bid_abc",
		Amount:    decimal.RequireFromString("110.50"),
		Timestamp: ts,
	}

	payload, err := encodeEvent(in)
	require.NoError(t, err)

	out, err := decodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, in.AuctionID, out.AuctionID)
	assert.Equal(t, in.BidID, out.BidID)
	assert.True(t, in.Amount.Equal(out.Amount))
	assert.True(t, ts.Equal(out.Timestamp))
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "42:bid_accepted:7:110.00:0", `{"type":"bid_accepted"}`} {
		_, err := decodeEvent(payload)
		assert.Error(t, err, payload)
	}
}

func TestParseCachedPrice(t *testing.T) {
	p, err := parseCachedPrice(3, []interface{}{"120.00", "9", "1700000000000"})
	require.NoError(t, err)
	assert.Equal(t, "120.00", p.CurrentPrice.StringFixed(2))
	assert.Equal(t, int64(9), p.WinnerID)
	assert.Equal(t, int64(1700000000000), p.LastUpdated.UnixMilli())

	_, err = parseCachedPrice(3, []interface{}{"abc", nil, nil})
	assert.Error(t, err)
}

func TestPriceKey(t *testing.T) {
	assert.Equal(t, "auction:17", priceKey(17))
}
