package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "integer", input: "110", want: "110.00"},
		{name: "two_decimals", input: "109.99", want: "109.99"},
		{name: "one_decimal", input: "0.5", want: "0.50"},
		{name: "trailing_zeros", input: "12.500", want: "12.50"},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-10", wantErr: true},
		{name: "three_decimals", input: "10.001", wantErr: true},
		{name: "garbage", input: "ten", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAmount(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidAmount), "expected ErrInvalidAmount, got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, FormatMoney(got))
		})
	}
}

func TestAuctionDetails_Momentum(t *testing.T) {
	tests := []struct {
		current string
		want    string
	}{
		{"100", "new"},
		{"110", "new"},
		{"110.01", "fair"},
		{"125.01", "good"},
		{"150", "good"},
		{"150.01", "excellent"},
	}

	for _, tc := range tests {
		d := &AuctionDetails{Auction: Auction{
			StartingPrice: decimal.NewFromInt(100),
			CurrentPrice:  decimal.RequireFromString(tc.current),
		}}
		require.Equal(t, tc.want, d.Momentum(), "current=%s", tc.current)
	}
}

func TestAuction_IsOpen(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	a := &Auction{Status: AuctionActive, EndTime: now.Add(time.Minute)}
	require.True(t, a.IsOpen(now))
	require.False(t, a.IsOpen(now.Add(time.Minute)), "end time itself is closed")

	a.Status = AuctionClosed
	require.False(t, a.IsOpen(now))

	snap := &PriceSnapshot{Status: AuctionActive, EndTime: now}
	require.False(t, snap.IsOpen(now))
	require.True(t, snap.IsOpen(now.Add(-time.Second)))
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "accepted", OutcomeAccepted.String())
	require.Equal(t, "too_low", OutcomeTooLow.String())
	require.Equal(t, "unknown", Outcome(42).String())

	require.True(t, OutcomeBusy.Retryable())
	require.True(t, OutcomeError.Retryable())
	require.False(t, OutcomeTooLow.Retryable())
	require.False(t, OutcomeNotFound.Retryable())
}
