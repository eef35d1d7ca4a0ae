package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-marketplace/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAuction(t *testing.T, s *Store, price string) *domain.Auction {
	t.Helper()
	p := decimal.RequireFromString(price)
	a := &domain.Auction{
		OwnerID:       1,
		ItemName:      "vase",
		CategoryID:    domain.DefaultCategoryID,
		StartingPrice: p,
		CurrentPrice:  p,
		Status:        domain.AuctionActive,
		EndTime:       time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateAuction(context.Background(), a))
	return a
}

func TestInTxAppliesWritesOnCommit(t *testing.T) {
	s := NewStore()
	a := seedAuction(t, s, "100")
	ctx := context.Background()
	at := time.Now()

	err := s.InTx(ctx, time.Second, func(ctx context.Context, scope domain.TxScope) error {
		if _, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID); err != nil {
			return err
		}
		require.NoError(t, scope.Auctions.SetCurrentPrice(ctx, a.ID, decimal.NewFromInt(120), 7, at))
		return scope.Ledger.Append(ctx, &domain.Bid{ID: "b1", AuctionID: a.ID, BidderID: 7, Amount: decimal.NewFromInt(120), PlacedAt: at})
	})
	require.NoError(t, err)

	got, err := s.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, int64(7), *got.WinnerID)
	assert.Equal(t, 1, got.BidCount)
}

func TestInTxDiscardsWritesOnError(t *testing.T) {
	s := NewStore()
	a := seedAuction(t, s, "100")
	ctx := context.Background()

	err := s.InTx(ctx, time.Second, func(ctx context.Context, scope domain.TxScope) error {
		if _, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID); err != nil {
			return err
		}
		require.NoError(t, scope.Auctions.SetCurrentPrice(ctx, a.ID, decimal.NewFromInt(999), 7, time.Now()))
		return errors.New("abort")
	})
	require.Error(t, err)

	got, _ := s.GetAuction(ctx, a.ID)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, got.WinnerID)
}

func TestRowLockIsNotWaitedFor(t *testing.T) {
	s := NewStore()
	a := seedAuction(t, s, "100")
	ctx := context.Background()

	err := s.InTx(ctx, time.Second, func(ctx context.Context, scope domain.TxScope) error {
		if _, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID); err != nil {
			return err
		}
		inner := s.InTx(ctx, time.Second, func(ctx context.Context, scope domain.TxScope) error {
			_, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID)
			return err
		})
		assert.ErrorIs(t, inner, domain.ErrRowLocked)
		return nil
	})
	require.NoError(t, err)

	// released after commit
	err = s.InTx(ctx, time.Second, func(ctx context.Context, scope domain.TxScope) error {
		_, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestInTxTimeout(t *testing.T) {
	s := NewStore()
	a := seedAuction(t, s, "100")

	err := s.InTx(context.Background(), 20*time.Millisecond, func(ctx context.Context, scope domain.TxScope) error {
		if _, err := scope.Auctions.GetCurrentPriceForUpdate(ctx, a.ID); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrTxnTimeout)
}

func TestUsersAndCategories(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &domain.User{Username: "amy"}))
	assert.ErrorIs(t, s.CreateUser(ctx, &domain.User{Username: "amy"}), domain.ErrUserExists)
	_, err := s.GetUserByUsername(ctx, "zed")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	s.AddCategory(&domain.Category{ID: 2, Name: "Books"})
	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Books", cats[1].Name)
}
