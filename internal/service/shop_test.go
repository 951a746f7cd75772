package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

func TestPurchase_AppliesDiscount(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, "u1", 1, model.CurrencyCoins, "quiz")
	require.NoError(t, err)

	receipt, err := f.svc.Purchase(ctx, "u1", "owl")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "owl", receipt.ItemID)
	assert.Equal(t, model.Cost{Coins: 49}, receipt.Charged)
	assert.Equal(t, int64(52), receipt.Account.Coins)
	assert.Equal(t, testStart, receipt.PurchasedAt)
	assertConserved(t, receipt.Account)

	txns, err := f.svc.ListTransactions(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "owl", txns[0].Source)
	assert.Equal(t, model.DirectionSpend, txns[0].Direction)
	assert.Equal(t, int64(49), txns[0].Amount)
}

func TestPurchase_AtomicMultiCurrency(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.Earn(ctx, "u1", 1, model.CurrencyGems, "quiz")
	require.NoError(t, err)
	_, err = f.svc.Spend(ctx, "u1", 11, model.CurrencyGems, "skin")
	require.NoError(t, err)

	_, err = f.svc.Purchase(ctx, "u1", "bundle")
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)

	acc, err := f.repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Coins)
	assert.Equal(t, int64(0), acc.Gems)

	_, err = f.svc.Earn(ctx, "u1", 5, model.CurrencyGems, "quiz")
	require.NoError(t, err)
	receipt, err := f.svc.Purchase(ctx, "u1", "bundle")
	require.NoError(t, err)
	assert.Equal(t, int64(50), receipt.Account.Coins)
	assert.Equal(t, int64(0), receipt.Account.Gems)

	txns, err := f.svc.ListTransactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, tx := range txns {
		assert.Equal(t, "bundle", tx.Source)
	}
}

func TestPurchase_Errors(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, "ghost", "freeze")
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	_, err = f.svc.Earn(ctx, "u1", 1, model.CurrencyCoins, "quiz")
	require.NoError(t, err)

	_, err = f.svc.Purchase(ctx, "u1", "unicorn")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.Purchase(ctx, "u1", "seasonal")
	assert.ErrorIs(t, err, ErrItemNotAvailable)

	f.clock.Advance(time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC).Sub(f.clock.Now()))
	_, err = f.svc.Purchase(ctx, "u1", "seasonal")
	assert.NoError(t, err)

	f.clock.Advance(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC).Sub(f.clock.Now()))
	_, err = f.svc.Purchase(ctx, "u1", "seasonal")
	assert.ErrorIs(t, err, ErrItemNotAvailable, "window end is exclusive")
}

func TestShopItems(t *testing.T) {
	f := newFixture(t, testCatalog)

	listings := f.svc.ShopItems(f.svc.Now())
	require.Len(t, listings, 4)

	byID := make(map[string]ShopListing, len(listings))
	for _, l := range listings {
		byID[l.Item.ID] = l
	}
	assert.Equal(t, "freeze", listings[0].Item.ID)
	assert.True(t, byID["freeze"].Available)
	assert.False(t, byID["seasonal"].Available)
	assert.Equal(t, model.Cost{Coins: 49}, byID["owl"].EffectiveCost)

	later := f.svc.ShopItems(time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC))
	assert.True(t, later[3].Available)
}
