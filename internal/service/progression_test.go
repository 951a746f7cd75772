package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gamification-engine/internal/catalog"
	"github.com/mmeshcher/gamification-engine/internal/model"
)

func rewardLevels(granted []model.GrantedReward) []int {
	var res []int
	for _, g := range granted {
		if g.Kind == model.RewardKindLevel {
			res = append(res, g.Reward.Level)
		}
	}
	return res
}

func TestAddXP_MultiLevelJump(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	res, err := f.svc.AddXP(ctx, "u1", 2600, "exam")
	require.NoError(t, err)

	assert.Equal(t, int64(2600), res.NewXP)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 3, res.NewLevel)
	assert.Equal(t, []int{2, 3}, rewardLevels(res.RewardsGranted))
	assert.Equal(t, int64(100+200+300), res.Account.Coins)
	assert.Equal(t, int64(10+15+20), res.Account.Gems)
	assert.Equal(t, 3, res.Account.Level)
	assertConserved(t, res.Account)

	again, err := f.svc.AddXP(ctx, "u1", 100, "exam")
	require.NoError(t, err)
	assert.Equal(t, 3, again.NewLevel)
	assert.Empty(t, again.RewardsGranted)
	assert.Equal(t, res.Account.Coins, again.Account.Coins)
}

func TestAddXP_LevelRewardsAreLedgered(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.AddXP(ctx, "u1", 1000, "exam")
	require.NoError(t, err)

	txns, err := f.svc.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)

	var sources []string
	for _, tx := range txns {
		sources = append(sources, string(tx.Currency)+":"+tx.Source)
	}
	assert.ElementsMatch(t, []string{
		"coins:" + SourceStartingGrant,
		"gems:" + SourceStartingGrant,
		"xp:exam",
		"coins:level_up:2",
		"gems:level_up:2",
	}, sources)
}

func TestAddXP_ZeroRecomputesWithoutGranting(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.AddXP(ctx, "u1", 1200, "exam")
	require.NoError(t, err)
	before, err := f.svc.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)

	res, err := f.svc.AddXP(ctx, "u1", 0, "check")
	require.NoError(t, err)
	assert.Equal(t, 2, res.OldLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.Empty(t, res.RewardsGranted)

	after, err := f.svc.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestAddXP_CatalogReplacedWithHigherThresholds(t *testing.T) {
	f := newFixture(t, `
levels:
  thresholds: [0, 1000, 2500]
  rewards:
    2: {coins: 200}
    3: {coins: 300}
`)
	ctx := context.Background()

	res, err := f.svc.AddXP(ctx, "u1", 2600, "exam")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, rewardLevels(res.RewardsGranted))
	assert.Equal(t, int64(500), res.Account.Coins)

	harder, err := catalog.Parse([]byte(`
levels:
  thresholds: [0, 2000, 5000]
  rewards:
    2: {coins: 200}
    3: {coins: 300}
`))
	require.NoError(t, err)
	f.catalogs.Replace(harder)

	res, err = f.svc.AddXP(ctx, "u1", 0, "check")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewLevel)
	assert.Empty(t, res.RewardsGranted)

	res, err = f.svc.AddXP(ctx, "u1", 2400, "exam")
	require.NoError(t, err)
	assert.Equal(t, 2, res.OldLevel)
	assert.Equal(t, 3, res.NewLevel)
	assert.Empty(t, res.RewardsGranted, "level rewards must not be granted twice")
	assert.Equal(t, int64(500), res.Account.Coins)
	assertConserved(t, res.Account)

	acc, err := f.svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.Account.Level)
}

func TestAddXP_NegativeAmount(t *testing.T) {
	f := newFixture(t, testCatalog)

	_, err := f.svc.AddXP(context.Background(), "u1", -1, "cheat")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAddXP_CascadingLevelRewards(t *testing.T) {
	f := newFixture(t, `
levels:
  thresholds: [0, 100, 300, 600, 1000]
  rewards:
    2: {xp: 250, coins: 1}
    3: {coins: 3}
    4: {xp: 500, coins: 4}
    5: {coins: 5}
`)
	ctx := context.Background()

	res, err := f.svc.AddXP(ctx, "u1", 100, "lesson")
	require.NoError(t, err)

	// 100 → уровень 2 (+250) → 350 → уровень 3 → стоп; 4-й требует 600.
	assert.Equal(t, int64(350), res.NewXP)
	assert.Equal(t, 3, res.NewLevel)
	assert.Equal(t, []int{2, 3}, rewardLevels(res.RewardsGranted))

	res, err = f.svc.AddXP(ctx, "u1", 250, "lesson")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), res.NewXP)
	assert.Equal(t, 5, res.NewLevel)
	assert.Equal(t, []int{4, 5}, rewardLevels(res.RewardsGranted))
	assert.Equal(t, int64(1+3+4+5), res.Account.Coins)
}

func TestAddXP_MaxLevelStops(t *testing.T) {
	f := newFixture(t, testCatalog)

	res, err := f.svc.AddXP(context.Background(), "u1", 1_000_000, "grind")
	require.NoError(t, err)
	assert.Equal(t, 5, res.NewLevel)
	assert.Equal(t, []int{2, 3, 4, 5}, rewardLevels(res.RewardsGranted))
}

func TestLevelProgress(t *testing.T) {
	f := newFixture(t, testCatalog)
	ctx := context.Background()

	_, err := f.svc.LevelProgress(ctx, "ghost")
	require.Error(t, err)

	_, err = f.svc.AddXP(ctx, "u1", 1200, "exam")
	require.NoError(t, err)

	p, err := f.svc.LevelProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, LevelProgress{
		Level:          2,
		XP:             1200,
		LevelThreshold: 1000,
		NextThreshold:  2500,
		XPToNext:       1300,
	}, *p)

	_, err = f.svc.AddXP(ctx, "u1", 20000, "exam")
	require.NoError(t, err)

	summary, err := f.svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, summary.Progress.MaxLevel)
	assert.Equal(t, 5, summary.Account.Level)
	assert.Zero(t, summary.Progress.XPToNext)
}
