package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

func TestCurveThresholds(t *testing.T) {
	c := Curve{Base: 1000, Multiplier: decimal.RequireFromString("2.5"), MaxLevel: 5}

	got, err := c.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1000, 2500, 6250, 15625}, got)
}

func TestCurveThresholds_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		curve Curve
	}{
		{name: "zero max level", curve: Curve{Base: 1000, Multiplier: decimal.NewFromInt(2), MaxLevel: 0}},
		{name: "zero base", curve: Curve{Base: 0, Multiplier: decimal.NewFromInt(2), MaxLevel: 3}},
		{name: "flat multiplier", curve: Curve{Base: 1000, Multiplier: decimal.NewFromInt(1), MaxLevel: 3}},
		{name: "not strictly increasing after floor", curve: Curve{Base: 1, Multiplier: decimal.RequireFromString("1.1"), MaxLevel: 4}},
		{name: "overflow", curve: Curve{Base: 1000, Multiplier: decimal.NewFromInt(10), MaxLevel: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.curve.Thresholds()
			assert.Error(t, err)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 1, c.Version())
	assert.Equal(t, DefaultMaxLevel, c.MaxLevel())

	l2, ok := c.Threshold(2)
	require.True(t, ok)
	assert.Equal(t, int64(1000), l2)

	start, ok := c.LevelReward(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), start.Coins)
	assert.Equal(t, int64(10), start.Gems)

	r2, ok := c.LevelReward(2)
	require.True(t, ok)
	assert.Equal(t, int64(200), r2.Coins)
	assert.Equal(t, int64(15), r2.Gems)

	_, ok = c.LevelReward(25)
	assert.False(t, ok)

	r10, ok := c.LevelReward(10)
	require.True(t, ok)
	require.NotNil(t, r10.Boost)
	assert.True(t, r10.Boost.XPMultiplier.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 24*time.Hour, r10.Boost.Duration)
	require.NotNil(t, r10.Title)
	assert.Equal(t, "Sage", *r10.Title)

	ms := c.MilestoneRewards(model.StreakDaily)
	require.NotEmpty(t, ms)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Milestone, ms[i].Milestone)
	}

	_, ok = c.ActivityReward(model.StreakWeekly)
	assert.True(t, ok)

	item, ok := c.ShopItem("avatar_owl")
	require.True(t, ok)
	assert.Equal(t, model.Cost{Coins: 800}, item.EffectiveCost())
	assert.Len(t, c.ShopItems(), 5)
}

func TestLevelFor(t *testing.T) {
	c, err := Parse([]byte(`
levels:
  thresholds: [0, 1000, 2500]
`))
	require.NoError(t, err)

	tests := []struct {
		xp    int64
		level int
	}{
		{xp: 0, level: 1},
		{xp: 999, level: 1},
		{xp: 1000, level: 2},
		{xp: 2499, level: 2},
		{xp: 2500, level: 3},
		{xp: 1 << 40, level: 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, c.LevelFor(tt.xp), "xp=%d", tt.xp)
	}
}

func TestMilestoneRewardsReturnsCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	ms := c.MilestoneRewards(model.StreakDaily)
	ms[0].Coins = 999999

	again := c.MilestoneRewards(model.StreakDaily)
	assert.NotEqual(t, int64(999999), again[0].Coins)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "levels: ["},
		{name: "thresholds not starting at zero", yaml: "levels: {thresholds: [10, 20]}"},
		{name: "thresholds decreasing", yaml: "levels: {thresholds: [0, 20, 10]}"},
		{name: "reward for undefined level", yaml: "levels: {thresholds: [0, 10], rewards: {3: {coins: 1}}}"},
		{name: "negative reward", yaml: "levels: {thresholds: [0, 10], rewards: {2: {coins: -1}}}"},
		{name: "unknown streak type", yaml: "streaks: {hourly: {milestones: [{milestone: 1}]}}"},
		{name: "duplicate milestone", yaml: "streaks: {daily: {milestones: [{milestone: 3}, {milestone: 3}]}}"},
		{name: "zero milestone", yaml: "streaks: {daily: {milestones: [{milestone: 0}]}}"},
		{name: "bad multiplier", yaml: "levels: {curve: {multiplier: abc}}"},
		{name: "shop item without id", yaml: "shop: [{coins: 10}]"},
		{name: "shop item free", yaml: "shop: [{id: a}]"},
		{name: "shop discount too big", yaml: "shop: [{id: a, coins: 10, discount: 101}]"},
		{name: "shop duplicate", yaml: "shop: [{id: a, coins: 10}, {id: a, coins: 5}]"},
		{name: "shop bad rarity", yaml: "shop: [{id: a, coins: 10, rarity: mythic}]"},
		{name: "shop inverted window", yaml: `shop: [{id: a, coins: 10, available_from: "2026-02-01T00:00:00Z", available_until: "2026-01-01T00:00:00Z"}]`},
		{name: "boost without duration", yaml: `levels: {rewards: {2: {boost: {xp_multiplier: "2"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestShopItemWindow(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	item, ok := c.ShopItem("theme_autumn")
	require.True(t, ok)
	require.NotNil(t, item.Window)

	assert.False(t, item.Available(time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)))
	assert.True(t, item.Available(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, item.Available(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestProviderReplace(t *testing.T) {
	first, err := Default()
	require.NoError(t, err)
	second, err := Parse([]byte("version: 2"))
	require.NoError(t, err)

	p := NewProvider(first)
	assert.Same(t, first, p.Current())

	p.Replace(nil)
	assert.Same(t, first, p.Current())

	p.Replace(second)
	assert.Equal(t, 2, p.Current().Version())
}
