// Package catalog содержит неизменяемый каталог наград: кривую уровней,
// награды за уровни и пороги серий, а также товары магазина.
package catalog

import (
	"sort"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

// Catalog — скомпилированный снимок каталога. После создания не изменяется,
// поэтому безопасен для одновременного чтения.
type Catalog struct {
	version      int
	thresholds   []int64
	levelRewards map[int]model.RewardDefinition
	activity     map[model.StreakType]model.RewardDefinition
	milestones   map[model.StreakType][]model.RewardDefinition
	shop         map[string]model.ShopItem
	shopOrder    []string
}

// Version возвращает версию каталога из источника.
func (c *Catalog) Version() int {
	return c.version
}

// MaxLevel возвращает наибольший достижимый уровень.
func (c *Catalog) MaxLevel() int {
	return len(c.thresholds)
}

// Threshold возвращает опыт, необходимый для уровня level.
func (c *Catalog) Threshold(level int) (int64, bool) {
	if level < 1 || level > len(c.thresholds) {
		return 0, false
	}
	return c.thresholds[level-1], true
}

// LevelFor возвращает наибольший уровень n, для которого xp >= L(n).
func (c *Catalog) LevelFor(xp int64) int {
	if xp < 0 {
		return 1
	}
	return sort.Search(len(c.thresholds), func(i int) bool {
		return c.thresholds[i] > xp
	})
}

// LevelReward возвращает награду за достижение уровня.
func (c *Catalog) LevelReward(level int) (model.RewardDefinition, bool) {
	r, ok := c.levelRewards[level]
	return r, ok
}

// ActivityReward возвращает награду за каждое засчитанное посещение серии.
func (c *Catalog) ActivityReward(t model.StreakType) (model.RewardDefinition, bool) {
	r, ok := c.activity[t]
	return r, ok
}

// MilestoneRewards возвращает награды за пороги серии в порядке возрастания порога.
func (c *Catalog) MilestoneRewards(t model.StreakType) []model.RewardDefinition {
	src := c.milestones[t]
	res := make([]model.RewardDefinition, len(src))
	copy(res, src)
	return res
}

// ShopItem возвращает товар по идентификатору.
func (c *Catalog) ShopItem(id string) (model.ShopItem, bool) {
	it, ok := c.shop[id]
	return it, ok
}

// ShopItems возвращает все товары в порядке их объявления.
func (c *Catalog) ShopItems() []model.ShopItem {
	res := make([]model.ShopItem, 0, len(c.shopOrder))
	for _, id := range c.shopOrder {
		res = append(res, c.shop[id])
	}
	return res
}
