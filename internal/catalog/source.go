package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

//go:embed default.yaml
var defaultCatalog []byte

type fileCatalog struct {
	Version int                   `yaml:"version"`
	Levels  fileLevels            `yaml:"levels"`
	Streaks map[string]fileStreak `yaml:"streaks"`
	Shop    []fileShopItem        `yaml:"shop"`
}

type fileLevels struct {
	Curve      *fileCurve         `yaml:"curve"`
	Thresholds []int64            `yaml:"thresholds"`
	Rewards    map[int]fileReward `yaml:"rewards"`
}

type fileCurve struct {
	Base       int64  `yaml:"base"`
	Multiplier string `yaml:"multiplier"`
	MaxLevel   int    `yaml:"max_level"`
}

type fileStreak struct {
	Activity   *fileReward     `yaml:"activity"`
	Milestones []fileMilestone `yaml:"milestones"`
}

type fileMilestone struct {
	Milestone  int  `yaml:"milestone"`
	Repeatable bool `yaml:"repeatable"`
	fileReward `yaml:",inline"`
}

type fileReward struct {
	XP          int64      `yaml:"xp"`
	Coins       int64      `yaml:"coins"`
	Gems        int64      `yaml:"gems"`
	Boost       *fileBoost `yaml:"boost"`
	Title       *string    `yaml:"title"`
	PowerUp     *string    `yaml:"power_up"`
	Achievement *string    `yaml:"achievement"`
}

type fileBoost struct {
	XPMultiplier   string `yaml:"xp_multiplier"`
	CoinMultiplier string `yaml:"coin_multiplier"`
	DurationHours  int    `yaml:"duration_hours"`
}

type fileShopItem struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Coins          int64  `yaml:"coins"`
	Gems           int64  `yaml:"gems"`
	Discount       int    `yaml:"discount"`
	Rarity         string `yaml:"rarity"`
	AvailableFrom  string `yaml:"available_from"`
	AvailableUntil string `yaml:"available_until"`
}

// Default возвращает каталог, встроенный в бинарный файл.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile читает и компилирует каталог из YAML-файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML-описание каталога и проверяет его согласованность.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return compile(fc)
}

func compile(fc fileCatalog) (*Catalog, error) {
	c := &Catalog{
		version:      fc.Version,
		levelRewards: make(map[int]model.RewardDefinition, len(fc.Levels.Rewards)),
		activity:     make(map[model.StreakType]model.RewardDefinition),
		milestones:   make(map[model.StreakType][]model.RewardDefinition),
		shop:         make(map[string]model.ShopItem, len(fc.Shop)),
	}

	thresholds, err := compileThresholds(fc.Levels)
	if err != nil {
		return nil, err
	}
	c.thresholds = thresholds

	for level, fr := range fc.Levels.Rewards {
		if level < 1 || level > len(thresholds) {
			return nil, fmt.Errorf("reward for undefined level %d", level)
		}
		r, err := fr.toModel()
		if err != nil {
			return nil, fmt.Errorf("level %d reward: %w", level, err)
		}
		r.Level = level
		c.levelRewards[level] = r
	}

	for name, fs := range fc.Streaks {
		st := model.StreakType(name)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown streak type %q", name)
		}
		if fs.Activity != nil {
			r, err := fs.Activity.toModel()
			if err != nil {
				return nil, fmt.Errorf("%s activity reward: %w", name, err)
			}
			r.StreakType = st
			c.activity[st] = r
		}

		seen := make(map[int]struct{}, len(fs.Milestones))
		list := make([]model.RewardDefinition, 0, len(fs.Milestones))
		for _, fm := range fs.Milestones {
			if fm.Milestone < 1 {
				return nil, fmt.Errorf("%s milestone must be positive, got %d", name, fm.Milestone)
			}
			if _, dup := seen[fm.Milestone]; dup {
				return nil, fmt.Errorf("%s milestone %d declared twice", name, fm.Milestone)
			}
			seen[fm.Milestone] = struct{}{}

			r, err := fm.fileReward.toModel()
			if err != nil {
				return nil, fmt.Errorf("%s milestone %d: %w", name, fm.Milestone, err)
			}
			r.StreakType = st
			r.Milestone = fm.Milestone
			r.Repeatable = fm.Repeatable
			list = append(list, r)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Milestone < list[j].Milestone })
		c.milestones[st] = list
	}

	for _, fi := range fc.Shop {
		it, err := fi.toModel()
		if err != nil {
			return nil, fmt.Errorf("shop item %q: %w", fi.ID, err)
		}
		if _, dup := c.shop[it.ID]; dup {
			return nil, fmt.Errorf("shop item %q declared twice", it.ID)
		}
		c.shop[it.ID] = it
		c.shopOrder = append(c.shopOrder, it.ID)
	}

	return c, nil
}

func compileThresholds(fl fileLevels) ([]int64, error) {
	if len(fl.Thresholds) > 0 {
		t := make([]int64, len(fl.Thresholds))
		copy(t, fl.Thresholds)
		if err := checkThresholds(t); err != nil {
			return nil, err
		}
		return t, nil
	}

	curve := Curve{
		Base:       DefaultCurveBase,
		Multiplier: decimal.RequireFromString(DefaultCurveMultiplier),
		MaxLevel:   DefaultMaxLevel,
	}
	if fc := fl.Curve; fc != nil {
		if fc.Base != 0 {
			curve.Base = fc.Base
		}
		if fc.Multiplier != "" {
			m, err := decimal.NewFromString(fc.Multiplier)
			if err != nil {
				return nil, fmt.Errorf("curve multiplier: %w", err)
			}
			curve.Multiplier = m
		}
		if fc.MaxLevel != 0 {
			curve.MaxLevel = fc.MaxLevel
		}
	}
	return curve.Thresholds()
}

func (fr fileReward) toModel() (model.RewardDefinition, error) {
	if fr.XP < 0 || fr.Coins < 0 || fr.Gems < 0 {
		return model.RewardDefinition{}, fmt.Errorf("reward amounts must not be negative")
	}
	r := model.RewardDefinition{
		XP:            fr.XP,
		Coins:         fr.Coins,
		Gems:          fr.Gems,
		Title:         fr.Title,
		PowerUpID:     fr.PowerUp,
		AchievementID: fr.Achievement,
	}
	if fr.Boost != nil {
		b, err := fr.Boost.toModel()
		if err != nil {
			return model.RewardDefinition{}, err
		}
		r.Boost = b
	}
	return r, nil
}

func (fb fileBoost) toModel() (*model.Boost, error) {
	b := &model.Boost{
		XPMultiplier:   decimal.NewFromInt(1),
		CoinMultiplier: decimal.NewFromInt(1),
		Duration:       time.Duration(fb.DurationHours) * time.Hour,
	}
	if fb.XPMultiplier != "" {
		m, err := decimal.NewFromString(fb.XPMultiplier)
		if err != nil {
			return nil, fmt.Errorf("xp multiplier: %w", err)
		}
		b.XPMultiplier = m
	}
	if fb.CoinMultiplier != "" {
		m, err := decimal.NewFromString(fb.CoinMultiplier)
		if err != nil {
			return nil, fmt.Errorf("coin multiplier: %w", err)
		}
		b.CoinMultiplier = m
	}
	if fb.DurationHours <= 0 {
		return nil, fmt.Errorf("boost duration must be positive")
	}
	return b, nil
}

func (fi fileShopItem) toModel() (model.ShopItem, error) {
	if fi.ID == "" {
		return model.ShopItem{}, fmt.Errorf("id is required")
	}
	if fi.Coins < 0 || fi.Gems < 0 {
		return model.ShopItem{}, fmt.Errorf("cost must not be negative")
	}
	if fi.Coins == 0 && fi.Gems == 0 {
		return model.ShopItem{}, fmt.Errorf("cost must not be zero")
	}
	if fi.Discount < 0 || fi.Discount > 99 {
		return model.ShopItem{}, fmt.Errorf("discount must be within 0..99, got %d", fi.Discount)
	}

	it := model.ShopItem{
		ID:              fi.ID,
		Name:            fi.Name,
		Cost:            model.Cost{Coins: fi.Coins, Gems: fi.Gems},
		DiscountPercent: fi.Discount,
		Rarity:          model.RarityCommon,
	}
	if fi.Rarity != "" {
		switch r := model.Rarity(fi.Rarity); r {
		case model.RarityCommon, model.RarityRare, model.RarityEpic, model.RarityLegendary:
			it.Rarity = r
		default:
			return model.ShopItem{}, fmt.Errorf("unknown rarity %q", fi.Rarity)
		}
	}

	if fi.AvailableFrom != "" || fi.AvailableUntil != "" {
		w := &model.Window{}
		if fi.AvailableFrom != "" {
			t, err := time.Parse(time.RFC3339, fi.AvailableFrom)
			if err != nil {
				return model.ShopItem{}, fmt.Errorf("available_from: %w", err)
			}
			w.Start = t
		}
		if fi.AvailableUntil != "" {
			t, err := time.Parse(time.RFC3339, fi.AvailableUntil)
			if err != nil {
				return model.ShopItem{}, fmt.Errorf("available_until: %w", err)
			}
			w.End = t
		}
		if !w.Start.IsZero() && !w.End.IsZero() && !w.End.After(w.Start) {
			return model.ShopItem{}, fmt.Errorf("window end must be after start")
		}
		it.Window = w
	}

	return it, nil
}
