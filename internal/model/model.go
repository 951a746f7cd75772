// Package model содержит доменные сущности движка прогрессии и виртуальной экономики.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency описывает единицу учёта в журнале операций.
type Currency string

const (
	CurrencyCoins Currency = "coins"
	CurrencyGems  Currency = "gems"
	// CurrencyXP используется только в журнале: начисления опыта учитываются так же, как валюта.
	CurrencyXP Currency = "xp"
)

// Direction описывает направление операции в журнале.
type Direction string

const (
	DirectionEarn  Direction = "earn"
	DirectionSpend Direction = "spend"
)

// StreakType описывает период серии активности.
type StreakType string

const (
	StreakDaily   StreakType = "daily"
	StreakWeekly  StreakType = "weekly"
	StreakMonthly StreakType = "monthly"
)

// StreakTypes перечисляет поддерживаемые типы серий.
var StreakTypes = []StreakType{StreakDaily, StreakWeekly, StreakMonthly}

// Valid сообщает, известен ли тип серии.
func (t StreakType) Valid() bool {
	switch t {
	case StreakDaily, StreakWeekly, StreakMonthly:
		return true
	}
	return false
}

// StreakStatus описывает состояние серии.
type StreakStatus string

const (
	StreakActive StreakStatus = "active"
	StreakFrozen StreakStatus = "frozen"
	StreakBroken StreakStatus = "broken"
)

// Account хранит балансы, накопительные счётчики и опыт пользователя.
type Account struct {
	AccountID        string
	Coins            int64
	Gems             int64
	TotalEarnedCoins int64
	TotalEarnedGems  int64
	TotalSpentCoins  int64
	TotalSpentGems   int64
	XP               int64
	// Level — наибольший уровень, за который выдана награда. Отображаемый
	// уровень вычисляется по опыту и текущему каталогу.
	Level            int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balance возвращает текущий баланс в указанной валюте.
func (a Account) Balance(c Currency) int64 {
	switch c {
	case CurrencyCoins:
		return a.Coins
	case CurrencyGems:
		return a.Gems
	case CurrencyXP:
		return a.XP
	}
	return 0
}

// StreakRecord хранит состояние одной серии активности пользователя.
type StreakRecord struct {
	AccountID        string
	StreakType       StreakType
	CurrentCount     int
	LongestCount     int
	Status           StreakStatus
	LastActivityDate *time.Time
	FreezeCount      int
	FrozenUntil      *time.Time
	// Milestones: порог → сколько раз награда за него была выдана.
	Milestones map[int]int
	UpdatedAt  time.Time
}

// Achieved сообщает, была ли хоть раз выдана награда за порог.
func (r StreakRecord) Achieved(milestone int) bool {
	return r.Milestones[milestone] > 0
}

// Clone возвращает глубокую копию записи.
func (r StreakRecord) Clone() StreakRecord {
	c := r
	c.Milestones = make(map[int]int, len(r.Milestones))
	for k, v := range r.Milestones {
		c.Milestones[k] = v
	}
	if r.LastActivityDate != nil {
		d := *r.LastActivityDate
		c.LastActivityDate = &d
	}
	if r.FrozenUntil != nil {
		d := *r.FrozenUntil
		c.FrozenUntil = &d
	}
	return c
}

// Transaction описывает неизменяемую запись журнала операций.
type Transaction struct {
	ID        string
	AccountID string
	Direction Direction
	Currency  Currency
	Amount    int64
	Source    string
	CreatedAt time.Time
}

// Boost описывает временный множитель, выдаваемый вместе с наградой.
type Boost struct {
	XPMultiplier   decimal.Decimal
	CoinMultiplier decimal.Decimal
	Duration       time.Duration
}

// RewardDefinition описывает награду за уровень или порог серии.
// Нулевые XP/Coins/Gems означают отсутствие начисления этого вида.
type RewardDefinition struct {
	Level         int
	StreakType    StreakType
	Milestone     int
	Repeatable    bool
	XP            int64
	Coins         int64
	Gems          int64
	Boost         *Boost
	Title         *string
	PowerUpID     *string
	AchievementID *string
}

func (r RewardDefinition) HasXP() bool    { return r.XP > 0 }
func (r RewardDefinition) HasCoins() bool { return r.Coins > 0 }
func (r RewardDefinition) HasGems() bool  { return r.Gems > 0 }

// RewardKind описывает, за что была выдана награда.
type RewardKind string

const (
	RewardKindLevel     RewardKind = "level"
	RewardKindMilestone RewardKind = "milestone"
	RewardKindActivity  RewardKind = "activity"
)

// GrantedReward описывает фактически выданную награду.
type GrantedReward struct {
	Kind   RewardKind
	Reward RewardDefinition
}

// Cost описывает стоимость в обеих валютах.
type Cost struct {
	Coins int64 `json:"coins"`
	Gems  int64 `json:"gems"`
}

// IsZero сообщает, что стоимость нулевая.
func (c Cost) IsZero() bool {
	return c.Coins == 0 && c.Gems == 0
}

// Rarity описывает редкость товара.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Window задаёт интервал продажи ограниченного товара. Нулевая граница означает отсутствие ограничения.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, открыто ли окно продажи в момент t.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// ShopItem описывает товар магазина.
type ShopItem struct {
	ID              string
	Name            string
	Cost            Cost
	DiscountPercent int
	Rarity          Rarity
	Window          *Window
}

// Available сообщает, можно ли купить товар в момент t.
func (i ShopItem) Available(t time.Time) bool {
	return i.Window == nil || i.Window.Contains(t)
}

// EffectiveCost возвращает стоимость с учётом скидки, округлённую вниз.
// Ненулевая цена после скидки не опускается ниже единицы.
func (i ShopItem) EffectiveCost() Cost {
	if i.DiscountPercent <= 0 {
		return i.Cost
	}
	factor := decimal.NewFromInt(int64(100 - i.DiscountPercent)).Div(decimal.NewFromInt(100))
	return Cost{
		Coins: discounted(i.Cost.Coins, factor),
		Gems:  discounted(i.Cost.Gems, factor),
	}
}

func discounted(price int64, factor decimal.Decimal) int64 {
	if price <= 0 {
		return 0
	}
	v := decimal.NewFromInt(price).Mul(factor).Floor().IntPart()
	if v < 1 {
		return 1
	}
	return v
}

// Receipt подтверждает выполненную покупку.
type Receipt struct {
	ID          string
	AccountID   string
	ItemID      string
	Charged     Cost
	Account     Account
	PurchasedAt time.Time
}
