package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
	"github.com/mmeshcher/gamification-engine/internal/service"
	"github.com/mmeshcher/gamification-engine/internal/validation"
)

type accountResponse struct {
	AccountID        string `json:"accountId"`
	Coins            int64  `json:"coins"`
	Gems             int64  `json:"gems"`
	TotalEarnedCoins int64  `json:"totalEarnedCoins"`
	TotalEarnedGems  int64  `json:"totalEarnedGems"`
	TotalSpentCoins  int64  `json:"totalSpentCoins"`
	TotalSpentGems   int64  `json:"totalSpentGems"`
	XP               int64  `json:"xp"`
	Level            int    `json:"level"`
}

func toAccount(a model.Account) accountResponse {
	return accountResponse{
		AccountID:        a.AccountID,
		Coins:            a.Coins,
		Gems:             a.Gems,
		TotalEarnedCoins: a.TotalEarnedCoins,
		TotalEarnedGems:  a.TotalEarnedGems,
		TotalSpentCoins:  a.TotalSpentCoins,
		TotalSpentGems:   a.TotalSpentGems,
		XP:               a.XP,
		Level:            a.Level,
	}
}

type progressResponse struct {
	Level          int   `json:"level"`
	XP             int64 `json:"xp"`
	LevelThreshold int64 `json:"levelThreshold"`
	NextThreshold  int64 `json:"nextThreshold,omitempty"`
	XPToNext       int64 `json:"xpToNext"`
	MaxLevel       bool  `json:"maxLevel"`
}

type accountSummaryResponse struct {
	accountResponse
	Progress progressResponse `json:"progress"`
}

type boostResponse struct {
	XPMultiplier   string `json:"xpMultiplier"`
	CoinMultiplier string `json:"coinMultiplier"`
	DurationHours  int    `json:"bonusDurationHours"`
}

type rewardResponse struct {
	Kind          string         `json:"kind"`
	Level         int            `json:"level,omitempty"`
	StreakType    string         `json:"streakType,omitempty"`
	Milestone     int            `json:"milestone,omitempty"`
	XP            int64          `json:"xpReward,omitempty"`
	Coins         int64          `json:"coinReward,omitempty"`
	Gems          int64          `json:"gemReward,omitempty"`
	Boost         *boostResponse `json:"boost,omitempty"`
	Title         *string        `json:"titleReward,omitempty"`
	PowerUpID     *string        `json:"powerUpId,omitempty"`
	AchievementID *string        `json:"achievementId,omitempty"`
}

func toRewards(granted []model.GrantedReward) []rewardResponse {
	res := make([]rewardResponse, 0, len(granted))
	for _, g := range granted {
		r := g.Reward
		item := rewardResponse{
			Kind:          string(g.Kind),
			Level:         r.Level,
			StreakType:    string(r.StreakType),
			Milestone:     r.Milestone,
			XP:            r.XP,
			Coins:         r.Coins,
			Gems:          r.Gems,
			Title:         r.Title,
			PowerUpID:     r.PowerUpID,
			AchievementID: r.AchievementID,
		}
		if r.Boost != nil {
			item.Boost = &boostResponse{
				XPMultiplier:   r.Boost.XPMultiplier.String(),
				CoinMultiplier: r.Boost.CoinMultiplier.String(),
				DurationHours:  int(r.Boost.Duration / time.Hour),
			}
		}
		res = append(res, item)
	}
	return res
}

type streakResponse struct {
	StreakType         string  `json:"streakType"`
	CurrentCount       int     `json:"currentCount"`
	LongestCount       int     `json:"longestCount"`
	Status             string  `json:"status"`
	LastActivityDate   *string `json:"lastActivityDate,omitempty"`
	FreezeCount        int     `json:"freezeCount"`
	FrozenUntil        *string `json:"frozenUntil,omitempty"`
	MilestonesAchieved []int   `json:"milestonesAchieved"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func toStreak(r model.StreakRecord) streakResponse {
	achieved := make([]int, 0, len(r.Milestones))
	for m, n := range r.Milestones {
		if n > 0 {
			achieved = append(achieved, m)
		}
	}
	slices.Sort(achieved)
	return streakResponse{
		StreakType:         string(r.StreakType),
		CurrentCount:       r.CurrentCount,
		LongestCount:       r.LongestCount,
		Status:             string(r.Status),
		LastActivityDate:   formatDate(r.LastActivityDate),
		FreezeCount:        r.FreezeCount,
		FrozenUntil:        formatDate(r.FrozenUntil),
		MilestonesAchieved: achieved,
	}
}

type transactionResponse struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type shopItemResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Rarity          string     `json:"rarity"`
	Cost            model.Cost `json:"cost"`
	DiscountPercent int        `json:"discount,omitempty"`
	EffectiveCost   model.Cost `json:"effectiveCost"`
	AvailableFrom   string     `json:"availableFrom,omitempty"`
	AvailableUntil  string     `json:"availableUntil,omitempty"`
	Available       bool       `json:"available"`
}

type receiptResponse struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"itemId"`
	Charged     model.Cost      `json:"charged"`
	Account     accountResponse `json:"account"`
	PurchasedAt string          `json:"purchasedAt"`
}

type leaderboardResponse struct {
	Rank      int    `json:"rank"`
	AccountID string `json:"accountId"`
	Value     int64  `json:"value"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку сервиса в HTTP-статус. Неизвестные ошибки
// журналируются и возвращаются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validation.ErrInvalidRequest),
		errors.Is(err, service.ErrUnknownCurrency),
		errors.Is(err, service.ErrUnknownStreakType),
		errors.Is(err, service.ErrUnknownMetric):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, service.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, service.ErrItemNotAvailable):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrConcurrentModification):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}
