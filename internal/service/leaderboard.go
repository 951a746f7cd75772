package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// LeaderboardEntry — строка таблицы лидеров.
type LeaderboardEntry struct {
	Rank      int
	AccountID string
	Value     int64
}

// Leaderboard строит таблицу лидеров по метрике xp, coins, gems или
// streak_<тип>. Равные значения получают одинаковое место (1, 2, 2, 4).
func (s *Service) Leaderboard(ctx context.Context, metric string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	var entries []LeaderboardEntry
	switch m := repository.Metric(metric); m {
	case repository.MetricXP, repository.MetricCoins, repository.MetricGems:
		accounts, err := s.repo.TopAccounts(ctx, m, limit)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			entries = append(entries, LeaderboardEntry{AccountID: a.AccountID, Value: a.Balance(model.Currency(m))})
		}
	default:
		name, ok := strings.CutPrefix(metric, "streak_")
		t := model.StreakType(name)
		if !ok || !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
		}
		recs, err := s.repo.TopStreaks(ctx, t, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			entries = append(entries, LeaderboardEntry{AccountID: r.AccountID, Value: int64(r.CurrentCount)})
		}
	}

	rank(entries)
	return entries, nil
}

// rank проставляет места по убыванию Value: равные значения делят место,
// следующее место пропускает занятые.
func rank(entries []LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].Value == entries[i-1].Value {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
