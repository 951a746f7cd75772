package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/gamification-engine/internal/catalog"
	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

// StreakResult описывает итог отметки активности.
type StreakResult struct {
	Record model.StreakRecord
	// Counted равно false, если активность в этом периоде уже была засчитана.
	Counted        bool
	FreezeConsumed int
	RewardsGranted []model.GrantedReward
	Account        model.Account
}

// RecordActivity засчитывает активность за текущий период серии. Повторный вызов
// в том же периоде ничего не меняет и возвращает запись как есть. Проверка периода
// и выдача наград выполняются в одной единице работы.
func (s *Service) RecordActivity(ctx context.Context, accountID string, t model.StreakType) (*StreakResult, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStreakType, t)
	}

	cat := s.catalogs.Current()
	now := s.now()
	today := s.today()
	var res StreakResult
	err := s.repo.Atomically(ctx, accountID, true, func(tx repository.Tx) error {
		res = StreakResult{}
		if err := s.open(ctx, tx, cat, now); err != nil {
			return err
		}

		rec, err := tx.Streak(ctx, t)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &model.StreakRecord{AccountID: accountID, StreakType: t, Status: model.StreakActive}
		}
		if rec.Milestones == nil {
			rec.Milestones = make(map[int]int)
		}

		if rec.LastActivityDate == nil {
			rec.CurrentCount = 1
		} else {
			gap := periodIndex(t, today) - periodIndex(t, *rec.LastActivityDate)
			switch {
			case gap <= 0:
				res.Record = *rec
				res.Account = tx.Account()
				return nil
			case gap == 1:
				rec.CurrentCount++
			case int(gap-1) <= rec.FreezeCount:
				missed := int(gap - 1)
				rec.FreezeCount -= missed
				rec.CurrentCount++
				until := today.AddDate(0, 0, -1)
				rec.FrozenUntil = &until
				res.FreezeConsumed = missed
			default:
				rec.CurrentCount = 1
			}
		}

		day := today
		rec.LastActivityDate = &day
		rec.Status = model.StreakActive
		rec.LongestCount = max(rec.LongestCount, rec.CurrentCount)
		rec.UpdatedAt = now
		res.Counted = true

		granted, err := grantStreakRewards(ctx, tx, cat, rec, now)
		if err != nil {
			return err
		}
		res.RewardsGranted = granted

		if err := tx.SaveStreak(ctx, *rec); err != nil {
			return err
		}
		res.Record = *rec
		res.Account = tx.Account()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// grantStreakRewards выдаёт награду за активность и проходит пороги серии по
// возрастанию. Неповторяемый порог выдаётся один раз за всё время, повторяемый —
// каждый раз, когда счётчик становится равен порогу.
func grantStreakRewards(ctx context.Context, tx repository.Tx, cat *catalog.Catalog, rec *model.StreakRecord, now time.Time) ([]model.GrantedReward, error) {
	var res []model.GrantedReward

	if r, ok := cat.ActivityReward(rec.StreakType); ok {
		levels, err := grant(ctx, tx, cat, r, fmt.Sprintf("streak:%s:activity", rec.StreakType), now)
		if err != nil {
			return nil, err
		}
		res = append(res, model.GrantedReward{Kind: model.RewardKindActivity, Reward: r})
		res = append(res, levels...)
	}

	for _, m := range cat.MilestoneRewards(rec.StreakType) {
		if m.Milestone > rec.CurrentCount {
			break
		}
		if m.Repeatable {
			if m.Milestone != rec.CurrentCount {
				continue
			}
		} else if rec.Achieved(m.Milestone) {
			continue
		}

		levels, err := grant(ctx, tx, cat, m, fmt.Sprintf("streak:%s:%d", rec.StreakType, m.Milestone), now)
		if err != nil {
			return nil, err
		}
		rec.Milestones[m.Milestone]++
		res = append(res, model.GrantedReward{Kind: model.RewardKindMilestone, Reward: m})
		res = append(res, levels...)
	}

	return res, nil
}

// AddFreezeTokens добавляет n жетонов заморозки серии.
func (s *Service) AddFreezeTokens(ctx context.Context, accountID string, t model.StreakType, n int) (*model.StreakRecord, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStreakType, t)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: freeze tokens must be positive", ErrInvalidAmount)
	}

	cat := s.catalogs.Current()
	now := s.now()
	var res model.StreakRecord
	err := s.repo.Atomically(ctx, accountID, true, func(tx repository.Tx) error {
		if err := s.open(ctx, tx, cat, now); err != nil {
			return err
		}
		rec, err := tx.Streak(ctx, t)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &model.StreakRecord{AccountID: accountID, StreakType: t, Status: model.StreakActive, Milestones: map[int]int{}}
		}
		rec.FreezeCount += n
		rec.UpdatedAt = now
		if err := tx.SaveStreak(ctx, *rec); err != nil {
			return err
		}
		res = *rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Status = evaluateStatus(res, s.today())
	return &res, nil
}

// Streaks возвращает серии счёта со статусом на текущий момент.
func (s *Service) Streaks(ctx context.Context, accountID string) ([]model.StreakRecord, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListStreaks(ctx, accountID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	for i := range recs {
		recs[i].Status = evaluateStatus(recs[i], today)
	}
	return recs, nil
}

// evaluateStatus вычисляет статус серии на день today: серия активна, если
// активность была в текущем или предыдущем периоде, заморожена, если пропуск
// покрывается жетонами, и прервана в остальных случаях.
func evaluateStatus(rec model.StreakRecord, today time.Time) model.StreakStatus {
	if rec.LastActivityDate == nil {
		return model.StreakActive
	}
	gap := periodIndex(rec.StreakType, today) - periodIndex(rec.StreakType, *rec.LastActivityDate)
	switch {
	case gap <= 1:
		return model.StreakActive
	case int(gap-1) <= rec.FreezeCount:
		return model.StreakFrozen
	}
	return model.StreakBroken
}

// today возвращает календарный день в настроенном часовом поясе как полночь UTC.
func (s *Service) today() time.Time {
	y, m, d := s.clock.Now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// periodIndex нумерует периоды серии так, что соседние периоды отличаются на единицу.
// Недели начинаются с понедельника: 1970-01-01 был четвергом.
func periodIndex(t model.StreakType, day time.Time) int64 {
	y, m, d := day.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	switch t {
	case model.StreakWeekly:
		return floorDiv(days+3, 7)
	case model.StreakMonthly:
		return int64(y)*12 + int64(m) - 1
	}
	return days
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
