package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/gamification-engine/internal/catalog"
	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

// XPResult описывает итог начисления опыта.
type XPResult struct {
	NewXP          int64
	OldLevel       int
	NewLevel       int
	RewardsGranted []model.GrantedReward
	Account        model.Account
}

// LevelProgress описывает положение счёта на кривой уровней.
type LevelProgress struct {
	Level int
	XP    int64
	// LevelThreshold — опыт, с которого начинается текущий уровень.
	LevelThreshold int64
	// NextThreshold и XPToNext равны нулю на максимальном уровне.
	NextThreshold int64
	XPToNext      int64
	MaxLevel      bool
}

// AccountSummary объединяет счёт и прогресс уровня.
type AccountSummary struct {
	Account  model.Account
	Progress LevelProgress
}

// AddXP начисляет опыт и выдаёт награды за каждый пройденный уровень по
// возрастанию, каждую ровно один раз. amount == 0 только пересчитывает уровень.
func (s *Service) AddXP(ctx context.Context, accountID string, amount int64, source string) (*XPResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: xp amount must not be negative", ErrInvalidAmount)
	}

	cat := s.catalogs.Current()
	now := s.now()
	var res XPResult
	err := s.repo.Atomically(ctx, accountID, true, func(tx repository.Tx) error {
		if err := s.open(ctx, tx, cat, now); err != nil {
			return err
		}
		r, err := addXPTx(ctx, tx, cat, amount, source, now)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// addXPTx начисляет опыт внутри единицы работы. Награды за уровни, которые сами
// дают опыт, могут поднять уровень дальше; цикл продолжается, пока уровень растёт,
// и ограничен максимальным уровнем каталога.
//
// Сохранённый в счёте уровень — наибольший уровень, за который награда уже
// выдана. После замены каталога с более высокими порогами вычисленный уровень
// может оказаться ниже него; повторно награды за эти уровни не выдаются.
func addXPTx(ctx context.Context, tx repository.Tx, cat *catalog.Catalog, amount int64, source string, now time.Time) (XPResult, error) {
	res := XPResult{OldLevel: cat.LevelFor(tx.Account().XP)}

	if amount > 0 {
		if _, err := tx.ApplyDelta(ctx, repository.Delta{XP: amount}, model.Transaction{Source: source, CreatedAt: now}); err != nil {
			return res, err
		}
	}

	rewarded := max(tx.Account().Level, res.OldLevel)
	for {
		level := cat.LevelFor(tx.Account().XP)
		if level <= rewarded {
			break
		}
		for l := rewarded + 1; l <= level; l++ {
			r, ok := cat.LevelReward(l)
			if !ok {
				continue
			}
			src := fmt.Sprintf("level_up:%d", l)
			if r.HasCoins() {
				if _, err := earnTx(ctx, tx, model.CurrencyCoins, r.Coins, src, now); err != nil {
					return res, err
				}
			}
			if r.HasGems() {
				if _, err := earnTx(ctx, tx, model.CurrencyGems, r.Gems, src, now); err != nil {
					return res, err
				}
			}
			if r.HasXP() {
				if _, err := tx.ApplyDelta(ctx, repository.Delta{XP: r.XP}, model.Transaction{Source: src, CreatedAt: now}); err != nil {
					return res, err
				}
			}
			res.RewardsGranted = append(res.RewardsGranted, model.GrantedReward{Kind: model.RewardKindLevel, Reward: r})
		}
		rewarded = level
	}

	if tx.Account().Level != rewarded {
		if err := tx.SetLevel(ctx, rewarded); err != nil {
			return res, err
		}
	}

	res.Account = tx.Account()
	res.NewXP = res.Account.XP
	res.NewLevel = cat.LevelFor(res.NewXP)
	res.Account.Level = res.NewLevel
	return res, nil
}

// GetAccount возвращает счёт с уровнем, пересчитанным по текущему каталогу.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*AccountSummary, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := progressFor(s.catalogs.Current(), acc.XP)
	acc.Level = p.Level
	return &AccountSummary{Account: *acc, Progress: p}, nil
}

// LevelProgress возвращает текущий уровень и опыт, оставшийся до следующего.
func (s *Service) LevelProgress(ctx context.Context, accountID string) (*LevelProgress, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := progressFor(s.catalogs.Current(), acc.XP)
	return &p, nil
}

func progressFor(cat *catalog.Catalog, xp int64) LevelProgress {
	level := cat.LevelFor(xp)
	p := LevelProgress{Level: level, XP: xp}
	p.LevelThreshold, _ = cat.Threshold(level)
	next, ok := cat.Threshold(level + 1)
	if !ok {
		p.MaxLevel = true
		return p
	}
	p.NextThreshold = next
	p.XPToNext = next - xp
	return p
}

// ListTransactions возвращает журнал операций счёта, новые записи первыми.
func (s *Service) ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, accountID, limit)
}
