package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

// Earn начисляет amount единиц валюты. Отсутствующий счёт создаётся со стартовым набором.
func (s *Service) Earn(ctx context.Context, accountID string, amount int64, currency model.Currency, source string) (*model.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: earn amount must be positive", ErrInvalidAmount)
	}
	if _, err := currencyDelta(currency, amount); err != nil {
		return nil, err
	}

	cat := s.catalogs.Current()
	now := s.now()
	var res model.Account
	err := s.repo.Atomically(ctx, accountID, true, func(tx repository.Tx) error {
		if err := s.open(ctx, tx, cat, now); err != nil {
			return err
		}
		acc, err := earnTx(ctx, tx, currency, amount, source, now)
		if err != nil {
			return err
		}
		res = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Spend списывает amount единиц валюты с существующего счёта.
func (s *Service) Spend(ctx context.Context, accountID string, amount int64, currency model.Currency, purpose string) (*model.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: spend amount must be positive", ErrInvalidAmount)
	}
	d, err := currencyDelta(currency, -amount)
	if err != nil {
		return nil, err
	}

	acc, err := repository.ApplyDelta(ctx, s.repo, accountID, d, model.Transaction{Source: purpose, CreatedAt: s.now()})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// SpendCost атомарно списывает стоимость в обеих валютах: либо списываются
// обе части, либо ни одна.
func (s *Service) SpendCost(ctx context.Context, accountID string, cost model.Cost, purpose string) (*model.Account, error) {
	if cost.Coins < 0 || cost.Gems < 0 || cost.IsZero() {
		return nil, fmt.Errorf("%w: cost must be positive", ErrInvalidAmount)
	}

	now := s.now()
	var res model.Account
	err := s.repo.Atomically(ctx, accountID, false, func(tx repository.Tx) error {
		acc, err := spendTx(ctx, tx, cost, purpose, now)
		if err != nil {
			return err
		}
		res = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
