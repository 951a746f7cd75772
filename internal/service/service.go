// Package service реализует бизнес-логику движка: валюты, опыт и уровни,
// серии активности, магазин и таблицу лидеров.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmeshcher/gamification-engine/internal/catalog"
	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

var (
	// ErrInvalidAmount возвращается для нулевой или отрицательной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownCurrency возвращается для валюты, отличной от coins и gems.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrUnknownStreakType возвращается для неизвестного типа серии.
	ErrUnknownStreakType = errors.New("unknown streak type")
	// ErrItemNotFound возвращается, если товара нет в каталоге.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemNotAvailable возвращается при покупке вне окна продажи.
	ErrItemNotAvailable = errors.New("item not available")
	// ErrUnknownMetric возвращается для неизвестной метрики таблицы лидеров.
	ErrUnknownMetric = errors.New("unknown leaderboard metric")
)

// SourceStartingGrant помечает начисления стартового набора нового счёта.
const SourceStartingGrant = "starting_grant"

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	Atomically(ctx context.Context, accountID string, create bool, fn func(repository.Tx) error) error
	ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error)
	ListStreaks(ctx context.Context, accountID string) ([]model.StreakRecord, error)
	TopAccounts(ctx context.Context, metric repository.Metric, limit int) ([]model.Account, error)
	TopStreaks(ctx context.Context, t model.StreakType, limit int) ([]model.StreakRecord, error)
}

// CatalogSource отдаёт актуальный снимок каталога наград.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// Service содержит бизнес-логику движка.
type Service struct {
	repo     Repository
	catalogs CatalogSource
	clock    clockwork.Clock
	loc      *time.Location
}

// NewService создаёт сервис. Пустые clock и loc заменяются системными часами и UTC.
func NewService(repo Repository, catalogs CatalogSource, clock clockwork.Clock, loc *time.Location) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		catalogs: catalogs,
		clock:    clock,
		loc:      loc,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// open выдаёт стартовый набор уровня 1 только что созданному счёту.
// Набор проводится обычными начислениями, чтобы журнал сходился с балансом.
func (s *Service) open(ctx context.Context, tx repository.Tx, cat *catalog.Catalog, now time.Time) error {
	if !tx.Created() {
		return nil
	}
	r, ok := cat.LevelReward(1)
	if !ok {
		return nil
	}
	if r.HasCoins() {
		if _, err := earnTx(ctx, tx, model.CurrencyCoins, r.Coins, SourceStartingGrant, now); err != nil {
			return err
		}
	}
	if r.HasGems() {
		if _, err := earnTx(ctx, tx, model.CurrencyGems, r.Gems, SourceStartingGrant, now); err != nil {
			return err
		}
	}
	if r.HasXP() {
		if _, err := addXPTx(ctx, tx, cat, r.XP, SourceStartingGrant, now); err != nil {
			return err
		}
	}
	return nil
}

func currencyDelta(c model.Currency, amount int64) (repository.Delta, error) {
	switch c {
	case model.CurrencyCoins:
		return repository.Delta{Coins: amount}, nil
	case model.CurrencyGems:
		return repository.Delta{Gems: amount}, nil
	}
	return repository.Delta{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, c)
}

func earnTx(ctx context.Context, tx repository.Tx, c model.Currency, amount int64, source string, now time.Time) (model.Account, error) {
	d, err := currencyDelta(c, amount)
	if err != nil {
		return model.Account{}, err
	}
	return tx.ApplyDelta(ctx, d, model.Transaction{Source: source, CreatedAt: now})
}

// spendTx проверяет оба баланса до первого списания, поэтому частичное
// списание невозможно даже без отката транзакции.
func spendTx(ctx context.Context, tx repository.Tx, cost model.Cost, purpose string, now time.Time) (model.Account, error) {
	acc := tx.Account()
	if acc.Coins < cost.Coins || acc.Gems < cost.Gems {
		return acc, repository.ErrInsufficientFunds
	}
	if cost.Coins > 0 {
		a, err := tx.ApplyDelta(ctx, repository.Delta{Coins: -cost.Coins}, model.Transaction{Source: purpose, CreatedAt: now})
		if err != nil {
			return a, err
		}
		acc = a
	}
	if cost.Gems > 0 {
		a, err := tx.ApplyDelta(ctx, repository.Delta{Gems: -cost.Gems}, model.Transaction{Source: purpose, CreatedAt: now})
		if err != nil {
			return a, err
		}
		acc = a
	}
	return acc, nil
}

// grant выдаёт награду целиком внутри единицы работы: монеты и кристаллы
// начисляются напрямую, опыт идёт через addXPTx и может повысить уровень.
// Возвращает награды за уровни, полученные попутно.
func grant(ctx context.Context, tx repository.Tx, cat *catalog.Catalog, r model.RewardDefinition, source string, now time.Time) ([]model.GrantedReward, error) {
	if r.HasCoins() {
		if _, err := earnTx(ctx, tx, model.CurrencyCoins, r.Coins, source, now); err != nil {
			return nil, err
		}
	}
	if r.HasGems() {
		if _, err := earnTx(ctx, tx, model.CurrencyGems, r.Gems, source, now); err != nil {
			return nil, err
		}
	}
	if !r.HasXP() {
		return nil, nil
	}
	res, err := addXPTx(ctx, tx, cat, r.XP, source, now)
	if err != nil {
		return nil, err
	}
	return res.RewardsGranted, nil
}
