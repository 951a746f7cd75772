// Package repository содержит хранилище журнала: балансы счетов, серии и журнал операций.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

var (
	// ErrAccountNotFound возвращается, если счёт не существует и создание не запрошено.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds возвращается, если операция сделала бы баланс отрицательным.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidDelta возвращается для изменения, затрагивающего несколько валют или уменьшающего опыт.
	ErrInvalidDelta = errors.New("invalid delta")
	// ErrConcurrentModification возвращается, когда исчерпаны повторы при конфликте сериализации.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Delta описывает изменение баланса. Ненулевым может быть не более одного поля.
type Delta struct {
	Coins int64
	Gems  int64
	XP    int64
}

// IsZero сообщает, что изменение пустое.
func (d Delta) IsZero() bool {
	return d.Coins == 0 && d.Gems == 0 && d.XP == 0
}

// Metric задаёт поле сортировки таблицы лидеров по счетам.
type Metric string

const (
	MetricXP    Metric = "xp"
	MetricCoins Metric = "coins"
	MetricGems  Metric = "gems"
)

// Tx — единица работы над одним счётом. Все изменения внутри неё применяются
// атомарно и сериализуются с другими операциями над тем же счётом.
type Tx interface {
	// Account возвращает текущее состояние счёта внутри единицы работы.
	Account() model.Account
	// Created сообщает, что счёт был создан в этой единице работы.
	Created() bool
	// ApplyDelta применяет изменение и добавляет ровно одну запись в журнал.
	// Пустое изменение ничего не пишет и возвращает текущее состояние.
	ApplyDelta(ctx context.Context, d Delta, txn model.Transaction) (model.Account, error)
	// SetLevel сохраняет уровень, вычисленный по опыту.
	SetLevel(ctx context.Context, level int) error
	// Streak возвращает запись серии или nil, если серии ещё нет.
	Streak(ctx context.Context, t model.StreakType) (*model.StreakRecord, error)
	// SaveStreak создаёт или обновляет запись серии.
	SaveStreak(ctx context.Context, rec model.StreakRecord) error
}

// Store описывает хранилище журнала.
type Store interface {
	Close() error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	// Atomically выполняет fn в критической секции счёта. При create=true
	// отсутствующий счёт создаётся с нулевыми балансами.
	Atomically(ctx context.Context, accountID string, create bool, fn func(Tx) error) error
	ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error)
	ListStreaks(ctx context.Context, accountID string) ([]model.StreakRecord, error)
	TopAccounts(ctx context.Context, metric Metric, limit int) ([]model.Account, error)
	TopStreaks(ctx context.Context, t model.StreakType, limit int) ([]model.StreakRecord, error)
}

// ApplyDelta применяет одно изменение к существующему счёту в отдельной единице работы.
func ApplyDelta(ctx context.Context, s Store, accountID string, d Delta, txn model.Transaction) (model.Account, error) {
	var res model.Account
	err := s.Atomically(ctx, accountID, false, func(tx Tx) error {
		acc, err := tx.ApplyDelta(ctx, d, txn)
		if err != nil {
			return err
		}
		res = acc
		return nil
	})
	return res, err
}

// applyDelta изменяет счёт и дополняет запись журнала. Общая логика обеих реализаций.
func applyDelta(acc *model.Account, d Delta, txn *model.Transaction) error {
	nonZero := 0
	for _, v := range []int64{d.Coins, d.Gems, d.XP} {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero != 1 {
		return fmt.Errorf("%w: exactly one currency must change", ErrInvalidDelta)
	}

	var amount int64
	switch {
	case d.Coins != 0:
		if acc.Coins+d.Coins < 0 {
			return ErrInsufficientFunds
		}
		acc.Coins += d.Coins
		if d.Coins > 0 {
			acc.TotalEarnedCoins += d.Coins
		} else {
			acc.TotalSpentCoins -= d.Coins
		}
		txn.Currency, amount = model.CurrencyCoins, d.Coins
	case d.Gems != 0:
		if acc.Gems+d.Gems < 0 {
			return ErrInsufficientFunds
		}
		acc.Gems += d.Gems
		if d.Gems > 0 {
			acc.TotalEarnedGems += d.Gems
		} else {
			acc.TotalSpentGems -= d.Gems
		}
		txn.Currency, amount = model.CurrencyGems, d.Gems
	default:
		if d.XP < 0 {
			return fmt.Errorf("%w: experience never decreases", ErrInvalidDelta)
		}
		acc.XP += d.XP
		txn.Currency, amount = model.CurrencyXP, d.XP
	}

	if amount > 0 {
		txn.Direction, txn.Amount = model.DirectionEarn, amount
	} else {
		txn.Direction, txn.Amount = model.DirectionSpend, -amount
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	txn.AccountID = acc.AccountID
	acc.UpdatedAt = txn.CreatedAt

	return nil
}
