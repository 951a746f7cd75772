package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/repository"
)

// ShopListing — товар магазина с ценой после скидки и доступностью на момент запроса.
type ShopListing struct {
	Item          model.ShopItem
	EffectiveCost model.Cost
	Available     bool
}

// Purchase покупает товар: проверяет окно продажи, вычисляет цену со скидкой и
// атомарно списывает её. Записи журнала помечаются идентификатором товара.
func (s *Service) Purchase(ctx context.Context, accountID, itemID string) (*model.Receipt, error) {
	item, ok := s.catalogs.Current().ShopItem(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	now := s.now()
	if !item.Available(now) {
		return nil, fmt.Errorf("%w: %q", ErrItemNotAvailable, itemID)
	}
	cost := item.EffectiveCost()

	var acc model.Account
	err := s.repo.Atomically(ctx, accountID, false, func(tx repository.Tx) error {
		a, err := spendTx(ctx, tx, cost, item.ID, now)
		if err != nil {
			return err
		}
		acc = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.Receipt{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ItemID:      item.ID,
		Charged:     cost,
		Account:     acc,
		PurchasedAt: now,
	}, nil
}

// ShopItems возвращает товары каталога с доступностью на момент at.
func (s *Service) ShopItems(at time.Time) []ShopListing {
	items := s.catalogs.Current().ShopItems()
	res := make([]ShopListing, 0, len(items))
	for _, it := range items {
		res = append(res, ShopListing{
			Item:          it,
			EffectiveCost: it.EffectiveCost(),
			Available:     it.Available(at),
		})
	}
	return res
}

// Now возвращает текущее время часов сервиса.
func (s *Service) Now() time.Time {
	return s.now()
}
