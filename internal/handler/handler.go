// Package handler содержит HTTP-обработчики API движка прогрессии и экономики.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamification-engine/internal/model"
	"github.com/mmeshcher/gamification-engine/internal/service"
	"github.com/mmeshcher/gamification-engine/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Earn(ctx context.Context, accountID string, amount int64, currency model.Currency, source string) (*model.Account, error)
	Spend(ctx context.Context, accountID string, amount int64, currency model.Currency, purpose string) (*model.Account, error)
	AddXP(ctx context.Context, accountID string, amount int64, source string) (*service.XPResult, error)
	RecordActivity(ctx context.Context, accountID string, t model.StreakType) (*service.StreakResult, error)
	AddFreezeTokens(ctx context.Context, accountID string, t model.StreakType, n int) (*model.StreakRecord, error)
	Purchase(ctx context.Context, accountID, itemID string) (*model.Receipt, error)
	ShopItems(at time.Time) []service.ShopListing
	Now() time.Time
	GetAccount(ctx context.Context, accountID string) (*service.AccountSummary, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error)
	Streaks(ctx context.Context, accountID string) ([]model.StreakRecord, error)
	Leaderboard(ctx context.Context, metric string, limit int) ([]service.LeaderboardEntry, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// maxRequestBody ограничивает размер тела запроса после распаковки.
const maxRequestBody = 64 << 10

// decode читает JSON-тело и проверяет его. false означает, что ответ уже отправлен.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, err, "validate request")
		return false
	}
	return true
}

type currencyRequest struct {
	AccountID string `json:"accountId" validate:"identifier"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency" validate:"currency"`
	Source    string `json:"source" validate:"max=64"`
	Purpose   string `json:"purpose" validate:"max=64"`
}

// Earn начисляет валюту.
func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.service.Earn(r.Context(), req.AccountID, req.Amount, model.Currency(req.Currency), req.Source)
	if err != nil {
		h.writeError(w, err, "earn error", zap.String("accountID", req.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, toAccount(*acc))
}

// Spend списывает валюту.
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if !h.decode(w, r, &req) {
		return
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = req.Source
	}

	acc, err := h.service.Spend(r.Context(), req.AccountID, req.Amount, model.Currency(req.Currency), purpose)
	if err != nil {
		h.writeError(w, err, "spend error", zap.String("accountID", req.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, toAccount(*acc))
}

type xpRequest struct {
	AccountID string `json:"accountId" validate:"identifier"`
	Amount    int64  `json:"amount"`
	Source    string `json:"source" validate:"max=64"`
}

type xpResponse struct {
	NewXP          int64            `json:"newXP"`
	OldLevel       int              `json:"oldLevel"`
	NewLevel       int              `json:"newLevel"`
	RewardsGranted []rewardResponse `json:"rewardsGranted"`
	Account        accountResponse  `json:"account"`
}

// AddXP начисляет опыт и возвращает награды за новые уровни.
func (h *Handler) AddXP(w http.ResponseWriter, r *http.Request) {
	var req xpRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.AddXP(r.Context(), req.AccountID, req.Amount, req.Source)
	if err != nil {
		h.writeError(w, err, "add xp error", zap.String("accountID", req.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, xpResponse{
		NewXP:          res.NewXP,
		OldLevel:       res.OldLevel,
		NewLevel:       res.NewLevel,
		RewardsGranted: toRewards(res.RewardsGranted),
		Account:        toAccount(res.Account),
	})
}

type streakRequest struct {
	AccountID  string `json:"accountId" validate:"identifier"`
	StreakType string `json:"streakType" validate:"streaktype"`
	Count      int    `json:"count"`
}

type activityResponse struct {
	Streak         streakResponse   `json:"streak"`
	Counted        bool             `json:"counted"`
	FreezeConsumed int              `json:"freezeConsumed"`
	RewardsGranted []rewardResponse `json:"rewardsGranted"`
	Account        accountResponse  `json:"account"`
}

// RecordActivity засчитывает активность за текущий период серии.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RecordActivity(r.Context(), req.AccountID, model.StreakType(req.StreakType))
	if err != nil {
		h.writeError(w, err, "record activity error", zap.String("accountID", req.AccountID), zap.String("streakType", req.StreakType))
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{
		Streak:         toStreak(res.Record),
		Counted:        res.Counted,
		FreezeConsumed: res.FreezeConsumed,
		RewardsGranted: toRewards(res.RewardsGranted),
		Account:        toAccount(res.Account),
	})
}

// AddFreezeTokens выдаёт жетоны заморозки серии.
func (h *Handler) AddFreezeTokens(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.service.AddFreezeTokens(r.Context(), req.AccountID, model.StreakType(req.StreakType), req.Count)
	if err != nil {
		h.writeError(w, err, "add freeze tokens error", zap.String("accountID", req.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, toStreak(*rec))
}

type purchaseRequest struct {
	AccountID string `json:"accountId" validate:"identifier"`
	ItemID    string `json:"itemId" validate:"identifier"`
}

// Purchase покупает товар магазина.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.Purchase(r.Context(), req.AccountID, req.ItemID)
	if err != nil {
		h.writeError(w, err, "purchase error", zap.String("accountID", req.AccountID), zap.String("itemID", req.ItemID))
		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{
		ID:          receipt.ID,
		ItemID:      receipt.ItemID,
		Charged:     receipt.Charged,
		Account:     toAccount(receipt.Account),
		PurchasedAt: receipt.PurchasedAt.Format(time.RFC3339),
	})
}

// ShopItems возвращает витрину магазина. Параметр at задаёт момент проверки окон продажи.
func (h *Handler) ShopItems(w http.ResponseWriter, r *http.Request) {
	at := h.service.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		at = t
	}

	listings := h.service.ShopItems(at)
	resp := make([]shopItemResponse, 0, len(listings))
	for _, l := range listings {
		item := shopItemResponse{
			ID:              l.Item.ID,
			Name:            l.Item.Name,
			Rarity:          string(l.Item.Rarity),
			Cost:            l.Item.Cost,
			DiscountPercent: l.Item.DiscountPercent,
			EffectiveCost:   l.EffectiveCost,
			Available:       l.Available,
		}
		if win := l.Item.Window; win != nil {
			if !win.Start.IsZero() {
				item.AvailableFrom = win.Start.Format(time.RFC3339)
			}
			if !win.End.IsZero() {
				item.AvailableUntil = win.End.Format(time.RFC3339)
			}
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// accountID извлекает и проверяет идентификатор счёта из пути.
func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "accountID")
	if !validation.IsValidIdentifier(id) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return "", false
	}
	return id, true
}

// limitParam разбирает необязательный параметр limit. Ноль означает значение по умолчанию.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// GetAccount возвращает балансы и прогресс уровня.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get account error", zap.String("accountID", id))
		return
	}

	p := summary.Progress
	writeJSON(w, http.StatusOK, accountSummaryResponse{
		accountResponse: toAccount(summary.Account),
		Progress: progressResponse{
			Level:          p.Level,
			XP:             p.XP,
			LevelThreshold: p.LevelThreshold,
			NextThreshold:  p.NextThreshold,
			XPToNext:       p.XPToNext,
			MaxLevel:       p.MaxLevel,
		},
	})
}

// GetTransactions возвращает журнал операций счёта.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	txns, err := h.service.ListTransactions(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err, "list transactions error", zap.String("accountID", id))
		return
	}

	if len(txns) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, transactionResponse{
			ID:        t.ID,
			Direction: string(t.Direction),
			Currency:  string(t.Currency),
			Amount:    t.Amount,
			Source:    t.Source,
			Timestamp: t.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetStreaks возвращает серии счёта со статусом на текущий момент.
func (h *Handler) GetStreaks(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	recs, err := h.service.Streaks(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get streaks error", zap.String("accountID", id))
		return
	}

	resp := make([]streakResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toStreak(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLeaderboard возвращает таблицу лидеров по метрике из параметра metric (по умолчанию xp).
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "xp"
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Leaderboard(r.Context(), metric, limit)
	if err != nil {
		h.writeError(w, err, "leaderboard error", zap.String("metric", metric))
		return
	}

	resp := make([]leaderboardResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, leaderboardResponse{Rank: e.Rank, AccountID: e.AccountID, Value: e.Value})
	}

	writeJSON(w, http.StatusOK, resp)
}
