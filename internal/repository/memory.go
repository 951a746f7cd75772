package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

type streakKey struct {
	accountID  string
	streakType model.StreakType
}

// MemoryRepository хранит данные в памяти процесса. Операции над одним счётом
// сериализуются мьютексом счёта, операции над разными счетами идут параллельно.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	streaks  map[streakKey]model.StreakRecord
	txns     map[string][]model.Transaction
	locks    map[string]*sync.Mutex
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]model.Account),
		streaks:  make(map[streakKey]model.StreakRecord),
		txns:     make(map[string][]model.Transaction),
		locks:    make(map[string]*sync.Mutex),
	}
}

var _ Store = (*MemoryRepository)(nil)

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) lockFor(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[accountID] = l
	}
	return l
}

// GetAccount возвращает счёт по идентификатору.
func (r *MemoryRepository) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

// Atomically выполняет fn над копией состояния счёта и публикует изменения, только если fn вернула nil.
func (r *MemoryRepository) Atomically(ctx context.Context, accountID string, create bool, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := r.lockFor(accountID)
	l.Lock()
	defer l.Unlock()

	r.mu.RLock()
	acc, ok := r.accounts[accountID]
	r.mu.RUnlock()

	created := false
	if !ok {
		if !create {
			return ErrAccountNotFound
		}
		now := time.Now().UTC()
		acc = model.Account{AccountID: accountID, Level: 1, CreatedAt: now, UpdatedAt: now}
		created = true
	}

	tx := &memoryTx{
		repo:    r,
		account: acc,
		created: created,
		streaks: make(map[model.StreakType]model.StreakRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[accountID] = tx.account
	for t, rec := range tx.streaks {
		r.streaks[streakKey{accountID: accountID, streakType: t}] = rec
	}
	r.txns[accountID] = append(r.txns[accountID], tx.pending...)

	return nil
}

// ListTransactions возвращает последние операции счёта, новые первыми.
func (r *MemoryRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.txns[accountID]
	res := make([]model.Transaction, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, src[i])
	}
	return res, nil
}

// ListStreaks возвращает все серии счёта.
func (r *MemoryRepository) ListStreaks(ctx context.Context, accountID string) ([]model.StreakRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.StreakRecord
	for _, t := range model.StreakTypes {
		if rec, ok := r.streaks[streakKey{accountID: accountID, streakType: t}]; ok {
			res = append(res, rec.Clone())
		}
	}
	return res, nil
}

// TopAccounts возвращает счета, отсортированные по убыванию метрики.
func (r *MemoryRepository) TopAccounts(ctx context.Context, metric Metric, limit int) ([]model.Account, error) {
	r.mu.RLock()
	res := make([]model.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		res = append(res, acc)
	}
	r.mu.RUnlock()

	value := func(a model.Account) int64 {
		switch metric {
		case MetricCoins:
			return a.Coins
		case MetricGems:
			return a.Gems
		}
		return a.XP
	}

	sort.Slice(res, func(i, j int) bool {
		vi, vj := value(res[i]), value(res[j])
		if vi != vj {
			return vi > vj
		}
		return res[i].AccountID < res[j].AccountID
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// TopStreaks возвращает серии указанного типа по убыванию текущей длины.
func (r *MemoryRepository) TopStreaks(ctx context.Context, t model.StreakType, limit int) ([]model.StreakRecord, error) {
	r.mu.RLock()
	var res []model.StreakRecord
	for k, rec := range r.streaks {
		if k.streakType == t {
			res = append(res, rec.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].CurrentCount != res[j].CurrentCount {
			return res[i].CurrentCount > res[j].CurrentCount
		}
		if res[i].LongestCount != res[j].LongestCount {
			return res[i].LongestCount > res[j].LongestCount
		}
		return res[i].AccountID < res[j].AccountID
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type memoryTx struct {
	repo    *MemoryRepository
	account model.Account
	created bool
	streaks map[model.StreakType]model.StreakRecord
	pending []model.Transaction
}

func (tx *memoryTx) Account() model.Account {
	return tx.account
}

func (tx *memoryTx) Created() bool {
	return tx.created
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, d Delta, txn model.Transaction) (model.Account, error) {
	if d.IsZero() {
		return tx.account, nil
	}

	acc := tx.account
	if err := applyDelta(&acc, d, &txn); err != nil {
		return tx.account, err
	}

	tx.account = acc
	tx.pending = append(tx.pending, txn)
	return acc, nil
}

func (tx *memoryTx) SetLevel(ctx context.Context, level int) error {
	tx.account.Level = level
	return nil
}

func (tx *memoryTx) Streak(ctx context.Context, t model.StreakType) (*model.StreakRecord, error) {
	if rec, ok := tx.streaks[t]; ok {
		c := rec.Clone()
		return &c, nil
	}

	tx.repo.mu.RLock()
	rec, ok := tx.repo.streaks[streakKey{accountID: tx.account.AccountID, streakType: t}]
	tx.repo.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	c := rec.Clone()
	return &c, nil
}

func (tx *memoryTx) SaveStreak(ctx context.Context, rec model.StreakRecord) error {
	rec.AccountID = tx.account.AccountID
	tx.streaks[rec.StreakType] = rec.Clone()
	return nil
}
