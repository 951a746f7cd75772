package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/gamification-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const accountColumns = `account_id, coins, gems, total_earned_coins, total_earned_gems,
	total_spent_coins, total_spent_gems, xp, level, created_at, updated_at`

const streakColumns = `account_id, streak_type, current_count, longest_count, status,
	last_activity_date, freeze_count, frozen_until, milestones, updated_at`

// PostgresRepository предоставляет доступ к хранилищу журнала в PostgreSQL.
// Операции над счётом сериализуются блокировкой строки счёта (SELECT ... FOR UPDATE).
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		retryDelays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

var _ Store = (*PostgresRepository)(nil)

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// errCommitUnknown помечает ошибку COMMIT, после которой неизвестно, применена ли
// транзакция. Такие ошибки не повторяются.
var errCommitUnknown = errors.New("commit outcome unknown")

// commitError классифицирует ошибку COMMIT. Конфликт сериализации означает откат
// и допускает повтор; любая другая ошибка, включая обрыв соединения, оставляет
// исход неизвестным.
func commitError(err error) error {
	if isConflict(err) {
		return fmt.Errorf("commit tx: %w", err)
	}
	return fmt.Errorf("commit tx: %w: %w", errCommitUnknown, err)
}

// withRetry повторяет fn при конфликте сериализации, взаимной блокировке и обрыве
// соединения до фиксации. Всего выполняется len(retryDelays)+1 попыток.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	conflict := false

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, errCommitUnknown) {
			return err
		}

		conflict = isConflict(err)
		if !conflict && !isConnectionError(err) {
			return err
		}

		if i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if conflict {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.AccountID, &a.Coins, &a.Gems, &a.TotalEarnedCoins, &a.TotalEarnedGems,
		&a.TotalSpentCoins, &a.TotalSpentGems, &a.XP, &a.Level, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanStreak(row rowScanner) (model.StreakRecord, error) {
	var (
		rec        model.StreakRecord
		streakType string
		status     string
		milestones []byte
	)
	err := row.Scan(&rec.AccountID, &streakType, &rec.CurrentCount, &rec.LongestCount, &status,
		&rec.LastActivityDate, &rec.FreezeCount, &rec.FrozenUntil, &milestones, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}

	rec.StreakType = model.StreakType(streakType)
	rec.Status = model.StreakStatus(status)
	rec.Milestones = make(map[int]int)
	if len(milestones) > 0 {
		if err := json.Unmarshal(milestones, &rec.Milestones); err != nil {
			return rec, fmt.Errorf("decode milestones: %w", err)
		}
	}
	return rec, nil
}

// GetAccount возвращает счёт по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`,
		accountID,
	)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// Atomically выполняет fn в транзакции БД, удерживая блокировку строки счёта.
// При конфликте сериализации транзакция повторяется целиком, поэтому fn не должна
// иметь побочных эффектов вне Tx.
func (r *PostgresRepository) Atomically(ctx context.Context, accountID string, create bool, fn func(Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		created := false
		if create {
			tag, err := tx.Exec(ctx,
				`INSERT INTO accounts (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
				accountID,
			)
			if err != nil {
				return fmt.Errorf("insert account: %w", err)
			}
			created = tag.RowsAffected() == 1
		}

		acc, err := scanAccount(tx.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1 FOR UPDATE`,
			accountID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account for update: %w", err)
		}

		ptx := &postgresTx{tx: tx, account: acc, created: created}
		if err := fn(ptx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return commitError(err)
		}
		return nil
	})
}

// ListTransactions возвращает последние операции счёта, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, account_id, direction, currency, amount, source, created_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t         model.Transaction
			direction string
			currency  string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &direction, &currency, &t.Amount, &t.Source, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Direction = model.Direction(direction)
		t.Currency = model.Currency(currency)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListStreaks возвращает все серии счёта.
func (r *PostgresRepository) ListStreaks(ctx context.Context, accountID string) ([]model.StreakRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE account_id = $1 ORDER BY streak_type`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select streaks: %w", err)
	}
	defer rows.Close()

	var res []model.StreakRecord
	for rows.Next() {
		rec, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TopAccounts возвращает счета, отсортированные по убыванию метрики.
func (r *PostgresRepository) TopAccounts(ctx context.Context, metric Metric, limit int) ([]model.Account, error) {
	column := "xp"
	switch metric {
	case MetricCoins:
		column = "coins"
	case MetricGems:
		column = "gems"
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY `+column+` DESC, account_id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top accounts: %w", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TopStreaks возвращает серии указанного типа по убыванию текущей длины.
func (r *PostgresRepository) TopStreaks(ctx context.Context, t model.StreakType, limit int) ([]model.StreakRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streakColumns+`
		 FROM streaks
		 WHERE streak_type = $1
		 ORDER BY current_count DESC, longest_count DESC, account_id
		 LIMIT $2`,
		string(t), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top streaks: %w", err)
	}
	defer rows.Close()

	var res []model.StreakRecord
	for rows.Next() {
		rec, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type postgresTx struct {
	tx      pgx.Tx
	account model.Account
	created bool
}

func (p *postgresTx) Account() model.Account {
	return p.account
}

func (p *postgresTx) Created() bool {
	return p.created
}

func (p *postgresTx) ApplyDelta(ctx context.Context, d Delta, txn model.Transaction) (model.Account, error) {
	if d.IsZero() {
		return p.account, nil
	}

	acc := p.account
	if err := applyDelta(&acc, d, &txn); err != nil {
		return p.account, err
	}

	_, err := p.tx.Exec(ctx,
		`UPDATE accounts SET
			coins = $2, gems = $3,
			total_earned_coins = $4, total_earned_gems = $5,
			total_spent_coins = $6, total_spent_gems = $7,
			xp = $8, updated_at = $9
		 WHERE account_id = $1`,
		acc.AccountID, acc.Coins, acc.Gems,
		acc.TotalEarnedCoins, acc.TotalEarnedGems,
		acc.TotalSpentCoins, acc.TotalSpentGems,
		acc.XP, acc.UpdatedAt,
	)
	if err != nil {
		return p.account, fmt.Errorf("update account: %w", err)
	}

	_, err = p.tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, direction, currency, amount, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.ID, txn.AccountID, string(txn.Direction), string(txn.Currency), txn.Amount, txn.Source, txn.CreatedAt,
	)
	if err != nil {
		return p.account, fmt.Errorf("insert transaction: %w", err)
	}

	p.account = acc
	return acc, nil
}

func (p *postgresTx) SetLevel(ctx context.Context, level int) error {
	if level == p.account.Level {
		return nil
	}
	_, err := p.tx.Exec(ctx,
		`UPDATE accounts SET level = $2 WHERE account_id = $1`,
		p.account.AccountID, level,
	)
	if err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	p.account.Level = level
	return nil
}

func (p *postgresTx) Streak(ctx context.Context, t model.StreakType) (*model.StreakRecord, error) {
	rec, err := scanStreak(p.tx.QueryRow(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE account_id = $1 AND streak_type = $2`,
		p.account.AccountID, string(t),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return &rec, nil
}

func (p *postgresTx) SaveStreak(ctx context.Context, rec model.StreakRecord) error {
	milestones := rec.Milestones
	if milestones == nil {
		milestones = map[int]int{}
	}
	encoded, err := json.Marshal(milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}

	_, err = p.tx.Exec(ctx,
		`INSERT INTO streaks (`+streakColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (account_id, streak_type) DO UPDATE SET
			current_count = EXCLUDED.current_count,
			longest_count = EXCLUDED.longest_count,
			status = EXCLUDED.status,
			last_activity_date = EXCLUDED.last_activity_date,
			freeze_count = EXCLUDED.freeze_count,
			frozen_until = EXCLUDED.frozen_until,
			milestones = EXCLUDED.milestones,
			updated_at = EXCLUDED.updated_at`,
		p.account.AccountID, string(rec.StreakType), rec.CurrentCount, rec.LongestCount, string(rec.Status),
		rec.LastActivityDate, rec.FreezeCount, rec.FrozenUntil, encoded, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}
