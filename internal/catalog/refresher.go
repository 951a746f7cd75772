package catalog

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Fetcher загружает свежий снимок каталога.
type Fetcher interface {
	Fetch(ctx context.Context) (*Catalog, int, time.Duration, error)
}

// Refresher периодически загружает каталог и подменяет снимок в провайдере.
type Refresher struct {
	fetcher   Fetcher
	provider  *Provider
	logger    *zap.Logger
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	interval  time.Duration

	mu        sync.Mutex
	holdUntil time.Time
}

// NewRefresher создаёт планировщик обновления каталога. Пустой clock заменяется системными часами.
func NewRefresher(fetcher Fetcher, provider *Provider, logger *zap.Logger, interval time.Duration, clock clockwork.Clock) (*Refresher, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}
	return &Refresher{
		fetcher:   fetcher,
		provider:  provider,
		logger:    logger,
		scheduler: s,
		clock:     clock,
		interval:  interval,
	}, nil
}

// Start регистрирует задачу обновления и запускает планировщик.
func (r *Refresher) Start(ctx context.Context) error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			r.Refresh(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	r.scheduler.Start()
	return nil
}

// Shutdown останавливает планировщик.
func (r *Refresher) Shutdown() error {
	return r.scheduler.Shutdown()
}

// Refresh выполняет одну попытку обновления. Возвращает true, если снимок был заменён.
func (r *Refresher) Refresh(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clock.Now().Before(r.holdUntil) {
		return false
	}

	cat, status, retryAfter, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Warn("catalog refresh failed", zap.Error(err), zap.Int("status", status))
		return false
	}

	if status == http.StatusTooManyRequests {
		r.holdUntil = r.clock.Now().Add(retryAfter)
		r.logger.Info("catalog refresh throttled", zap.Duration("retryAfter", retryAfter))
		return false
	}

	if cat == nil {
		return false
	}

	r.provider.Replace(cat)
	r.logger.Info("catalog refreshed", zap.Int("version", cat.Version()))
	return true
}
