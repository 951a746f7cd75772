// Package main запускает HTTP-сервер движка прогрессии и виртуальной экономики.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gamification-engine/internal/catalog"
	"github.com/mmeshcher/gamification-engine/internal/config"
	"github.com/mmeshcher/gamification-engine/internal/handler"
	"github.com/mmeshcher/gamification-engine/internal/repository"
	"github.com/mmeshcher/gamification-engine/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := openRepository(cfg)
	if err != nil {
		sugar.Fatalw("store initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	provider, refresher, err := loadCatalog(ctx, cfg, logger, clock)
	if err != nil {
		sugar.Fatalw("catalog initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, provider, clock, loc)
	defer svc.Close()

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Периодическое обновление каталога, если задан удалённый источник
	if refresher != nil {
		if err := refresher.Start(ctx); err != nil {
			sugar.Fatalw("catalog refresher start error", "error", err.Error())
		}
	}

	g.Go(func() error {
		sugar.Infow("starting engine server",
			"addr", cfg.RunAddress,
			"catalogVersion", provider.Current().Version(),
			"streakTimezone", loc.String(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		if refresher != nil {
			if err := refresher.Shutdown(); err != nil {
				sugar.Warnw("catalog refresher shutdown error", "error", err.Error())
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openRepository выбирает хранилище: PostgreSQL при заданном DATABASE_URI, иначе память.
func openRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// loadCatalog собирает начальный снимок каталога. Для удалённого источника
// возвращает также планировщик обновлений.
func loadCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger, clock clockwork.Clock) (*catalog.Provider, *catalog.Refresher, error) {
	switch {
	case cfg.CatalogPath != "":
		cat, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewProvider(cat), nil, nil

	case cfg.CatalogURL != "":
		// До первой успешной загрузки действует встроенный каталог.
		initial, err := catalog.Default()
		if err != nil {
			return nil, nil, err
		}
		provider := catalog.NewProvider(initial)

		refresher, err := catalog.NewRefresher(catalog.NewClient(cfg.CatalogURL), provider, logger, cfg.CatalogRefresh, clock)
		if err != nil {
			return nil, nil, err
		}
		refresher.Refresh(ctx)
		return provider, refresher, nil

	default:
		cat, err := catalog.Default()
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewProvider(cat), nil, nil
	}
}
