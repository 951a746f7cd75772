// Package config содержит логику чтения конфигурации движка.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultCatalogRefresh = 5 * time.Minute
	defaultTimezone       = "UTC"
)

// Config содержит параметры конфигурации движка.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	// CatalogPath и CatalogURL взаимоисключающие; без них используется встроенный каталог.
	CatalogPath    string        `env:"CATALOG_PATH"`
	CatalogURL     string        `env:"CATALOG_URL"`
	CatalogRefresh time.Duration `env:"CATALOG_REFRESH"`
	StreakTimezone string        `env:"STREAK_TIMEZONE"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (in-memory store when empty)")
	flag.StringVar(&cfg.CatalogPath, "c", "", "reward catalog YAML file")
	flag.StringVar(&cfg.CatalogURL, "r", "", "reward catalog URL")
	flag.DurationVar(&cfg.CatalogRefresh, "i", defaultCatalogRefresh, "reward catalog refresh interval")
	flag.StringVar(&cfg.StreakTimezone, "z", defaultTimezone, "timezone of streak day boundaries")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.CatalogPath != "" {
		cfg.CatalogPath = envCfg.CatalogPath
	}
	if envCfg.CatalogURL != "" {
		cfg.CatalogURL = envCfg.CatalogURL
	}
	if envCfg.CatalogRefresh != 0 {
		cfg.CatalogRefresh = envCfg.CatalogRefresh
	}
	if envCfg.StreakTimezone != "" {
		cfg.StreakTimezone = envCfg.StreakTimezone
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.StreakTimezone == "" {
		cfg.StreakTimezone = defaultTimezone
	}

	if cfg.CatalogPath != "" && cfg.CatalogURL != "" {
		return nil, errors.New("catalog path and catalog URL are mutually exclusive")
	}
	if cfg.CatalogRefresh <= 0 {
		return nil, fmt.Errorf("catalog refresh interval must be positive, got %s", cfg.CatalogRefresh)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location возвращает часовой пояс границ периодов серий.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("streak timezone %q: %w", c.StreakTimezone, err)
	}
	return loc, nil
}
