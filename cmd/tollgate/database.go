package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/tollgate/config"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/store/mongo"
	"github.com/xraph/tollgate/store/postgres"
	"github.com/xraph/tollgate/store/sqlite"
)

// openStore opens the store selected by cfg.StoreDriver.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverPostgres:
		drv := pgdriver.New()
		if err := drv.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return postgres.New(db), nil

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.DriverMongo:
		drv := mongodriver.New()
		if err := drv.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongo.New(db), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h), nil
}

// loadConfig reads and validates the configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
