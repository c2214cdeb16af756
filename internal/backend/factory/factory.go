// Package factory creates object store backends based on configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/backend/postgres"
	"github.com/prn-tf/cascade-store/internal/backend/redis"
	"github.com/prn-tf/cascade-store/internal/backend/sqlite"
	"github.com/prn-tf/cascade-store/internal/config"
)

// New creates a backend.Store for the configured driver.
func New(ctx context.Context, cfg config.BackendConfig, logger zerolog.Logger) (backend.Store, error) {
	switch cfg.Driver {
	case "memory":
		return backend.NewMemoryStore(), nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Path,
			JournalMode:     cfg.JournalMode,
			BusyTimeout:     cfg.BusyTimeout,
			CacheSize:       cfg.CacheSize,
			SynchronousMode: cfg.SynchronousMode,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		return sqlite.NewStore(db), nil

	case "postgres":
		db, err := postgres.NewDB(ctx, postgres.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MinIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres backend: %w", err)
		}
		return postgres.NewStore(db), nil

	case "redis":
		store, err := redis.NewStore(ctx, redis.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown backend driver %q", cfg.Driver)
	}
}
