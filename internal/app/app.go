// Package app builds the engine and its dependencies from configuration.
// It is shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/ranking-engine/internal/config"
	"github.com/atmx/ranking-engine/internal/engine"
	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/store"
)

// App holds the wired engine and releases its connections on Close.
type App struct {
	Engine   *engine.Engine
	Provider provider.Provider
	Store    store.Store
	cleanup  []func()
}

// New connects the configured provider and store and builds the engine.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	p, err := a.openProvider(ctx, cfg.Provider, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Provider = p

	st, err := a.openStore(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	eng, err := engine.New(p,
		engine.WithStore(st),
		engine.WithConfig(cfg.Scoring),
		engine.WithConcurrency(cfg.Server.Concurrency),
		engine.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func (a *App) openProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Kind {
	case "", "http":
		logger.Info("using venue HTTP provider", "data_api", cfg.HTTP.DataAPIURL, "gamma_api", cfg.HTTP.GammaAPIURL)
		return provider.NewHTTPProvider(cfg.HTTP, logger), nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("provider database connection failed: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		logger.Info("using PostgreSQL provider")
		return provider.NewPostgresProvider(pool), nil

	case "snapshot":
		f, err := os.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		p, err := provider.LoadSnapshot(f)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", cfg.SnapshotPath, err)
		}
		logger.Info("using snapshot provider", "path", cfg.SnapshotPath, "wallets", len(p.Wallets()))
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

func (a *App) openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (store.Store, error) {
	var st store.Store

	switch cfg.Driver {
	case "", "memory":
		logger.Info("using in-memory store (metrics will not persist)")
		st = store.NewMemoryStore()

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		st = pg

	case "sqlite":
		sq, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, func() { sq.Close() })
		logger.Info("using SQLite store", "path", cfg.SQLitePath)
		st = sq

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		logger.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}
	return st, nil
}
