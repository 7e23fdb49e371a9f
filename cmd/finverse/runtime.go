package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/finverse/finverse/internal/app"
	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/platform/cache"
	"github.com/finverse/finverse/internal/platform/db"
	"github.com/finverse/finverse/internal/statement"
)

// Cache namespaces.
const (
	nsStatement = "statement"
	nsFeatures  = "features"
)

// runtime holds the shared dependencies of every command.
type runtime struct {
	cfg        *app.Config
	logger     *slog.Logger
	store      entitystore.Client
	pool       *pgxpool.Pool
	redis      *redis.Client
	titles     *cache.Cache
	overrides  *cache.Cache
	statements *statement.Service
}

func newRuntime(ctx context.Context, instrumentation statement.Instrumentation) (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	rt := &runtime{cfg: cfg, logger: logger}

	switch cfg.EntityStore {
	case app.StoreMemory:
		logger.Warn("using in-memory entity store")
		rt.store = entitystore.NewMemory()
	default:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		pg := entitystore.NewPGStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		rt.store = pg
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	} else {
		rt.redis = client
	}
	rt.titles = cache.NewCache(rt.redis, nsStatement, cfg.CacheTTL).WithLogger(logger)
	rt.overrides = cache.NewCache(rt.redis, nsFeatures, cfg.CacheTTL).WithLogger(logger)

	inception, _ := cfg.Inception()
	rt.statements = statement.NewService(rt.store, rt.titles, logger, statement.Config{
		Inception:    inception,
		FetchTimeout: cfg.StatementFetchTimeout,
		Metrics:      instrumentation,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
