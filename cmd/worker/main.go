package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/finverse/finverse/internal/app"
	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/platform/cache"
	"github.com/finverse/finverse/internal/platform/db"
	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var store entitystore.Client
	var pool *pgxpool.Pool
	if cfg.EntityStore == app.StoreMemory {
		logger.Warn("worker running against in-memory entity store")
		store = entitystore.NewMemory()
	} else {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		store = entitystore.NewPGStore(pool)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
		redisClient = nil
	}
	defer func(client *redis.Client) {
		if client == nil {
			return
		}
		if err := client.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}(redisClient)

	inception, _ := cfg.Inception()
	statements := statement.NewService(store, cache.NewCache(redisClient, "statement", cfg.CacheTTL).WithLogger(logger), logger, statement.Config{
		Inception:    inception,
		FetchTimeout: cfg.StatementFetchTimeout,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	snapshotJob := jobs.NewStatementSnapshotJob(store, statements, logger, nil)
	notifyJob := jobs.NewPayoutNotifyJob(store, jobClient, logger, nil)

	monthly, err := jobs.MonthlySnapshot()
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}
	monthly.Options = append(monthly.Options, asynq.MaxRetry(3))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStatementSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskPayoutStatusChanged, Handler: notifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{monthly},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
