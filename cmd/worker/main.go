package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/app"
	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/platform/cache"
	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/pnl"
	"github.com/fleetline/fleetline/internal/reporting"
	"github.com/fleetline/fleetline/internal/shared"
	"github.com/fleetline/fleetline/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, warmups will recompute", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerService := ledger.NewService(ledger.NewRepository(pool))
	pnlService := pnl.NewService(pnl.NewRepository(pool))
	reportingCache := reporting.NewCache(redisClient, cfg.CacheTTL)
	reportingService := reporting.NewService(ledgerService, pnlService, reportingCache)
	if err := reportingCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("reporting cache listener", slog.Any("error", err))
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportingWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(ledgerService, metrics, logger)},
			{Type: jobs.TaskReportingWarmup, Handler: jobs.NewReportingWarmupHandler(reportingService, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
