package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/app"
	"github.com/fleetline/fleetline/internal/fleet"
	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/platform/cache"
	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/pnl"
	"github.com/fleetline/fleetline/internal/posting"
	"github.com/fleetline/fleetline/internal/reporting"
	"github.com/fleetline/fleetline/internal/shared"
	"github.com/fleetline/fleetline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports served uncached", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	pnlRepo := pnl.NewRepository(pool)
	pnlService := pnl.NewService(pnlRepo)

	reportingCache := reporting.NewCache(redisClient, cfg.CacheTTL)
	reportingService := reporting.NewService(ledgerService, pnlService, reportingCache)
	reportingHandler := reporting.NewHandler(logger, reportingService)
	if err := reportingCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("reporting cache listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	instrumentation := &app.PostingInstrumentation{
		Metrics:   metrics,
		Reporting: reportingService,
		Logger:    logger,
	}

	fleetRepo := fleet.NewRepository(pool)
	engine := posting.NewEngine(
		ledgerService,
		pnlService,
		fleet.FinancialsLookup(fleetRepo),
		idempotencyStore,
		auditLogger,
		instrumentation,
		logger,
	)
	fleetService := fleet.NewService(fleetRepo, engine, pnlService, logger)
	fleetHandler := fleet.NewHandler(logger, fleetService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		FleetHandler:     fleetHandler,
		ReportingHandler: reportingHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
