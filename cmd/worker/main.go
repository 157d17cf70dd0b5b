package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nusantara-erp/ledger-core/internal/ageing"
	"github.com/nusantara-erp/ledger-core/internal/app"
	"github.com/nusantara-erp/ledger-core/internal/platform/cache"
	"github.com/nusantara-erp/ledger-core/internal/platform/db"
	"github.com/nusantara-erp/ledger-core/internal/shared"
	"github.com/nusantara-erp/ledger-core/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	ageingService := ageing.NewService(ageing.NewRepository(pool))

	integrityHandler := jobs.NewIntegrityHandler(jobs.IntegrityDeps{
		Pool:   pool,
		Audit:  auditLogger,
		Logger: logger,
	})
	cleanupHandler := jobs.NewIdempotencyCleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)
	snapshotHandler := jobs.NewAgeingSnapshotHandler(jobs.AgeingSnapshotDeps{
		Service: ageingService,
		Redis:   redisClient,
		Logger:  logger,
	})

	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.IntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask()
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	receivableTask, err := jobs.NewAgeingSnapshotTask(jobs.AgeingSnapshotPayload{Side: string(ageing.SideReceivable)})
	if err != nil {
		logger.Error("build receivable snapshot task", slog.Any("error", err))
		os.Exit(1)
	}
	payableTask, err := jobs.NewAgeingSnapshotTask(jobs.AgeingSnapshotPayload{Side: string(ageing.SidePayable)})
	if err != nil {
		logger.Error("build payable snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityHandler},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupHandler},
			{Type: jobs.TaskAgeingSnapshot, Handler: snapshotHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "0 2 * * *", Task: receivableTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "5 2 * * *", Task: payableTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
