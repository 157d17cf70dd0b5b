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
	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/accounts"
	"github.com/nusantara-erp/ledger-core/internal/ageing"
	"github.com/nusantara-erp/ledger-core/internal/app"
	"github.com/nusantara-erp/ledger-core/internal/documents"
	"github.com/nusantara-erp/ledger-core/internal/inventory"
	"github.com/nusantara-erp/ledger-core/internal/ledger"
	"github.com/nusantara-erp/ledger-core/internal/platform/cache"
	"github.com/nusantara-erp/ledger-core/internal/platform/db"
	"github.com/nusantara-erp/ledger-core/internal/reconciliation"
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

	balanceTolerance := parseTolerance(logger, "balance", cfg.BalanceTolerance)
	reconTolerance := parseTolerance(logger, "reconciliation", cfg.ReconTolerance)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, balanceTolerance)
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool), auditLogger, idempotencyStore,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	reconService := reconciliation.NewService(reconciliation.NewRepository(pool), auditLogger, reconTolerance)
	ageingService := ageing.NewService(ageing.NewRepository(pool))
	documentsService := documents.NewService(documents.NewRepository(pool), ledgerService, auditLogger)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		AccountsHandler:       accounts.NewHandler(logger, accountsService),
		LedgerHandler:         ledger.NewHandler(logger, ledgerService),
		InventoryHandler:      inventory.NewHandler(logger, inventoryService),
		ReconciliationHandler: reconciliation.NewHandler(logger, reconService),
		AgeingHandler:         ageing.NewHandler(logger, ageingService),
		DocumentsHandler:      documents.NewHandler(logger, documentsService),
		Jobs:                  jobsClient,
		Pool:                  pool,
		Redis:                 redisClient,
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

func parseTolerance(logger *slog.Logger, name, raw string) decimal.Decimal {
	tol, err := decimal.NewFromString(raw)
	if err != nil || tol.IsNegative() {
		logger.Warn("invalid tolerance, using zero",
			slog.String("which", name), slog.String("raw", raw))
		return decimal.Zero
	}
	return tol
}
