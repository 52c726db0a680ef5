package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-retail/meridian/internal/accounts"
	"github.com/meridian-retail/meridian/internal/app"
	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/masterdata"
	"github.com/meridian-retail/meridian/internal/platform/cache"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/posting"
	"github.com/meridian-retail/meridian/internal/procurement"
	"github.com/meridian-retail/meridian/internal/sales"
	"github.com/meridian-retail/meridian/internal/shared"
	"github.com/meridian-retail/meridian/internal/transfer"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Snapshot reads fall back to PostgreSQL when the cache is away.
		logger.Warn("redis unavailable, snapshot cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequences := shared.NewSequences()

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo)
	registry := accounts.NewRegistry(accountsRepo)
	if _, err := registry.Resolve(ctx); err != nil {
		logger.Error("resolve system accounts", slog.Any("error", err))
		os.Exit(1)
	}

	ledgerStore := ledger.NewStore(pool, sequences)
	ledgerService := ledger.NewService(ledgerStore, auditLogger)

	builder := posting.NewBuilder(registry)
	postingService := posting.NewService(builder, ledgerService)

	costingStore := costing.NewStore(pool)
	snapshotCache := costing.NewSnapshotCache(redisClient, cfg.SnapshotCacheTTL)
	costingService := costing.NewService(costingStore, snapshotCache, auditLogger, idempotencyStore)

	adjustmentStore := posting.NewAdjustmentStore(pool, costingStore, ledgerStore)
	adjustmentService := posting.NewAdjustmentService(adjustmentStore, builder, costingService, auditLogger)

	transferStore := transfer.NewStore(pool, sequences, costingStore)
	transferService := transfer.NewService(transferStore, auditLogger)

	salesStore := sales.NewStore(pool, costingStore, ledgerStore)
	salesService := sales.NewService(salesStore, builder, auditLogger)

	procurementStore := procurement.NewStore(pool, costingStore, ledgerStore)
	procurementService := procurement.NewService(procurementStore, builder, auditLogger)

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataService := masterdata.NewService(masterdataRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		AccountsHandler:    accounts.NewHandler(logger, accountsService, registry),
		StockHandler:       costing.NewHandler(logger, costingService, adjustmentService),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService),
		TransferHandler:    transfer.NewHandler(logger, transferService),
		PostingHandler:     posting.NewHandler(logger, postingService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		MasterDataHandler:  masterdata.NewHandler(logger, masterdataService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
