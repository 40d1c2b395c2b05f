package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/app"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/catalog"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/invoicing"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/licensing"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/observability"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/cache"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/db"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/saft"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/stock"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
	enginesync "github.com/ildocuema64/Kamba-Many-sub001/internal/sync"
	"github.com/ildocuema64/Kamba-Many-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

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
		logger.Warn("redis connect", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	changeBus := bus.New()
	engineStore := store.New(pool, changeBus, logger)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(engineStore)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	var lowStockCache *stock.LowStockCache
	if redisClient != nil {
		lowStockCache = stock.NewLowStockCache(redisClient, cfg.LowStockCacheTTL)
		lowStockCache.InvalidateOn(changeBus)
	}
	stockRepo := stock.NewRepository(engineStore)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, lowStockCache,
		stock.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, logger)
	stockHandler := stock.NewHandler(logger, stockService)

	invoicingRepo := invoicing.NewRepository(engineStore)
	invoicingService := invoicing.NewService(invoicingRepo, stockService, auditLogger, logger)
	invoicingHandler := invoicing.NewHandler(invoicingService)

	codes, err := licensing.NewCodeGenerator(cfg.ActivationSecret)
	if err != nil {
		logger.Error("licensing setup", slog.Any("error", err))
		os.Exit(1)
	}
	licensingRepo := licensing.NewRepository(engineStore)
	licensingService := licensing.NewService(licensingRepo, codes, auditLogger, logger)
	licensingHandler := licensing.NewHandler(licensingService)

	exporter := saft.NewExporter(invoicingService, saft.CompanyInfo{
		Name:          cfg.CompanyName,
		TaxID:         cfg.CompanyTaxID,
		CurrencyCode:  cfg.CurrencyCode,
		SoftwareName:  "Kamba",
		ProductNumber: "1.0",
	})
	saftHandler := saft.NewHandler(exporter)

	syncRepo := enginesync.NewRepository(engineStore)
	var locker *redislock.Client
	if redisClient != nil {
		locker = redislock.New(redisClient)
	}
	var remote enginesync.RemoteClient
	if cfg.SyncRemoteURL != "" {
		remote = enginesync.NewHTTPRemoteClient(cfg.SyncRemoteURL, http.DefaultClient)
	}
	reconciler := enginesync.NewReconciler(syncRepo, syncRepo, syncRepo, remote, locker, enginesync.Config{
		Interval:    cfg.SyncInterval,
		PushTimeout: cfg.SyncPushTimeout,
		PullTimeout: cfg.SyncPullTimeout,
		StaleAfter:  cfg.SyncStaleAfter,
		BatchSize:   cfg.SyncBatchSize,
	}, logger)
	syncHandler := enginesync.NewHandler(reconciler)

	if remote != nil {
		go reconciler.Run(ctx)
	} else {
		logger.Info("sync remote not configured, reconciler idle")
	}

	var jobsClient *jobs.Client
	if redisClient != nil {
		jobsClient = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Store:            engineStore,
		CatalogHandler:   catalogHandler,
		StockHandler:     stockHandler,
		InvoicingHandler: invoicingHandler,
		LicensingHandler: licensingHandler,
		SaftHandler:      saftHandler,
		SyncHandler:      syncHandler,
		Metrics:          metrics,
		JobsClient:       jobsClient,
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
