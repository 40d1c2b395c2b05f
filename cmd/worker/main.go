package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/app"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	jobmetrics "github.com/ildocuema64/Kamba-Many-sub001/internal/jobs"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/licensing"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/stock"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
	enginesync "github.com/ildocuema64/Kamba-Many-sub001/internal/sync"
	"github.com/ildocuema64/Kamba-Many-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	changeBus := bus.New()
	engineStore := store.New(pool, changeBus, logger)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	stockRepo := stock.NewRepository(engineStore)
	stockService := stock.NewService(stockRepo, auditLogger, nil, nil,
		stock.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock}, logger)
	auditJob := jobs.NewStockAuditJob(pool, stockService, logger, metrics)

	codes, err := licensing.NewCodeGenerator(cfg.ActivationSecret)
	if err != nil {
		logger.Error("licensing setup", slog.Any("error", err))
		os.Exit(1)
	}
	licensingRepo := licensing.NewRepository(engineStore)
	licensingService := licensing.NewService(licensingRepo, codes, auditLogger, logger)
	sweepJob := jobs.NewLicenseSweepJob(licensingService, logger, metrics)

	syncRepo := enginesync.NewRepository(engineStore)
	var remote enginesync.RemoteClient
	if cfg.SyncRemoteURL != "" {
		remote = enginesync.NewHTTPRemoteClient(cfg.SyncRemoteURL, http.DefaultClient)
	}
	reconciler := enginesync.NewReconciler(syncRepo, syncRepo, syncRepo, remote, redislock.New(redisClient), enginesync.Config{
		Interval:    cfg.SyncInterval,
		PushTimeout: cfg.SyncPushTimeout,
		PullTimeout: cfg.SyncPullTimeout,
		StaleAfter:  cfg.SyncStaleAfter,
		BatchSize:   cfg.SyncBatchSize,
	}, logger)
	reconcileJob := jobs.NewSyncReconcileJob(reconciler, logger, metrics)

	auditTask, err := jobs.NewStockAuditTask(jobs.StockAuditPayload{})
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}

	cron := []jobs.CronRegistration{
		{Spec: "30 2 * * *", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: "0 3 * * *", Task: jobs.NewLicenseSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if remote != nil {
		cron = append(cron, jobs.CronRegistration{
			Spec: "@every 1m", Task: jobs.NewSyncReconcileTask(),
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskLicenseSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskSyncReconcile, Handler: reconcileJob.Handle},
		},
		Cron: cron,
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
