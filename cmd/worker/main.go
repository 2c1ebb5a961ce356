package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/app"
	"github.com/lyceum-edu/lyceum/internal/audit"
	jobmetrics "github.com/lyceum-edu/lyceum/internal/jobs"
	"github.com/lyceum-edu/lyceum/internal/observability"
	"github.com/lyceum-edu/lyceum/internal/platform/cache"
	"github.com/lyceum-edu/lyceum/internal/platform/db"
	"github.com/lyceum-edu/lyceum/internal/security"
	"github.com/lyceum-edu/lyceum/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tracker := security.NewTracker(redisClient, security.Config{
		Window:    cfg.Security.FailureWindow,
		Threshold: cfg.Security.FailureThreshold,
	}, logger)

	store := audit.NewStore(pool)

	metrics := observability.NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())

	ingestJob := jobs.NewAuditIngestJob(store, logger, jm)
	scanJob := jobs.NewSecurityScanJob(store, tracker, logger, jm, metrics)

	scanTask, err := jobs.NewSecurityScanTask(cfg.Audit.ScanWindow, 20)
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: audit.TaskTypeRecord, Handler: ingestJob.Handle},
			{Type: jobs.TaskSecurityScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.Audit.ScanSchedule, Task: scanTask, Options: []asynq.Option{
				asynq.Queue(jobs.QueueLow),
				asynq.MaxRetry(3),
			}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	obs := chi.NewRouter()
	jobs.NewHandler(inspector, logger).MountRoutes(obs)
	obs.Method(http.MethodGet, "/metrics", metrics.Handler())

	obsServer := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      obs,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		logger.Info("starting worker observability server", slog.String("addr", cfg.AppAddr))
		if err := obsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("observability server", slog.Any("error", err))
		}
	}()

	runErr := worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("observability shutdown", slog.Any("error", err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("worker run", slog.Any("error", runErr))
		os.Exit(1)
	}
}
