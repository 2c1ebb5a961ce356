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

	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/app"
	"github.com/lyceum-edu/lyceum/internal/appointments"
	"github.com/lyceum-edu/lyceum/internal/audit"
	audithttp "github.com/lyceum-edu/lyceum/internal/audit/http"
	"github.com/lyceum-edu/lyceum/internal/authz"
	authzhttp "github.com/lyceum-edu/lyceum/internal/authz/http"
	"github.com/lyceum-edu/lyceum/internal/content"
	"github.com/lyceum-edu/lyceum/internal/members"
	"github.com/lyceum-edu/lyceum/internal/observability"
	"github.com/lyceum-edu/lyceum/internal/platform/cache"
	"github.com/lyceum-edu/lyceum/internal/platform/db"
	"github.com/lyceum-edu/lyceum/internal/security"
	"github.com/lyceum-edu/lyceum/report"
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

	// Transient broker outages degrade to direct writes inside the async
	// sink, so async mode never loses the audit trail.
	var sink authz.Sink = store
	if cfg.Audit.Mode == "async" {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		asyncSink, err := audit.NewAsyncSink(asynqClient, store, logger)
		if err != nil {
			logger.Error("init audit sink", slog.Any("error", err))
			os.Exit(1)
		}
		sink = asyncSink
	}

	metrics := observability.NewMetrics()

	membersRepo := members.NewRepository(pool)

	engine, err := authz.NewEngine(authz.EngineParams{
		Logger:     logger,
		Principals: membersRepo,
		Sink:       sink,
		Metrics:    metrics,
		Tracker:    tracker,
		Options: authz.Options{
			MaxContextAge:  cfg.Engine.MaxContextAge,
			BatchChunkSize: cfg.Engine.BatchChunkSize,
		},
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}

	appointmentRules := appointments.NewRules(appointments.RuleConfig{
		CancellationWindow:  cfg.Engine.CancellationWindow,
		MinimumLeadTime:     cfg.Engine.MinimumLeadTime,
		LateOverrideActions: cfg.Engine.LateOverrideActions,
	})
	registrations := []struct {
		store authz.ResourceStore
		rules authz.RuleSet
	}{
		{appointments.NewRepository(pool), appointmentRules},
		{content.NewPostRepository(pool), content.NewPostRules()},
		{content.NewCommentRepository(pool), content.NewCommentRules()},
		{membersRepo, members.NewRules()},
	}
	for _, reg := range registrations {
		if err := engine.Register(reg.store, reg.rules); err != nil {
			logger.Error("register resource", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var renderer audit.Renderer
	if cfg.GotenbergURL != "" {
		pdfClient := report.NewClient(cfg.GotenbergURL)
		if err := pdfClient.Ping(ctx); err != nil {
			logger.Warn("gotenberg unreachable, pdf export degraded", slog.Any("error", err))
		}
		renderer = pdfClient
	}

	auditService, err := audit.NewService(store, tracker, renderer, cfg.Security.FailureThreshold)
	if err != nil {
		logger.Error("init audit service", slog.Any("error", err))
		os.Exit(1)
	}

	guard := authz.Middleware{Logger: logger, MaxContextAge: cfg.Engine.MaxContextAge}

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: authzhttp.NewHandler(logger, engine),
		AuditHandler: audithttp.NewHandler(logger, auditService),
		Guard:        guard,
		Pool:         pool,
		Redis:        redisClient,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
