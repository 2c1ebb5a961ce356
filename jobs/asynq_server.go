package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/audit"
)

const workerConcurrency = 5

// Queue weights. Audit writes outrank everything else so record
// ingestion keeps up with decision traffic even while scans run.
var queueWeights = map[string]int{
	audit.QueueAudit: 5,
	QueueDefault:     3,
	QueueLow:         1,
}

// TaskHandler wires one task type to its Asynq handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// Worker runs the Asynq consumer and, when cron entries are given, the
// scheduler that feeds it.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates the wiring and prepares the server, mux and
// scheduler. An empty task type or nil handler is a wiring bug and
// fails construction rather than registering a dead route.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("jobs: incomplete handler registration %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	w := &Worker{
		server: asynq.NewServer(cfg.RedisOpts, asynq.Config{
			Concurrency: workerConcurrency,
			Queues:      queueWeights,
		}),
		mux:    mux,
		logger: cfg.Logger,
	}
	if len(cfg.Cron) == 0 {
		return w, nil
	}

	// Cron specs are evaluated in UTC so schedules survive host
	// timezone differences between environments.
	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	for _, entry := range cfg.Cron {
		if entry.Spec == "" || entry.Task == nil {
			return nil, errors.New("jobs: incomplete cron registration")
		}
		id, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...)
		if err != nil {
			return nil, fmt.Errorf("jobs: register %s: %w", entry.Task.Type(), err)
		}
		if cfg.Logger != nil {
			cfg.Logger.Debug("cron entry registered",
				slog.String("entry_id", id),
				slog.String("task", entry.Task.Type()),
				slog.String("spec", entry.Spec),
			)
		}
	}
	return w, nil
}

// Run processes tasks until the context is cancelled, then drains the
// scheduler and server. The context error is returned so callers can
// tell a signal-driven stop from a startup failure.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	if err := w.server.Start(w.mux); err != nil {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.logger != nil {
		w.logger.Info("worker started",
			slog.Int("concurrency", workerConcurrency),
			slog.Bool("scheduler", w.scheduler != nil),
		)
	}

	<-ctx.Done()
	if w.logger != nil {
		w.logger.Info("worker draining")
	}
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

// Handler exposes HTTP endpoints for worker observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for worker endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches the worker health route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/healthz", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

// health reports backlog on the audit queue, the one queue whose lag
// delays the audit trail.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := queueHealth{Queue: audit.QueueAudit}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(audit.QueueAudit)
		if err != nil {
			h.logger.Warn("worker health", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if info != nil {
			status.Queue = info.Queue
			status.Pending = int(info.Pending)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
