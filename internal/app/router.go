package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	audithttp "github.com/lyceum-edu/lyceum/internal/audit/http"
	"github.com/lyceum-edu/lyceum/internal/authz"
	authzhttp "github.com/lyceum-edu/lyceum/internal/authz/http"
	"github.com/lyceum-edu/lyceum/internal/observability"
	"github.com/lyceum-edu/lyceum/internal/platform/httpx"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthzHandler *authzhttp.Handler
	AuditHandler *audithttp.Handler
	Guard        authz.Middleware
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with Lyceum defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params))

	r.Route("/v1", func(v chi.Router) {
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(v, params.Guard)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(v, params.Guard)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// healthHandler pings Postgres and Redis. Either failing marks the
// service degraded; the decision path depends on both.
func healthHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if params.Pool != nil {
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Error("healthz postgres ping failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "component": "postgres"})
				return
			}
		}
		if params.Redis != nil {
			if err := params.Redis.Ping(ctx).Err(); err != nil {
				params.Logger.Error("healthz redis ping failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "component": "redis"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
