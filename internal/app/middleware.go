package app

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/observability"
)

// Gateway headers carrying the authenticated principal. The upstream
// identity proxy sets them; this service never authenticates on its own.
const (
	headerPrincipalID = "X-Lyceum-Principal-Id"
	headerRole        = "X-Lyceum-Role"
	headerStatus      = "X-Lyceum-Status"
	headerSession     = "X-Lyceum-Session"
	headerIssuedAt    = "X-Lyceum-Issued-At"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Lyceum middleware chain. The principal
// middleware runs last so rate limiting and metrics see every request,
// authenticated or not.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	limit := 300
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		limit = cfg.Config.RateLimitPerMinute
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	middlewares = append(middlewares, PrincipalMiddleware(cfg.Logger))
	return middlewares
}

// PrincipalMiddleware builds the per-request principal from the trusted
// gateway headers. Requests without the ID header continue anonymously
// and fail closed at the decision gates. A present but unparseable
// Issued-At also yields an anonymous request: the decision path must
// never guess the issuing time.
func PrincipalMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(headerPrincipalID))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			var issuedAt time.Time
			if raw := r.Header.Get(headerIssuedAt); raw != "" {
				parsed, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					if logger != nil {
						logger.Warn("discarding principal with unparseable issued-at",
							slog.String("principal_id", id),
							slog.String("issued_at", raw),
						)
					}
					next.ServeHTTP(w, r)
					return
				}
				issuedAt = parsed
			}
			principal := authz.Principal{
				ID:           id,
				Role:         authz.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole)))),
				Status:       authz.Status(strings.ToLower(strings.TrimSpace(r.Header.Get(headerStatus)))),
				SessionID:    r.Header.Get(headerSession),
				IPAddress:    clientIP(r),
				DecisionTime: issuedAt,
			}
			next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// clientIP returns the remote address without its port. Behind RealIP the
// address already arrives bare.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
