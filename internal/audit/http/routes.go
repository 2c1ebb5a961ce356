package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/platform/httpx"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes mendaftarkan endpoint audit di bawah guard permission.
// Pembacaan butuh audit:read, ekspor butuh audit:export dan dibatasi rate
// per principal.
func (h *Handler) MountRoutes(r chi.Router, guard authz.Middleware) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.Route("/audit", func(ar chi.Router) {
		ar.Group(func(gr chi.Router) {
			gr.Use(guard.RequireAny(authz.Permission("audit:read")))
			gr.Get("/records", h.handleRecords)
			gr.Get("/security-report", h.handleSecurityReport)
			gr.Get("/verify", h.handleVerify)
		})
		ar.Group(func(gr chi.Router) {
			gr.Use(guard.RequireAny(authz.Permission("audit:export")))
			gr.Use(limiter)
			gr.Get("/export", h.handleExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok && p.ID != "" {
		return "principal:" + p.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
