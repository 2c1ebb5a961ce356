package authz

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lyceum-edu/lyceum/internal/platform/httpx"
)

// Middleware wires route-level authorization gates. These gates consult the
// role table only; resource-level checks run inside handlers via Evaluate.
type Middleware struct {
	Logger        *slog.Logger
	MaxContextAge time.Duration
}

// RequireAny admits principals whose role grants at least one of the
// permissions. Denials use the merged public reason so gated routes do not
// reveal what exists behind them.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			grants, ok := m.grants(r)
			if !ok {
				m.deny(w, r)
				return
			}
			for _, p := range perms {
				if GrantFor(grants, p) == MatchGlobal {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r)
		})
	}
}

// RequireAll admits principals whose role grants every permission.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants, ok := m.grants(r)
			if !ok {
				m.deny(w, r)
				return
			}
			for _, p := range perms {
				if GrantFor(grants, p) != MatchGlobal {
					m.deny(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) grants(r *http.Request) ([]Permission, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		return nil, false
	}
	maxAge := m.MaxContextAge
	if maxAge <= 0 {
		maxAge = defaultMaxContextAge
	}
	if d := validatePrincipal(p, time.Now(), maxAge); d != nil {
		if m.Logger != nil {
			m.Logger.Debug("route gate rejected principal", slog.String("reason", d.Reason))
		}
		return nil, false
	}
	return PermissionsFor(p.Role), true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request) {
	if m.Logger != nil {
		m.Logger.Debug("route gate denied", slog.String("path", r.URL.Path))
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", ReasonNotFoundOrDenied)
}
