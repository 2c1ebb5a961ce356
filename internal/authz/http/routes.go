package authzhttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// MountRoutes registers the decision API under /authz. Evaluation
// endpoints carry no route gate: the engine itself is the gate and must
// see every request, anonymous ones included, so that each is audited.
func (h *Handler) MountRoutes(r chi.Router, guard authz.Middleware) {
	if h == nil {
		return
	}
	r.Route("/authz", func(ar chi.Router) {
		ar.Post("/evaluate", h.handleEvaluate)
		ar.Post("/batch", h.handleBatch)
		ar.Post("/filter", h.handleFilter)
		ar.Get("/permissions", h.handleOwnPermissions)
		ar.Group(func(gr chi.Router) {
			gr.Use(guard.RequireAny(authz.Permission("member:read")))
			gr.Get("/permissions/{principalID}", h.handlePermissionsOf)
		})
	})
}
