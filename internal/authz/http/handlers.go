// Package authzhttp exposes the decision engine over HTTP: single and
// batch evaluation, list-filter generation, and permission
// introspection. The service performs no authentication; principals
// arrive from the gateway middleware and flow through unchanged.
package authzhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/platform/httpx"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

// Handler serves the decision API.
type Handler struct {
	logger   *slog.Logger
	engine   *authz.Engine
	validate *validator.Validate
}

// NewHandler constructs a Handler around a fully registered engine.
func NewHandler(logger *slog.Logger, engine *authz.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(),
	}
}

// handleEvaluate answers one authorization question. A denied decision
// is a successful call: the verdict travels in the body, not the status
// code. A missing gateway principal flows through as a zero value so
// the context gate denies and audits it like any other request.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := authz.PrincipalFromContext(r.Context())
	result := h.engine.Evaluate(r.Context(), authz.Request{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		Principal:    principal,
		Business:     req.Business.toDomain(),
	})
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := authz.PrincipalFromContext(r.Context())
	result := h.engine.EvaluateBatch(r.Context(), req.ResourceType, req.ResourceIDs, req.Action, principal, req.Business.toDomain())
	httpx.JSON(w, http.StatusOK, result)
}

// handleFilter returns the list predicate for the caller's view of a
// resource type. No query is executed here; the data layer splices the
// predicate into its own statements.
func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !h.decode(w, r, &req) {
		return
	}
	var principal *authz.Principal
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		principal = &p
	}
	filter := h.engine.BuildFilter(principal, req.ResourceType, authz.Permission(req.Permission))
	httpx.JSON(w, http.StatusOK, filter)
}

// handleOwnPermissions reports the caller's stored grants.
func (h *Handler) handleOwnPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", authz.ReasonInvalidContext)
		return
	}
	h.respondPermissions(w, r, principal.ID)
}

// handlePermissionsOf reports another principal's grants. The route gate
// restricts it to roles holding member:read globally.
func (h *Handler) handlePermissionsOf(w http.ResponseWriter, r *http.Request) {
	h.respondPermissions(w, r, chi.URLParam(r, "principalID"))
}

func (h *Handler) respondPermissions(w http.ResponseWriter, r *http.Request, principalID string) {
	perms, err := h.engine.PermissionsOf(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", authz.ReasonNotFoundOrDenied)
			return
		}
		h.logger.Error("permission introspection failed",
			slog.Any("error", err),
			slog.String("principal_id", principalID),
		)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

// decode parses and validates a JSON body, writing the error response
// itself. It reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid field: "+fieldErrs[0].Field())
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	return true
}
