package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyceum-edu/lyceum/internal/shared"
)

// Gate names used in audit context, logs and metrics.
const (
	gateContext    = "context"
	gateResource   = "resource_fetch"
	gateState      = "entity_state"
	gatePermission = "role_permission"
	gateOwnership  = "ownership"
	gateBusiness   = "business_rule"
	gateTime       = "time_window"
	gateGranted    = "granted"
	gateSystem     = "system"
)

// ResourceStore fetches fresh resource snapshots. Implementations return
// shared.ErrNotFound (possibly wrapped) when the resource does not exist.
type ResourceStore interface {
	FetchSnapshot(ctx context.Context, resourceID string) (Snapshot, error)
}

// PrincipalStore revalidates a principal's stored status and role,
// independent of what the caller's context claims.
type PrincipalStore interface {
	FetchPrincipal(ctx context.Context, principalID string) (PrincipalState, error)
}

// Sink persists audit records and returns the assigned audit ID.
// Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, rec Record) (string, error)
}

// MetricsHook receives decision telemetry. Implementations must be safe for
// concurrent use.
type MetricsHook interface {
	ObserveDecision(resourceType, action, gate string, authorized bool, elapsed time.Duration)
	ObserveAuditFailure()
}

// FailureTracker observes denied decisions for abuse detection. Calls are
// best-effort and must not block the decision path.
type FailureTracker interface {
	RecordFailure(ctx context.Context, principalID string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(string, string, string, bool, time.Duration) {}
func (noopMetrics) ObserveAuditFailure()                                        {}

// Options tunes engine behavior. Zero values fall back to defaults.
type Options struct {
	// MaxContextAge bounds how old a principal context may be before it is
	// rejected as a possible replay. Default 5 minutes.
	MaxContextAge time.Duration
	// BatchChunkSize bounds concurrent evaluations per batch chunk.
	// Default 10.
	BatchChunkSize int
}

const (
	defaultMaxContextAge  = 5 * time.Minute
	defaultBatchChunkSize = 10
)

// EngineParams collects the collaborators required to build an Engine.
type EngineParams struct {
	Logger     *slog.Logger
	Principals PrincipalStore
	Sink       Sink
	Metrics    MetricsHook
	Tracker    FailureTracker
	Options    Options
}

// Engine evaluates authorization requests through a sequential gate
// pipeline, short-circuiting on the first denial. Decisions are stateless;
// the only shared state is the immutable resource-binding table assembled
// during startup.
type Engine struct {
	logger     *slog.Logger
	principals PrincipalStore
	sink       Sink
	metrics    MetricsHook
	tracker    FailureTracker
	resources  map[string]resourceBinding
	opts       Options
	now        func() time.Time
}

type resourceBinding struct {
	store ResourceStore
	rules RuleSet
}

// NewEngine constructs an Engine. PrincipalStore and Sink are required;
// metrics and failure tracking are optional.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Principals == nil {
		return nil, errors.New("authz: principal store required")
	}
	if params.Sink == nil {
		return nil, errors.New("authz: audit sink required")
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics MetricsHook = noopMetrics{}
	if params.Metrics != nil {
		metrics = params.Metrics
	}
	opts := params.Options
	if opts.MaxContextAge <= 0 {
		opts.MaxContextAge = defaultMaxContextAge
	}
	if opts.BatchChunkSize <= 0 {
		opts.BatchChunkSize = defaultBatchChunkSize
	}
	return &Engine{
		logger:     logger,
		principals: params.Principals,
		sink:       params.Sink,
		metrics:    metrics,
		tracker:    params.Tracker,
		resources:  make(map[string]resourceBinding),
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Register binds a resource type's snapshot store and rule set. All
// registrations must complete before the engine serves decisions; the
// binding table is read-only afterwards.
func (e *Engine) Register(store ResourceStore, rules RuleSet) error {
	if store == nil || rules == nil {
		return errors.New("authz: register requires a store and a rule set")
	}
	resourceType := strings.TrimSpace(rules.ResourceType())
	if resourceType == "" {
		return errors.New("authz: rule set has no resource type")
	}
	if _, exists := e.resources[resourceType]; exists {
		return fmt.Errorf("authz: resource type %s already registered", resourceType)
	}
	e.resources[resourceType] = resourceBinding{store: store, rules: rules}
	return nil
}

// Evaluate runs one authorization decision. It never returns an error and
// never panics: every failure mode resolves to a denied Result, and exactly
// one audit record is written per call regardless of outcome.
func (e *Engine) Evaluate(ctx context.Context, req Request) Result {
	start := e.now()
	out := e.decide(ctx, req)

	rec := Record{
		Timestamp:    e.now().UTC(),
		PrincipalID:  req.Principal.ID,
		Role:         string(req.Principal.Role),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		Authorized:   out.denial == nil,
		SessionID:    req.Principal.SessionID,
		IPAddress:    req.Principal.IPAddress,
	}
	switch {
	case out.denial != nil:
		rec.Reason = out.denial.Reason
	case len(out.conditions) > 0:
		rec.Reason = strings.Join(out.conditions, "; ")
	}
	auditID := e.record(ctx, rec)
	e.metrics.ObserveDecision(req.ResourceType, req.Action, out.gate, out.denial == nil, e.now().Sub(start))

	if out.denial != nil {
		if e.tracker != nil {
			e.tracker.RecordFailure(ctx, req.Principal.ID)
		}
		e.logger.Debug("authorization denied",
			slog.String("principal_id", req.Principal.ID),
			slog.String("resource_type", req.ResourceType),
			slog.String("resource_id", req.ResourceID),
			slog.String("action", req.Action),
			slog.String("gate", out.gate),
			slog.String("reason", out.denial.Reason),
		)
		return Result{Authorized: false, Reason: out.denial.PublicReason(), AuditID: auditID}
	}
	return Result{Authorized: true, Granted: out.granted, Conditions: out.conditions, AuditID: auditID}
}

type outcome struct {
	gate       string
	denial     *Denial
	granted    []string
	conditions []string
}

// decide walks the gate pipeline. Collaborator panics are recovered into a
// system denial so the engine always fails closed.
func (e *Engine) decide(ctx context.Context, req Request) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authorization evaluation panic",
				slog.Any("panic", r),
				slog.String("resource_type", req.ResourceType),
				slog.String("resource_id", req.ResourceID),
			)
			out = outcome{gate: gateSystem, denial: &Denial{Kind: DenialSystem, Reason: fmt.Sprintf("evaluation panic: %v", r)}}
		}
	}()

	if d := validatePrincipal(req.Principal, e.now(), e.opts.MaxContextAge); d != nil {
		return outcome{gate: gateContext, denial: d}
	}

	state, err := e.principals.FetchPrincipal(ctx, req.Principal.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return outcome{gate: gateContext, denial: &Denial{Kind: DenialContext, Reason: "principal " + req.Principal.ID + " not on record"}}
		}
		return outcome{gate: gateSystem, denial: &Denial{Kind: DenialSystem, Reason: "principal fetch: " + err.Error()}}
	}
	if state.Status != StatusActive {
		return outcome{gate: gateContext, denial: &Denial{Kind: DenialContext, Reason: fmt.Sprintf("principal not active: status %s", state.Status)}}
	}
	if state.Role != req.Principal.Role {
		return outcome{gate: gateContext, denial: &Denial{Kind: DenialContext, Reason: fmt.Sprintf("claimed role %s does not match stored role %s", req.Principal.Role, state.Role)}}
	}

	binding, ok := e.resources[req.ResourceType]
	if !ok {
		return outcome{gate: gatePermission, denial: &Denial{Kind: DenialPermission, Reason: "unregistered resource type " + req.ResourceType}}
	}

	snap, err := binding.store.FetchSnapshot(ctx, req.ResourceID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return outcome{gate: gateResource, denial: &Denial{Kind: DenialNotFound, Reason: fmt.Sprintf("%s %s not found", req.ResourceType, req.ResourceID)}}
		}
		return outcome{gate: gateSystem, denial: &Denial{Kind: DenialSystem, Reason: "snapshot fetch: " + err.Error()}}
	}

	if d := binding.rules.ValidateState(snap); d != nil {
		return outcome{gate: gateState, denial: d}
	}

	required, err := binding.rules.RequiredPermission(req.Action)
	if err != nil {
		return outcome{gate: gatePermission, denial: &Denial{Kind: DenialPermission, Reason: err.Error()}}
	}
	grants := PermissionsFor(req.Principal.Role)
	level := GrantFor(grants, required)
	if level == MatchNone {
		return outcome{gate: gatePermission, denial: &Denial{Kind: DenialPermission, Reason: fmt.Sprintf("role %s lacks %s", req.Principal.Role, required)}}
	}

	if d := checkOwnership(req.Principal, binding.rules, req.Action, snap, level); d != nil {
		return outcome{gate: gateOwnership, denial: d}
	}

	var conditions []string
	d, conds := binding.rules.ValidateBusiness(snap, req.Action, req.Principal, req.Business)
	if d != nil {
		return outcome{gate: gateBusiness, denial: d}
	}
	conditions = append(conditions, conds...)

	d, conds = binding.rules.ValidateTime(snap, req.Action, req.Principal, req.Business)
	if d != nil {
		return outcome{gate: gateTime, denial: d}
	}
	conditions = append(conditions, conds...)

	return outcome{gate: gateGranted, granted: matchedGrants(grants, required), conditions: conditions}
}

// validatePrincipal enforces the anti-replay context checks. Presence only:
// unknown-but-present roles flow on and deny at the permission gate with an
// empty grant set.
func validatePrincipal(p Principal, now time.Time, maxAge time.Duration) *Denial {
	if strings.TrimSpace(p.ID) == "" {
		return &Denial{Kind: DenialContext, Reason: "principal id missing"}
	}
	if p.Role == "" {
		return &Denial{Kind: DenialContext, Reason: "principal role missing"}
	}
	if p.Status == "" {
		return &Denial{Kind: DenialContext, Reason: "principal status missing"}
	}
	if p.Status != StatusActive {
		return &Denial{Kind: DenialContext, Reason: fmt.Sprintf("principal not active: status %s", p.Status)}
	}
	if p.DecisionTime.IsZero() {
		return &Denial{Kind: DenialContext, Reason: "principal decision timestamp missing"}
	}
	if now.Sub(p.DecisionTime) > maxAge {
		return &Denial{Kind: DenialContext, Reason: fmt.Sprintf("principal context older than %s", maxAge)}
	}
	return nil
}

// checkOwnership passes elevated roles and global grants straight through.
// Everyone else must hold a qualifying relationship: primary owner always
// qualifies, the secondary owner qualifies unless the action is owner-only.
func checkOwnership(p Principal, rules RuleSet, action string, snap Snapshot, level MatchLevel) *Denial {
	if p.Role.AtLeast(RoleAdmin) || level == MatchGlobal {
		return nil
	}
	if owner := snap.OwnerID(); owner != "" && owner == p.ID {
		return nil
	}
	if secondary := snap.SecondaryOwnerID(); secondary != "" && secondary == p.ID && !rules.OwnerOnly(action) {
		return nil
	}
	return &Denial{Kind: DenialOwnership, Reason: fmt.Sprintf("principal %s has no qualifying relationship for %s", p.ID, action)}
}

// record writes the audit record, substituting a sentinel audit ID when the
// sink fails or panics. Audit trouble never blocks the decision.
func (e *Engine) record(ctx context.Context, rec Record) (auditID string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("audit sink panic", slog.Any("panic", r), slog.String("principal_id", rec.PrincipalID))
			e.metrics.ObserveAuditFailure()
			auditID = AuditIDError
		}
	}()
	id, err := e.sink.Record(ctx, rec)
	if err != nil {
		e.logger.Error("audit sink failure", slog.Any("error", err), slog.String("principal_id", rec.PrincipalID))
		e.metrics.ObserveAuditFailure()
		return AuditIDFailed
	}
	return id
}

// PrincipalPermissions summarizes a principal's grants for introspection.
type PrincipalPermissions struct {
	PrincipalID  string   `json:"principal_id"`
	Role         Role     `json:"role"`
	Permissions  []string `json:"permissions"`
	Restrictions []string `json:"restrictions,omitempty"`
}

// PermissionsOf reports the stored role, grants and scope restrictions for a
// principal. Returns shared.ErrNotFound when the principal is not on record.
func (e *Engine) PermissionsOf(ctx context.Context, principalID string) (PrincipalPermissions, error) {
	if strings.TrimSpace(principalID) == "" {
		return PrincipalPermissions{}, errors.New("authz: principal id required")
	}
	state, err := e.principals.FetchPrincipal(ctx, principalID)
	if err != nil {
		return PrincipalPermissions{}, err
	}
	out := PrincipalPermissions{PrincipalID: principalID, Role: state.Role}
	for _, grant := range PermissionsFor(state.Role) {
		out.Permissions = append(out.Permissions, string(grant))
		if grant.Scope() == ScopeOwn {
			out.Restrictions = append(out.Restrictions, fmt.Sprintf("%s applies only to owned resources", grant.Base()))
		}
	}
	if state.Status != StatusActive {
		out.Restrictions = append(out.Restrictions, fmt.Sprintf("account status %s: all requests are denied", state.Status))
	}
	return out, nil
}
