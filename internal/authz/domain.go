// Package authz implements the policy-based access control engine used across
// Lyceum: a role-permission table, a gate pipeline for single decisions, a
// bounded concurrent batch evaluator, and a query filter generator for bulk
// reads. Decisions fail closed and every evaluation is audited.
package authz

import (
	"fmt"
	"strings"
	"time"
)

// Public reason strings. Denials that could reveal resource existence share
// one merged string so callers cannot probe for hidden resources.
const (
	ReasonNotFoundOrDenied = "not found or access denied"
	ReasonInvalidContext   = "stale or invalid principal context"
	ReasonSystemError      = "authorization system error"
)

// Sentinel audit IDs returned when the audit sink is unavailable. The
// decision itself is never blocked or reversed by an audit failure.
const (
	AuditIDFailed = "audit-log-failed"
	AuditIDError  = "audit-log-error"
)

// Status describes an account's lifecycle state.
type Status string

// Account statuses.
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// Role is one of the closed set of platform roles.
type Role string

// Platform roles, highest rank first.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleSupport    Role = "support"
	RoleInstructor Role = "instructor"
	RoleUser       Role = "user"
	RoleReadonly   Role = "readonly"
)

var roleRanks = map[Role]int{
	RoleSuperAdmin: 100,
	RoleAdmin:      80,
	RoleSupport:    60,
	RoleInstructor: 40,
	RoleUser:       20,
	RoleReadonly:   10,
}

// Rank returns the role's elevation rank. Unknown roles rank zero.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether the role is part of the closed set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast reports whether the role ranks at or above the other role.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// RoleFromString parses a role name, rejecting unknown values.
func RoleFromString(name string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(name)))
	if !r.Valid() {
		return "", fmt.Errorf("authz: unknown role %q", name)
	}
	return r, nil
}

// ScopeOwn marks a permission that applies only to resources the principal
// owns (directly or as secondary owner).
const ScopeOwn = "own"

// PermissionAll is the universal wildcard held only by super_admin.
const PermissionAll Permission = "*"

// Permission is a grant string of the form resource:action[:scope].
type Permission string

// Resource returns the resource segment of the permission.
func (p Permission) Resource() string {
	res, _, _ := p.split()
	return res
}

// Action returns the action segment of the permission.
func (p Permission) Action() string {
	_, action, _ := p.split()
	return action
}

// Scope returns the scope segment, empty for global grants.
func (p Permission) Scope() string {
	_, _, scope := p.split()
	return scope
}

// Base returns the permission without its scope segment.
func (p Permission) Base() Permission {
	res, action, _ := p.split()
	if action == "" {
		return Permission(res)
	}
	return Permission(res + ":" + action)
}

func (p Permission) split() (resource, action, scope string) {
	parts := strings.SplitN(string(p), ":", 3)
	resource = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		scope = parts[2]
	}
	return resource, action, scope
}

// MatchLevel describes how a held grant satisfies a required permission.
type MatchLevel int

// Match levels, weakest first.
const (
	MatchNone   MatchLevel = iota
	MatchOwn               // grant applies only to owned resources
	MatchGlobal            // grant applies regardless of ownership
)

// Match reports how the held grant satisfies the required permission.
// Wildcards grant globally; an :own suffix demotes the match to MatchOwn.
func (p Permission) Match(required Permission) MatchLevel {
	if p == PermissionAll {
		return MatchGlobal
	}
	if p.Action() == "*" && p.Scope() == "" && p.Resource() == required.Resource() {
		return MatchGlobal
	}
	if p.Base() != required.Base() {
		return MatchNone
	}
	if p.Scope() == ScopeOwn {
		return MatchOwn
	}
	return MatchGlobal
}

// Principal is an immutable snapshot of the authenticated actor for one
// decision. A fresh Principal must be constructed per request.
type Principal struct {
	ID           string
	Role         Role
	Status       Status
	SessionID    string
	IPAddress    string
	DecisionTime time.Time
}

// PrincipalState is the stored status and role of a principal, fetched fresh
// per decision to defeat stale-token privilege escalation.
type PrincipalState struct {
	Status Status
	Role   Role
}

// Snapshot is a read-only projection of a resource, fetched fresh for every
// decision. Each resource type supplies its own implementation.
type Snapshot interface {
	ResourceID() string
	// OwnerID returns the owning principal's ID, empty when unowned.
	OwnerID() string
	// SecondaryOwnerID returns an additional qualifying principal, such as
	// an assigned instructor. Empty when absent.
	SecondaryOwnerID() string
	Status() string
	// DependentStates maps dependent entity names to their statuses, e.g.
	// the owner account or the program configuration the resource needs.
	DependentStates() map[string]string
}

// BusinessContext carries domain parameters consumed by business-rule and
// time-window gates.
type BusinessContext struct {
	Now               time.Time
	HoursUntilEvent   *float64
	PolicyWindowHours *float64
	Params            map[string]string
}

// EffectiveNow returns the context clock, falling back to the supplied time.
func (b BusinessContext) EffectiveNow(fallback time.Time) time.Time {
	if b.Now.IsZero() {
		return fallback
	}
	return b.Now
}

// Request describes one authorization question.
type Request struct {
	ResourceType string
	ResourceID   string
	Action       string
	Principal    Principal
	Business     BusinessContext
}

// Result is the engine's answer to a Request. Reason is empty when
// authorized; Conditions records non-blocking caveats applied on the way to
// a grant.
type Result struct {
	Authorized bool     `json:"authorized"`
	Reason     string   `json:"reason,omitempty"`
	Granted    []string `json:"granted_permissions,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	AuditID    string   `json:"audit_id"`
}

// Record captures one decision for the audit trail.
type Record struct {
	Timestamp    time.Time
	PrincipalID  string
	Role         string
	ResourceType string
	ResourceID   string
	Action       string
	Authorized   bool
	Reason       string
	SessionID    string
	IPAddress    string
}

// DenialKind classifies why a decision was denied.
type DenialKind int

// Denial kinds, in gate order.
const (
	DenialContext DenialKind = iota + 1
	DenialNotFound
	DenialEntityState
	DenialPermission
	DenialOwnership
	DenialBusinessRule
	DenialTimeWindow
	DenialSystem
)

// Denial is a gate's refusal. Reason holds the internal explanation recorded
// in the audit trail; the caller-facing string comes from PublicReason.
type Denial struct {
	Kind   DenialKind
	Reason string
}

// PublicReason maps the denial to the string exposed to callers. Kinds that
// could leak resource existence collapse into one merged string; state,
// business-rule and time-window reasons are safe to disclose to the
// resource's legitimate stakeholders.
func (d Denial) PublicReason() string {
	switch d.Kind {
	case DenialNotFound, DenialPermission, DenialOwnership:
		return ReasonNotFoundOrDenied
	case DenialContext:
		return ReasonInvalidContext
	case DenialSystem:
		return ReasonSystemError
	default:
		return d.Reason
	}
}
