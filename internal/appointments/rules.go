package appointments

import (
	"fmt"
	"time"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// ConditionLateCancellation is recorded when an elevated role cancels inside
// the policy window instead of being denied.
const ConditionLateCancellation = "Late cancellation — policy override applied"

// RuleConfig tunes the appointment policy. Zero values fall back to the
// platform defaults.
type RuleConfig struct {
	// CancellationWindow is the minimum notice before the start time within
	// which ordinary roles may no longer cancel or reschedule. Default 24h.
	CancellationWindow time.Duration

	// MinimumLeadTime locks all changes by ordinary roles this close to the
	// start time. Default 1h.
	MinimumLeadTime time.Duration

	// LateOverrideActions lists the actions elevated roles may still perform
	// inside the cancellation window, recorded as a condition. Default
	// ["cancel"].
	LateOverrideActions []string
}

func (c RuleConfig) withDefaults() RuleConfig {
	if c.CancellationWindow <= 0 {
		c.CancellationWindow = 24 * time.Hour
	}
	if c.MinimumLeadTime <= 0 {
		c.MinimumLeadTime = time.Hour
	}
	if c.LateOverrideActions == nil {
		c.LateOverrideActions = []string{ActionCancel}
	}
	return c
}

// Rules implements authz.RuleSet for appointments.
type Rules struct {
	cfg          RuleConfig
	lateOverride map[string]bool
}

// NewRules builds the appointment rule set.
func NewRules(cfg RuleConfig) Rules {
	cfg = cfg.withDefaults()
	override := make(map[string]bool, len(cfg.LateOverrideActions))
	for _, action := range cfg.LateOverrideActions {
		override[action] = true
	}
	return Rules{cfg: cfg, lateOverride: override}
}

// ResourceType implements authz.RuleSet.
func (Rules) ResourceType() string { return ResourceType }

var appointmentPermissions = map[string]authz.Permission{
	ActionRead:       "appointment:read",
	ActionUpdate:     "appointment:update",
	ActionCancel:     "appointment:cancel",
	ActionReschedule: "appointment:reschedule",
	ActionComplete:   "appointment:complete",
	ActionDelete:     "appointment:delete",
}

// RequiredPermission maps an action to the permission it demands.
func (Rules) RequiredPermission(action string) (authz.Permission, error) {
	perm, ok := appointmentPermissions[action]
	if !ok {
		return "", fmt.Errorf("appointments: unsupported action %q", action)
	}
	return perm, nil
}

// ValidateState denies when a participant account or the booked program is
// out of service.
func (Rules) ValidateState(s authz.Snapshot) *authz.Denial {
	snap, ok := s.(Snapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "appointments: snapshot type mismatch"}
	}
	if snap.MemberStatus != string(authz.StatusActive) {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "booking member account is not active"}
	}
	if snap.InstructorID != "" && snap.InstructorStatus != string(authz.StatusActive) {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "assigned instructor account is not active"}
	}
	if !snap.ProgramActive {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "training program is no longer offered"}
	}
	return nil
}

// OwnerOnly narrows destructive actions to the booking member: an assigned
// instructor may update or complete a session but never delete it.
func (Rules) OwnerOnly(action string) bool {
	return action == ActionDelete
}

// ValidateBusiness enforces status transitions and the cancellation policy
// window.
func (r Rules) ValidateBusiness(s authz.Snapshot, action string, principal authz.Principal, business authz.BusinessContext) (*authz.Denial, []string) {
	snap, ok := s.(Snapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "appointments: snapshot type mismatch"}, nil
	}
	if action == ActionRead {
		return nil, nil
	}

	status := snap.AppointmentStatus
	if IsTerminal(status) {
		if action == ActionCancel && status == StatusCancelled {
			return &authz.Denial{Kind: authz.DenialBusinessRule, Reason: "appointment is already cancelled"}, nil
		}
		// Terminal records stay immutable for everyone; only a super admin
		// may purge one outright.
		if action == ActionDelete && principal.Role == authz.RoleSuperAdmin {
			return nil, []string{"terminal appointment removed by super admin"}
		}
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: fmt.Sprintf("appointment is %s and can no longer be modified", status),
		}, nil
	}

	if action == ActionComplete && status != StatusConfirmed {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "only confirmed appointments can be completed",
		}, nil
	}

	if r.windowChecked(action) {
		now := business.EffectiveNow(time.Now())
		if hours, known := hoursUntilStart(snap, business, now); known {
			window := r.policyWindowHours(business)
			if hours < window {
				if principal.Role.AtLeast(authz.RoleSupport) && r.lateOverride[action] {
					return nil, []string{lateOverrideCondition(action)}
				}
				return &authz.Denial{
					Kind:   authz.DenialBusinessRule,
					Reason: fmt.Sprintf("%s requires at least %.0f hours notice", action, window),
				}, nil
			}
		}
	}
	return nil, nil
}

// ValidateTime blocks ordinary roles from touching past or imminent
// appointments.
func (r Rules) ValidateTime(s authz.Snapshot, action string, principal authz.Principal, business authz.BusinessContext) (*authz.Denial, []string) {
	snap, ok := s.(Snapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "appointments: snapshot type mismatch"}, nil
	}
	if action == ActionRead || action == ActionComplete {
		// Completion is recorded after the session ends.
		return nil, nil
	}

	now := business.EffectiveNow(time.Now())
	hours, known := hoursUntilStart(snap, business, now)
	if !known {
		return nil, nil
	}

	if hours < 0 {
		if principal.Role.AtLeast(authz.RoleAdmin) {
			return nil, nil
		}
		return &authz.Denial{Kind: authz.DenialTimeWindow, Reason: "appointment has already started or passed"}, nil
	}
	if hours*float64(time.Hour) < float64(r.cfg.MinimumLeadTime) {
		if principal.Role.AtLeast(authz.RoleSupport) {
			return nil, nil
		}
		return &authz.Denial{
			Kind:   authz.DenialTimeWindow,
			Reason: fmt.Sprintf("changes are locked in the final %.0f minutes before the start time", r.cfg.MinimumLeadTime.Minutes()),
		}, nil
	}
	return nil, nil
}

// PublicFilter hides every appointment from anonymous listings.
func (Rules) PublicFilter() authz.Filter { return authz.DenyAllFilter() }

// OwnershipFilter matches appointments the principal participates in.
func (Rules) OwnershipFilter(principalID string) authz.Filter {
	return authz.Filter{
		Predicate: "(member_id = $1 OR instructor_id = $1)",
		Args:      []any{principalID},
	}
}

func (r Rules) windowChecked(action string) bool {
	return action == ActionCancel || action == ActionReschedule
}

func (r Rules) policyWindowHours(business authz.BusinessContext) float64 {
	if business.PolicyWindowHours != nil && *business.PolicyWindowHours > 0 {
		return *business.PolicyWindowHours
	}
	return r.cfg.CancellationWindow.Hours()
}

// hoursUntilStart prefers the caller-supplied figure and falls back to the
// stored start time. The second return is false when neither is available.
func hoursUntilStart(snap Snapshot, business authz.BusinessContext, now time.Time) (float64, bool) {
	if business.HoursUntilEvent != nil {
		return *business.HoursUntilEvent, true
	}
	if snap.StartsAt.IsZero() {
		return 0, false
	}
	return snap.StartsAt.Sub(now).Hours(), true
}

func lateOverrideCondition(action string) string {
	switch action {
	case ActionCancel:
		return ConditionLateCancellation
	case ActionReschedule:
		return "Late reschedule — policy override applied"
	default:
		return "Late " + action + " — policy override applied"
	}
}

var _ authz.RuleSet = Rules{}
