package members

import (
	"fmt"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// Rules implements authz.RuleSet for member accounts.
type Rules struct{}

// NewRules builds the member rule set.
func NewRules() Rules { return Rules{} }

// ResourceType implements authz.RuleSet.
func (Rules) ResourceType() string { return ResourceType }

var memberPermissions = map[string]authz.Permission{
	ActionRead:       "member:read",
	ActionUpdate:     "member:update",
	ActionSuspend:    "member:suspend",
	ActionDelete:     "member:delete",
	ActionRoleChange: "member:role_change",
}

// RequiredPermission maps an action to the permission it demands.
func (Rules) RequiredPermission(action string) (authz.Permission, error) {
	perm, ok := memberPermissions[action]
	if !ok {
		return "", fmt.Errorf("members: unsupported action %q", action)
	}
	return perm, nil
}

// ValidateState denies deleted accounts. Suspended accounts stay reachable
// so an administrator can review and reinstate them.
func (Rules) ValidateState(s authz.Snapshot) *authz.Denial {
	snap, ok := s.(Snapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "members: snapshot type mismatch"}
	}
	if snap.MemberStatus == authz.StatusDeleted {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "member account has been deleted"}
	}
	return nil
}

// OwnerOnly implements authz.RuleSet. Accounts have no secondary owner.
func (Rules) OwnerOnly(string) bool { return false }

// ValidateBusiness enforces self-protection and rank ordering: nobody
// suspends or deletes their own account, and administrative actions only
// reach accounts of strictly lower rank.
func (Rules) ValidateBusiness(s authz.Snapshot, action string, principal authz.Principal, business authz.BusinessContext) (*authz.Denial, []string) {
	snap, ok := s.(Snapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "members: snapshot type mismatch"}, nil
	}

	administrative := action == ActionSuspend || action == ActionDelete || action == ActionRoleChange
	if administrative && principal.ID == snap.MemberID {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: fmt.Sprintf("cannot %s your own account", action),
		}, nil
	}
	if administrative && principal.Role.Rank() <= snap.MemberRole.Rank() {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "cannot act on an account of equal or higher rank",
		}, nil
	}
	if action == ActionUpdate && principal.ID != snap.MemberID && principal.Role.Rank() <= snap.MemberRole.Rank() {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "cannot act on an account of equal or higher rank",
		}, nil
	}

	if action == ActionRoleChange {
		if raw, ok := business.Params[ParamNewRole]; ok {
			newRole, err := authz.RoleFromString(raw)
			if err != nil {
				return &authz.Denial{
					Kind:   authz.DenialBusinessRule,
					Reason: fmt.Sprintf("unknown target role %q", raw),
				}, nil
			}
			if newRole.Rank() >= principal.Role.Rank() {
				return &authz.Denial{
					Kind:   authz.DenialBusinessRule,
					Reason: "cannot grant a role at or above your own",
				}, nil
			}
		}
	}
	return nil, nil
}

// ValidateTime implements authz.RuleSet. Accounts carry no temporal rules.
func (Rules) ValidateTime(authz.Snapshot, string, authz.Principal, authz.BusinessContext) (*authz.Denial, []string) {
	return nil, nil
}

// PublicFilter implements authz.RuleSet. The member directory is never
// public.
func (Rules) PublicFilter() authz.Filter { return authz.DenyAllFilter() }

// OwnershipFilter matches the principal's own account row.
func (Rules) OwnershipFilter(principalID string) authz.Filter {
	return authz.Filter{Predicate: "id = $1", Args: []any{principalID}}
}

var _ authz.RuleSet = Rules{}
