package content

import (
	"fmt"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// PostRules implements authz.RuleSet for community posts.
type PostRules struct{}

// NewPostRules builds the post rule set.
func NewPostRules() PostRules { return PostRules{} }

// ResourceType implements authz.RuleSet.
func (PostRules) ResourceType() string { return PostResourceType }

var postPermissions = map[string]authz.Permission{
	ActionRead:     "post:read",
	ActionUpdate:   "post:update",
	ActionDelete:   "post:delete",
	ActionModerate: "post:moderate",
}

// RequiredPermission maps an action to the permission it demands.
func (PostRules) RequiredPermission(action string) (authz.Permission, error) {
	perm, ok := postPermissions[action]
	if !ok {
		return "", fmt.Errorf("content: unsupported post action %q", action)
	}
	return perm, nil
}

// ValidateState hides content whose author account is out of service.
func (PostRules) ValidateState(s authz.Snapshot) *authz.Denial {
	snap, ok := s.(PostSnapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "content: post snapshot type mismatch"}
	}
	if snap.AuthorStatus != string(authz.StatusActive) {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "post author account is not active"}
	}
	return nil
}

// OwnerOnly implements authz.RuleSet. Posts have a single author, so no
// action needs narrowing.
func (PostRules) OwnerOnly(string) bool { return false }

// ValidateBusiness enforces publication visibility and the removed-status
// lock. Unpublished posts deny with an ownership-kind denial so callers
// cannot distinguish them from missing posts.
func (PostRules) ValidateBusiness(s authz.Snapshot, action string, principal authz.Principal, _ authz.BusinessContext) (*authz.Denial, []string) {
	snap, ok := s.(PostSnapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "content: post snapshot type mismatch"}, nil
	}

	if action == ActionRead {
		switch snap.PostStatus {
		case PostPublished:
			return nil, nil
		case PostRemoved:
			if principal.Role.AtLeast(authz.RoleAdmin) {
				return nil, nil
			}
			return &authz.Denial{Kind: authz.DenialOwnership, Reason: "post has been removed"}, nil
		default:
			if principal.ID == snap.AuthorID || principal.Role.AtLeast(authz.RoleSupport) {
				return nil, nil
			}
			return &authz.Denial{Kind: authz.DenialOwnership, Reason: "post is not published"}, nil
		}
	}

	if snap.PostStatus == PostRemoved && action != ActionModerate {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "post has been removed and can no longer be modified",
		}, nil
	}
	if action == ActionUpdate && snap.PostStatus == PostArchived && !principal.Role.AtLeast(authz.RoleAdmin) {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "post is archived and cannot be edited",
		}, nil
	}
	return nil, nil
}

// ValidateTime implements authz.RuleSet. Posts carry no temporal rules.
func (PostRules) ValidateTime(authz.Snapshot, string, authz.Principal, authz.BusinessContext) (*authz.Denial, []string) {
	return nil, nil
}

// PublicFilter lists published posts only.
func (PostRules) PublicFilter() authz.Filter {
	return authz.Filter{Predicate: "status = $1", Args: []any{PostPublished}}
}

// OwnershipFilter lists published posts plus everything the principal
// authored.
func (PostRules) OwnershipFilter(principalID string) authz.Filter {
	return authz.Filter{
		Predicate: "(status = $1 OR author_id = $2)",
		Args:      []any{PostPublished, principalID},
	}
}

var _ authz.RuleSet = PostRules{}
