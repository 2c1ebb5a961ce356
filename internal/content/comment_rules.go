package content

import (
	"fmt"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// CommentRules implements authz.RuleSet for comments. A comment inherits the
// fate of its parent post: when the post is gone, so is the thread.
type CommentRules struct{}

// NewCommentRules builds the comment rule set.
func NewCommentRules() CommentRules { return CommentRules{} }

// ResourceType implements authz.RuleSet.
func (CommentRules) ResourceType() string { return CommentResourceType }

var commentPermissions = map[string]authz.Permission{
	ActionRead:     "comment:read",
	ActionUpdate:   "comment:update",
	ActionDelete:   "comment:delete",
	ActionModerate: "comment:moderate",
}

// RequiredPermission maps an action to the permission it demands.
func (CommentRules) RequiredPermission(action string) (authz.Permission, error) {
	perm, ok := commentPermissions[action]
	if !ok {
		return "", fmt.Errorf("content: unsupported comment action %q", action)
	}
	return perm, nil
}

// ValidateState checks the author account and the parent post.
func (CommentRules) ValidateState(s authz.Snapshot) *authz.Denial {
	snap, ok := s.(CommentSnapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "content: comment snapshot type mismatch"}
	}
	if snap.AuthorStatus != string(authz.StatusActive) {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "comment author account is not active"}
	}
	if snap.PostStatus == PostRemoved {
		return &authz.Denial{Kind: authz.DenialEntityState, Reason: "parent post is no longer available"}
	}
	return nil
}

// OwnerOnly implements authz.RuleSet.
func (CommentRules) OwnerOnly(string) bool { return false }

// ValidateBusiness enforces comment visibility and the deleted-status lock.
func (CommentRules) ValidateBusiness(s authz.Snapshot, action string, principal authz.Principal, _ authz.BusinessContext) (*authz.Denial, []string) {
	snap, ok := s.(CommentSnapshot)
	if !ok {
		return &authz.Denial{Kind: authz.DenialSystem, Reason: "content: comment snapshot type mismatch"}, nil
	}

	if action == ActionRead {
		switch snap.CommentStatus {
		case CommentVisible:
			return nil, nil
		case CommentDeleted:
			if principal.Role.AtLeast(authz.RoleAdmin) {
				return nil, nil
			}
			return &authz.Denial{Kind: authz.DenialOwnership, Reason: "comment has been deleted"}, nil
		default: // hidden
			if principal.ID == snap.AuthorID || principal.Role.AtLeast(authz.RoleSupport) {
				return nil, nil
			}
			return &authz.Denial{Kind: authz.DenialOwnership, Reason: "comment is hidden"}, nil
		}
	}

	if snap.CommentStatus == CommentDeleted {
		return &authz.Denial{
			Kind:   authz.DenialBusinessRule,
			Reason: "comment has been deleted and can no longer be modified",
		}, nil
	}
	if action == ActionUpdate {
		if snap.CommentStatus == CommentHidden && !principal.Role.AtLeast(authz.RoleSupport) {
			return &authz.Denial{
				Kind:   authz.DenialBusinessRule,
				Reason: "comment is hidden pending moderation",
			}, nil
		}
		if snap.PostStatus != PostPublished && !principal.Role.AtLeast(authz.RoleSupport) {
			return &authz.Denial{
				Kind:   authz.DenialBusinessRule,
				Reason: "parent post is not published",
			}, nil
		}
	}
	return nil, nil
}

// ValidateTime implements authz.RuleSet. Comments carry no temporal rules.
func (CommentRules) ValidateTime(authz.Snapshot, string, authz.Principal, authz.BusinessContext) (*authz.Denial, []string) {
	return nil, nil
}

// PublicFilter lists visible comments only.
func (CommentRules) PublicFilter() authz.Filter {
	return authz.Filter{Predicate: "status = $1", Args: []any{CommentVisible}}
}

// OwnershipFilter lists visible comments plus everything the principal
// authored.
func (CommentRules) OwnershipFilter(principalID string) authz.Filter {
	return authz.Filter{
		Predicate: "(status = $1 OR author_id = $2)",
		Args:      []any{CommentVisible, principalID},
	}
}

var _ authz.RuleSet = CommentRules{}
