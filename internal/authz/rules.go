package authz

// RuleSet supplies the per-resource-type policy consulted by the engine's
// gates. Implementations live next to their resource module and must be
// stateless: the same snapshot and inputs always produce the same answer.
type RuleSet interface {
	// ResourceType names the resource this rule set governs.
	ResourceType() string

	// RequiredPermission resolves the minimal permission for an action.
	// Unknown actions return an error and deny the request.
	RequiredPermission(action string) (Permission, error)

	// ValidateState denies when the resource, one of its owners, or a
	// dependent configuration entity is not in a usable state.
	ValidateState(snap Snapshot) *Denial

	// OwnerOnly reports whether the action is restricted to the primary
	// owner even when a secondary owner exists.
	OwnerOnly(action string) bool

	// ValidateBusiness enforces domain invariants such as terminal-status
	// immutability or cancellation-policy windows. It may return
	// conditions recorded on an eventual grant instead of denying.
	ValidateBusiness(snap Snapshot, action string, principal Principal, business BusinessContext) (*Denial, []string)

	// ValidateTime enforces temporal restrictions such as past-event
	// freezes and minimum lead times.
	ValidateTime(snap Snapshot, action string, principal Principal, business BusinessContext) (*Denial, []string)

	// PublicFilter is the most restrictive list filter, applied when no
	// qualifying principal is present.
	PublicFilter() Filter

	// OwnershipFilter scopes a list query to rows the principal owns or
	// is otherwise entitled to see.
	OwnershipFilter(principalID string) Filter
}
