package authz

// Filter is a declarative, parameterized predicate spliced into a bulk
// query's WHERE clause by the data layer. Predicates use $n placeholders
// numbered from 1; callers renumber when composing with other clauses.
type Filter struct {
	Predicate string `json:"predicate"`
	Args      []any  `json:"args"`
}

// UnrestrictedFilter matches every row.
func UnrestrictedFilter() Filter {
	return Filter{Predicate: "TRUE"}
}

// DenyAllFilter matches no rows.
func DenyAllFilter() Filter {
	return Filter{Predicate: "FALSE"}
}

// BuildFilter translates a principal and permission into a list filter for
// the resource type. It never executes a query. Unknown resource types
// produce a deny-all filter; principals without the permission fall back to
// the rule set's public filter, the most restrictive view. Only elevated
// roles holding the permission globally see every row: an ordinary member
// with a global read grant still gets the rule set's visibility predicate,
// which is what keeps other members' drafts out of list results.
func (e *Engine) BuildFilter(principal *Principal, resourceType string, permission Permission) Filter {
	binding, ok := e.resources[resourceType]
	if !ok {
		return DenyAllFilter()
	}
	if principal == nil || principal.Status != StatusActive {
		return binding.rules.PublicFilter()
	}
	level := GrantFor(PermissionsFor(principal.Role), permission)
	switch {
	case level == MatchNone:
		return binding.rules.PublicFilter()
	case level == MatchGlobal && principal.Role.AtLeast(RoleSupport):
		return UnrestrictedFilter()
	default:
		return binding.rules.OwnershipFilter(principal.ID)
	}
}
