package authz

// rolePermissions is the static role-permission table. It is built once at
// process start and never mutated; role changes are an administrative action
// that requires a restart. Grants without the :own suffix apply globally,
// which is also what lets support skip ownership checks for the handful of
// operations it performs on behalf of members.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermissionAll,
	},
	RoleAdmin: {
		"appointment:read",
		"appointment:create",
		"appointment:update",
		"appointment:cancel",
		"appointment:reschedule",
		"appointment:complete",
		"appointment:delete",
		"post:read",
		"post:create",
		"post:update",
		"post:delete",
		"post:moderate",
		"comment:read",
		"comment:create",
		"comment:update",
		"comment:delete",
		"comment:moderate",
		"member:read",
		"member:update",
		"member:suspend",
		"member:delete",
		"member:role_change",
		"audit:read",
		"audit:export",
	},
	RoleSupport: {
		"appointment:read",
		"appointment:cancel",
		"appointment:reschedule",
		"post:read",
		"comment:read",
		"member:read",
	},
	RoleInstructor: {
		"appointment:read:own",
		"appointment:update:own",
		"appointment:complete:own",
		"post:read",
		"post:create",
		"post:update:own",
		"comment:read",
		"comment:create",
		"comment:update:own",
		"member:read:own",
	},
	RoleUser: {
		"appointment:read:own",
		"appointment:create",
		"appointment:update:own",
		"appointment:cancel:own",
		"appointment:reschedule:own",
		"post:read",
		"post:create",
		"post:update:own",
		"post:delete:own",
		"comment:read",
		"comment:create",
		"comment:update:own",
		"comment:delete:own",
		"member:read:own",
		"member:update:own",
	},
	RoleReadonly: {
		"appointment:read:own",
		"post:read",
		"comment:read",
		"member:read:own",
	},
}

// PermissionsFor returns a copy of the role's grants. Unknown roles receive
// an empty set, so lookups deny by default.
func PermissionsFor(role Role) []Permission {
	grants, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(grants))
	copy(out, grants)
	return out
}

// GrantFor returns the strongest match among the grants for the required
// permission.
func GrantFor(grants []Permission, required Permission) MatchLevel {
	level := MatchNone
	for _, grant := range grants {
		if m := grant.Match(required); m > level {
			level = m
		}
	}
	return level
}

// matchedGrants returns the grants that satisfy the required permission,
// preserving table order.
func matchedGrants(grants []Permission, required Permission) []string {
	var matched []string
	for _, grant := range grants {
		if grant.Match(required) != MatchNone {
			matched = append(matched, string(grant))
		}
	}
	return matched
}
