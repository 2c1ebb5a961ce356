package authz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcardsReservedForSuperAdmin(t *testing.T) {
	for role, grants := range rolePermissions {
		if role == RoleSuperAdmin {
			continue
		}
		for _, grant := range grants {
			assert.False(t, grant == PermissionAll || strings.Contains(string(grant), "*"),
				"role %s must not hold wildcard grant %s", role, grant)
		}
	}
	assert.Contains(t, PermissionsFor(RoleSuperAdmin), PermissionAll)
}

func TestPermissionsForUnknownRoleIsEmpty(t *testing.T) {
	assert.Empty(t, PermissionsFor(Role("janitor")))
	assert.Empty(t, PermissionsFor(Role("")))
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	grants := PermissionsFor(RoleReadonly)
	require.NotEmpty(t, grants)
	grants[0] = PermissionAll
	assert.NotContains(t, PermissionsFor(RoleReadonly), PermissionAll)
}

func TestEveryRoleHasValidGrantSyntax(t *testing.T) {
	for role, grants := range rolePermissions {
		require.True(t, role.Valid(), "table role %s must be in the closed set", role)
		for _, grant := range grants {
			if grant == PermissionAll {
				continue
			}
			assert.NotEmpty(t, grant.Resource(), "grant %s for %s", grant, role)
			assert.NotEmpty(t, grant.Action(), "grant %s for %s", grant, role)
			if scope := grant.Scope(); scope != "" {
				assert.Equal(t, ScopeOwn, scope, "grant %s for %s", grant, role)
			}
		}
	}
}

func TestGrantForLevels(t *testing.T) {
	cases := []struct {
		role     Role
		required Permission
		want     MatchLevel
	}{
		{RoleSuperAdmin, "member:role_change", MatchGlobal},
		{RoleAdmin, "post:update", MatchGlobal},
		{RoleSupport, "appointment:cancel", MatchGlobal},
		{RoleSupport, "appointment:update", MatchNone},
		{RoleInstructor, "appointment:update", MatchOwn},
		{RoleUser, "post:update", MatchOwn},
		{RoleUser, "post:read", MatchGlobal},
		{RoleUser, "member:suspend", MatchNone},
		{RoleReadonly, "post:read", MatchGlobal},
		{RoleReadonly, "post:update", MatchNone},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+" "+string(tc.required), func(t *testing.T) {
			assert.Equal(t, tc.want, GrantFor(PermissionsFor(tc.role), tc.required))
		})
	}
}

func TestMatchedGrantsPreservesTableOrder(t *testing.T) {
	matched := matchedGrants(PermissionsFor(RoleUser), "post:read")
	assert.Equal(t, []string{"post:read"}, matched)

	matched = matchedGrants(PermissionsFor(RoleSuperAdmin), "anything:at_all")
	assert.Equal(t, []string{"*"}, matched)

	assert.Empty(t, matchedGrants(PermissionsFor(RoleReadonly), "member:delete"))
}
