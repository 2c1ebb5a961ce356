package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilterWithoutPrincipal(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	filter := fx.engine.BuildFilter(nil, "post", "post:read")
	assert.Equal(t, "status = $1", filter.Predicate)
	assert.Equal(t, []any{"published"}, filter.Args)
}

func TestBuildFilterInactivePrincipal(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	p := freshPrincipal("susp", RoleUser)
	p.Status = StatusSuspended
	filter := fx.engine.BuildFilter(&p, "post", "post:read")
	assert.Equal(t, "status = $1", filter.Predicate, "inactive principals see the public view only")
}

func TestBuildFilterElevatedRoles(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	for _, role := range []Role{RoleSuperAdmin, RoleAdmin, RoleSupport} {
		p := freshPrincipal("x", role)
		filter := fx.engine.BuildFilter(&p, "post", "post:read")
		assert.Equal(t, "TRUE", filter.Predicate, "role %s holds post:read globally", role)
		assert.Empty(t, filter.Args)
	}
}

func TestBuildFilterOrdinaryMemberGetsVisibilityPredicate(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	// The user role holds post:read globally, but only elevated roles see
	// every row; members get the published-or-authored predicate.
	p := freshPrincipal("u1", RoleUser)
	filter := fx.engine.BuildFilter(&p, "post", "post:read")
	assert.Equal(t, "(status = $1 OR owner_id = $2)", filter.Predicate)
	assert.Equal(t, []any{"published", "u1"}, filter.Args)
}

func TestBuildFilterOwnScopedGrant(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	p := freshPrincipal("u1", RoleUser)
	filter := fx.engine.BuildFilter(&p, "post", "post:update")
	assert.Equal(t, "(status = $1 OR owner_id = $2)", filter.Predicate)
}

func TestBuildFilterWithoutGrantFallsBackToPublic(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	p := freshPrincipal("ro", RoleReadonly)
	filter := fx.engine.BuildFilter(&p, "post", "post:moderate")
	assert.Equal(t, "status = $1", filter.Predicate)
}

func TestBuildFilterUnknownResourceTypeDeniesAll(t *testing.T) {
	fx := newEngineFixture(t, Options{})

	p := freshPrincipal("adm", RoleAdmin)
	filter := fx.engine.BuildFilter(&p, "ledger", "ledger:read")
	assert.Equal(t, "FALSE", filter.Predicate)
}
