// Package members manages community accounts: the principal store the
// engine revalidates callers against and the rule set governing
// administrative actions on accounts.
package members

import (
	"time"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// ResourceType identifies member accounts to the authorization engine.
const ResourceType = "member"

// Actions evaluated against member accounts.
const (
	ActionRead       = "read"
	ActionUpdate     = "update"
	ActionSuspend    = "suspend"
	ActionDelete     = "delete"
	ActionRoleChange = "role_change"
)

// ParamNewRole is the business-context parameter carrying the role a
// role_change request wants to assign.
const ParamNewRole = "new_role"

// Member is one community account.
type Member struct {
	ID        string
	Email     string
	Name      string
	Role      authz.Role
	Status    authz.Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the per-decision read model of a member account. The account
// is its own owner: members self-serve reads and profile updates.
type Snapshot struct {
	MemberID     string
	MemberRole   authz.Role
	MemberStatus authz.Status
}

// ResourceID implements authz.Snapshot.
func (s Snapshot) ResourceID() string { return s.MemberID }

// OwnerID returns the account itself.
func (s Snapshot) OwnerID() string { return s.MemberID }

// SecondaryOwnerID is always empty for accounts.
func (s Snapshot) SecondaryOwnerID() string { return "" }

// Status returns the account status.
func (s Snapshot) Status() string { return string(s.MemberStatus) }

// DependentStates implements authz.Snapshot. Accounts depend on nothing.
func (s Snapshot) DependentStates() map[string]string { return nil }

var _ authz.Snapshot = Snapshot{}
