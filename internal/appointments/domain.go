// Package appointments models training-program bookings and supplies the
// snapshot store and policy rule set the authorization engine evaluates them
// with.
package appointments

import (
	"time"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// ResourceType identifies appointments to the authorization engine.
const ResourceType = "appointment"

// Appointment statuses. Completed, cancelled and no-show are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Actions evaluated against appointments.
const (
	ActionRead       = "read"
	ActionUpdate     = "update"
	ActionCancel     = "cancel"
	ActionReschedule = "reschedule"
	ActionComplete   = "complete"
	ActionDelete     = "delete"
)

// IsTerminal reports whether the status permits no further changes.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is one training-program booking.
type Appointment struct {
	ID           string
	MemberID     string
	InstructorID string
	ProgramID    string
	Status       string
	StartsAt     time.Time
	EndsAt       time.Time
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is the denormalized read model one decision evaluates: the
// appointment joined with its member, instructor and program states. It is
// fetched fresh per decision and never cached.
type Snapshot struct {
	ID                string
	MemberID          string
	InstructorID      string
	ProgramID         string
	AppointmentStatus string
	StartsAt          time.Time
	MemberStatus      string
	InstructorStatus  string
	ProgramActive     bool
}

// ResourceID implements authz.Snapshot.
func (s Snapshot) ResourceID() string { return s.ID }

// OwnerID returns the booking member.
func (s Snapshot) OwnerID() string { return s.MemberID }

// SecondaryOwnerID returns the assigned instructor, empty when unassigned.
func (s Snapshot) SecondaryOwnerID() string { return s.InstructorID }

// Status returns the appointment status.
func (s Snapshot) Status() string { return s.AppointmentStatus }

// DependentStates exposes participant and program states for the
// entity-state gate.
func (s Snapshot) DependentStates() map[string]string {
	deps := map[string]string{
		"member":  s.MemberStatus,
		"program": programState(s.ProgramActive),
	}
	if s.InstructorID != "" {
		deps["instructor"] = s.InstructorStatus
	}
	return deps
}

func programState(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

var _ authz.Snapshot = Snapshot{}
