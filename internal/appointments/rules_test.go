package appointments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

// ============================================================
// Mocks
// ============================================================

type mockPrincipals struct {
	states map[string]authz.PrincipalState
}

func (m *mockPrincipals) FetchPrincipal(_ context.Context, id string) (authz.PrincipalState, error) {
	state, ok := m.states[id]
	if !ok {
		return authz.PrincipalState{}, shared.ErrNotFound
	}
	return state, nil
}

type mockSink struct {
	records []authz.Record
}

func (m *mockSink) Record(_ context.Context, rec authz.Record) (string, error) {
	m.records = append(m.records, rec)
	return fmt.Sprintf("audit-%d", len(m.records)), nil
}

type mockStore struct {
	snapshots map[string]Snapshot
	faultIDs  map[string]bool
}

func (m *mockStore) FetchSnapshot(_ context.Context, id string) (authz.Snapshot, error) {
	if m.faultIDs[id] {
		return nil, fmt.Errorf("connection reset")
	}
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return snap, nil
}

// ============================================================
// Fixture
// ============================================================

type fixture struct {
	engine *authz.Engine
	store  *mockStore
	sink   *mockSink
}

func newFixture(t *testing.T, cfg RuleConfig) *fixture {
	t.Helper()

	principals := &mockPrincipals{states: map[string]authz.PrincipalState{
		"u1":   {Status: authz.StatusActive, Role: authz.RoleUser},
		"u2":   {Status: authz.StatusActive, Role: authz.RoleUser},
		"ins1": {Status: authz.StatusActive, Role: authz.RoleInstructor},
		"sup":  {Status: authz.StatusActive, Role: authz.RoleSupport},
		"adm":  {Status: authz.StatusActive, Role: authz.RoleAdmin},
		"root": {Status: authz.StatusActive, Role: authz.RoleSuperAdmin},
		"ro":   {Status: authz.StatusActive, Role: authz.RoleReadonly},
	}}
	store := &mockStore{snapshots: map[string]Snapshot{}, faultIDs: map[string]bool{}}
	sink := &mockSink{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := authz.NewEngine(authz.EngineParams{
		Logger:     logger,
		Principals: principals,
		Sink:       sink,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Register(store, NewRules(cfg)))

	return &fixture{engine: engine, store: store, sink: sink}
}

func (f *fixture) add(snap Snapshot) {
	f.store.snapshots[snap.ID] = snap
}

func healthySnapshot(id, member, instructor, status string) Snapshot {
	return Snapshot{
		ID:                id,
		MemberID:          member,
		InstructorID:      instructor,
		ProgramID:         "prog-1",
		AppointmentStatus: status,
		MemberStatus:      string(authz.StatusActive),
		InstructorStatus:  string(authz.StatusActive),
		ProgramActive:     true,
	}
}

func fresh(id string, role authz.Role) authz.Principal {
	return authz.Principal{
		ID:           id,
		Role:         role,
		Status:       authz.StatusActive,
		SessionID:    "sess-" + id,
		IPAddress:    "203.0.113.9",
		DecisionTime: time.Now(),
	}
}

func hoursCtx(hoursUntil, window float64) authz.BusinessContext {
	return authz.BusinessContext{
		HoursUntilEvent:   &hoursUntil,
		PolicyWindowHours: &window,
	}
}

func cancelRequest(id string, p authz.Principal, business authz.BusinessContext) authz.Request {
	return authz.Request{
		ResourceType: ResourceType,
		ResourceID:   id,
		Action:       ActionCancel,
		Principal:    p,
		Business:     business,
	}
}

// ============================================================
// Cancellation policy
// ============================================================

func TestOwnerCancelWithAmpleNotice(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(48, 24)))

	assert.True(t, res.Authorized)
	assert.Empty(t, res.Conditions)
	assert.Equal(t, []string{"appointment:cancel:own"}, res.Granted)
	require.Len(t, fx.sink.records, 1)
	assert.True(t, fx.sink.records[0].Authorized)
}

func TestOwnerCancelInsideWindowDenied(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(10, 24)))

	assert.False(t, res.Authorized)
	assert.Contains(t, res.Reason, "24 hours notice")
	require.Len(t, fx.sink.records, 1)
	assert.False(t, fx.sink.records[0].Authorized)
}

func TestAdminLateCancelRecordsCondition(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("adm", authz.RoleAdmin), hoursCtx(10, 24)))

	assert.True(t, res.Authorized)
	assert.Equal(t, []string{ConditionLateCancellation}, res.Conditions)
	require.Len(t, fx.sink.records, 1)
	assert.Contains(t, fx.sink.records[0].Reason, ConditionLateCancellation)
}

func TestSupportLateCancelRecordsCondition(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("sup", authz.RoleSupport), hoursCtx(2, 24)))

	assert.True(t, res.Authorized)
	assert.Equal(t, []string{ConditionLateCancellation}, res.Conditions)
}

func TestPolicyWindowOverridePerRequest(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	// 10 hours out is fine once the caller narrows the window to 6 hours.
	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(10, 6)))
	assert.True(t, res.Authorized)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusCancelled))

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(48, 24)))

	assert.False(t, res.Authorized)
	assert.Equal(t, "appointment is already cancelled", res.Reason)
}

// ============================================================
// Terminal statuses
// ============================================================

func TestCompletedAppointmentImmutable(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusCompleted))

	for _, role := range []struct {
		id   string
		role authz.Role
	}{
		{"u1", authz.RoleUser},
		{"adm", authz.RoleAdmin},
		{"root", authz.RoleSuperAdmin},
	} {
		res := fx.engine.Evaluate(context.Background(), authz.Request{
			ResourceType: ResourceType,
			ResourceID:   "apt-1",
			Action:       ActionUpdate,
			Principal:    fresh(role.id, role.role),
			Business:     hoursCtx(48, 24),
		})
		assert.False(t, res.Authorized, "role %s", role.role)
		assert.Equal(t, "appointment is completed and can no longer be modified", res.Reason, "role %s", role.role)
	}
}

func TestSuperAdminMayDeleteTerminalAppointment(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusNoShow))

	deleteReq := func(actor string, role authz.Role) authz.Request {
		return authz.Request{
			ResourceType: ResourceType,
			ResourceID:   "apt-1",
			Action:       ActionDelete,
			Principal:    fresh(actor, role),
			Business:     hoursCtx(-40, 24),
		}
	}

	denied := fx.engine.Evaluate(context.Background(), deleteReq("adm", authz.RoleAdmin))
	assert.False(t, denied.Authorized)
	assert.Contains(t, denied.Reason, "no longer be modified")

	granted := fx.engine.Evaluate(context.Background(), deleteReq("root", authz.RoleSuperAdmin))
	assert.True(t, granted.Authorized)
	assert.Equal(t, []string{"terminal appointment removed by super admin"}, granted.Conditions)
}

func TestCompleteRequiresConfirmedStatus(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))
	fx.add(healthySnapshot("apt-2", "u1", "ins1", StatusConfirmed))

	completeReq := func(id string) authz.Request {
		return authz.Request{
			ResourceType: ResourceType,
			ResourceID:   id,
			Action:       ActionComplete,
			Principal:    fresh("ins1", authz.RoleInstructor),
			Business:     hoursCtx(-1, 24),
		}
	}

	denied := fx.engine.Evaluate(context.Background(), completeReq("apt-1"))
	assert.False(t, denied.Authorized)
	assert.Equal(t, "only confirmed appointments can be completed", denied.Reason)

	granted := fx.engine.Evaluate(context.Background(), completeReq("apt-2"))
	assert.True(t, granted.Authorized, granted.Reason)
	assert.Equal(t, []string{"appointment:complete:own"}, granted.Granted)
}

// ============================================================
// Reason merging
// ============================================================

func TestMissingAppointmentReadsLikeForbidden(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	missing := fx.engine.Evaluate(context.Background(), cancelRequest("apt-404", fresh("u1", authz.RoleUser), hoursCtx(48, 24)))
	forbidden := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("ro", authz.RoleReadonly), hoursCtx(48, 24)))
	notOwned := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u2", authz.RoleUser), hoursCtx(48, 24)))

	assert.False(t, missing.Authorized)
	assert.False(t, forbidden.Authorized)
	assert.False(t, notOwned.Authorized)
	assert.Equal(t, missing.Reason, forbidden.Reason)
	assert.Equal(t, missing.Reason, notOwned.Reason)
	assert.Equal(t, "not found or access denied", missing.Reason)

	// The audit trail still distinguishes the three cases.
	require.Len(t, fx.sink.records, 3)
	reasons := map[string]bool{}
	for _, rec := range fx.sink.records {
		reasons[rec.Reason] = true
	}
	assert.Len(t, reasons, 3)
}

// ============================================================
// Batch
// ============================================================

func TestBatchCancelClassifiesAndIsolatesFault(t *testing.T) {
	fx := newFixture(t, RuleConfig{})

	var ids []string
	for i := 1; i <= 25; i++ {
		id := fmt.Sprintf("apt-%02d", i)
		ids = append(ids, id)
		owner := "u1"
		if i%2 == 0 {
			owner = "u2"
		}
		fx.add(healthySnapshot(id, owner, "ins1", StatusPending))
	}
	fx.store.faultIDs["apt-13"] = true

	out := fx.engine.EvaluateBatch(context.Background(), ResourceType, ids, ActionCancel, fresh("u1", authz.RoleUser), hoursCtx(48, 24))

	assert.Equal(t, 25, out.Summary.Total)
	assert.Equal(t, 12, out.Summary.Authorized)
	assert.Equal(t, 13, out.Summary.Denied)

	for _, id := range out.Authorized {
		assert.NotEqual(t, "apt-13", id)
	}
	var faulted *authz.BatchDenial
	for i := range out.Denied {
		if out.Denied[i].ResourceID == "apt-13" {
			faulted = &out.Denied[i]
		} else {
			assert.Equal(t, authz.ReasonNotFoundOrDenied, out.Denied[i].Reason)
		}
	}
	require.NotNil(t, faulted)
	assert.Equal(t, authz.ReasonSystemError, faulted.Reason)

	// One audit record per evaluated ID.
	assert.Len(t, fx.sink.records, 25)
}

// ============================================================
// Entity state
// ============================================================

func TestInactiveProgramBlocksEveryAction(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	snap := healthySnapshot("apt-1", "u1", "ins1", StatusPending)
	snap.ProgramActive = false
	fx.add(snap)

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionRead,
		Principal:    fresh("u1", authz.RoleUser),
	})

	assert.False(t, res.Authorized)
	assert.Equal(t, "training program is no longer offered", res.Reason)
}

func TestSuspendedInstructorBlocksAppointment(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	snap := healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed)
	snap.InstructorStatus = string(authz.StatusSuspended)
	fx.add(snap)

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(48, 24)))

	assert.False(t, res.Authorized)
	assert.Equal(t, "assigned instructor account is not active", res.Reason)
}

func TestUnassignedInstructorIsNotChecked(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	snap := healthySnapshot("apt-1", "u1", "", StatusPending)
	snap.InstructorStatus = ""
	fx.add(snap)

	res := fx.engine.Evaluate(context.Background(), cancelRequest("apt-1", fresh("u1", authz.RoleUser), hoursCtx(48, 24)))
	assert.True(t, res.Authorized, res.Reason)
}

// ============================================================
// Time window
// ============================================================

func TestPastAppointmentLockedForOrdinaryRoles(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed))

	req := func(actor string, role authz.Role) authz.Request {
		return authz.Request{
			ResourceType: ResourceType,
			ResourceID:   "apt-1",
			Action:       ActionUpdate,
			Principal:    fresh(actor, role),
			Business:     hoursCtx(-3, 24),
		}
	}

	denied := fx.engine.Evaluate(context.Background(), req("u1", authz.RoleUser))
	assert.False(t, denied.Authorized)
	assert.Equal(t, "appointment has already started or passed", denied.Reason)

	granted := fx.engine.Evaluate(context.Background(), req("adm", authz.RoleAdmin))
	assert.True(t, granted.Authorized, granted.Reason)
}

func TestFinalHourLock(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed))

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionUpdate,
		Principal:    fresh("u1", authz.RoleUser),
		Business:     hoursCtx(0.5, 24),
	})

	assert.False(t, res.Authorized)
	assert.Contains(t, res.Reason, "60 minutes before the start time")
}

func TestStartTimeFallsBackToSnapshot(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	snap := healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed)
	snap.StartsAt = time.Now().Add(30 * time.Minute)
	fx.add(snap)

	// No HoursUntilEvent supplied: the stored start time drives the lock.
	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionUpdate,
		Principal:    fresh("u1", authz.RoleUser),
	})
	assert.False(t, res.Authorized)
	assert.Contains(t, res.Reason, "before the start time")
}

// ============================================================
// Overrides per action
// ============================================================

func TestLateRescheduleDeniedByDefault(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed))

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionReschedule,
		Principal:    fresh("adm", authz.RoleAdmin),
		Business:     hoursCtx(10, 24),
	})

	assert.False(t, res.Authorized)
	assert.Contains(t, res.Reason, "reschedule requires at least 24 hours notice")
}

func TestLateRescheduleOverrideWhenConfigured(t *testing.T) {
	fx := newFixture(t, RuleConfig{LateOverrideActions: []string{ActionCancel, ActionReschedule}})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusConfirmed))

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionReschedule,
		Principal:    fresh("adm", authz.RoleAdmin),
		Business:     hoursCtx(10, 24),
	})

	assert.True(t, res.Authorized)
	assert.Equal(t, []string{"Late reschedule — policy override applied"}, res.Conditions)
}

// ============================================================
// Ownership narrowing
// ============================================================

func TestInstructorCannotDeleteOwnSession(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionDelete,
		Principal:    fresh("ins1", authz.RoleInstructor),
		Business:     hoursCtx(48, 24),
	})

	assert.False(t, res.Authorized)
	assert.Equal(t, authz.ReasonNotFoundOrDenied, res.Reason)
}

func TestInstructorReadsOwnSession(t *testing.T) {
	fx := newFixture(t, RuleConfig{})
	fx.add(healthySnapshot("apt-1", "u1", "ins1", StatusPending))

	res := fx.engine.Evaluate(context.Background(), authz.Request{
		ResourceType: ResourceType,
		ResourceID:   "apt-1",
		Action:       ActionRead,
		Principal:    fresh("ins1", authz.RoleInstructor),
	})
	assert.True(t, res.Authorized, res.Reason)
}

// ============================================================
// Rule set unit checks
// ============================================================

func TestRequiredPermissionRejectsUnknownAction(t *testing.T) {
	rules := NewRules(RuleConfig{})
	_, err := rules.RequiredPermission("archive")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported action"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := RuleConfig{}.withDefaults()
	assert.Equal(t, 24*time.Hour, cfg.CancellationWindow)
	assert.Equal(t, time.Hour, cfg.MinimumLeadTime)
	assert.Equal(t, []string{ActionCancel}, cfg.LateOverrideActions)
}

func TestOwnershipFilterShape(t *testing.T) {
	filter := Rules{}.OwnershipFilter("m-9")
	assert.Equal(t, "(member_id = $1 OR instructor_id = $1)", filter.Predicate)
	assert.Equal(t, []any{"m-9"}, filter.Args)
}
