package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-edu/lyceum/internal/audit"
	"github.com/lyceum-edu/lyceum/internal/security"
	_ "github.com/lyceum-edu/lyceum/internal/testing/guard"
)

// ==== FIXTURE ====

type stubSource struct {
	agg audit.Aggregates
	err error
}

func (s *stubSource) DenialAggregates(ctx context.Context, from, to time.Time, topN int) (audit.Aggregates, error) {
	return s.agg, s.err
}

type stubGauge struct {
	set   int
	calls int
}

func (g *stubGauge) SetSuspiciousPrincipals(count int) {
	g.set = count
	g.calls++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func liveTracker(t *testing.T, threshold int64) *security.Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return security.NewTracker(client, security.Config{Window: time.Minute, Threshold: threshold}, quietLogger())
}

func aggregatesWith(principals ...audit.SuspiciousPrincipal) audit.Aggregates {
	return audit.Aggregates{
		TotalDecisions: 100,
		TotalDenied:    int64(len(principals)),
		ByPrincipal:    principals,
	}
}

// ==== SCAN ====

func TestScanFlagsPrincipalsAtThreshold(t *testing.T) {
	source := &stubSource{agg: aggregatesWith(
		audit.SuspiciousPrincipal{PrincipalID: "noisy", DenialCount: 10},
		audit.SuspiciousPrincipal{PrincipalID: "quiet", DenialCount: 9},
	)}
	job := NewSecurityScanJob(source, nil, quietLogger(), nil, nil)

	scanned, flagged, err := job.scan(context.Background(), SecurityScanPayload{Window: time.Hour, TopN: 20}, time.Now().UTC())

	require.NoError(t, err)
	require.Equal(t, 2, scanned)
	require.Len(t, flagged, 1)
	require.Equal(t, "noisy", flagged[0].ID)
	require.Equal(t, "MEDIUM", flagged[0].Severity)
}

func TestScanEscalatesSeverityAtTwiceThreshold(t *testing.T) {
	source := &stubSource{agg: aggregatesWith(
		audit.SuspiciousPrincipal{PrincipalID: "hammer", DenialCount: 20},
	)}
	job := NewSecurityScanJob(source, nil, quietLogger(), nil, nil)

	_, flagged, err := job.scan(context.Background(), SecurityScanPayload{Window: time.Hour, TopN: 20}, time.Now().UTC())

	require.NoError(t, err)
	require.Len(t, flagged, 1)
	require.Equal(t, "HIGH", flagged[0].Severity)
}

func TestScanMergesLiveOnlyOffenders(t *testing.T) {
	// "burst" never shows in the audit aggregates but the live tracker
	// has it over the threshold.
	tracker := liveTracker(t, 3)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		tracker.RecordFailure(ctx, "burst")
	}

	source := &stubSource{agg: aggregatesWith()}
	job := NewSecurityScanJob(source, tracker, quietLogger(), nil, nil)

	scanned, flagged, err := job.scan(ctx, SecurityScanPayload{Window: time.Hour, TopN: 20}, time.Now().UTC())

	require.NoError(t, err)
	require.Equal(t, 1, scanned)
	require.Len(t, flagged, 1)
	require.Equal(t, "burst", flagged[0].ID)
	require.EqualValues(t, 4, flagged[0].Live)
	require.EqualValues(t, 0, flagged[0].Denials)
}

func TestScanUsesTrackerThreshold(t *testing.T) {
	tracker := liveTracker(t, 3)
	source := &stubSource{agg: aggregatesWith(
		audit.SuspiciousPrincipal{PrincipalID: "edge", DenialCount: 3},
	)}
	job := NewSecurityScanJob(source, tracker, quietLogger(), nil, nil)

	_, flagged, err := job.scan(context.Background(), SecurityScanPayload{Window: time.Hour, TopN: 20}, time.Now().UTC())

	require.NoError(t, err)
	require.Len(t, flagged, 1, "a tracker threshold of 3 must flag 3 denials")
}

func TestScanOrdersFlaggedByWorstCount(t *testing.T) {
	source := &stubSource{agg: aggregatesWith(
		audit.SuspiciousPrincipal{PrincipalID: "b", DenialCount: 12},
		audit.SuspiciousPrincipal{PrincipalID: "a", DenialCount: 30},
		audit.SuspiciousPrincipal{PrincipalID: "c", DenialCount: 12},
	)}
	job := NewSecurityScanJob(source, nil, quietLogger(), nil, nil)

	_, flagged, err := job.scan(context.Background(), SecurityScanPayload{Window: time.Hour, TopN: 20}, time.Now().UTC())

	require.NoError(t, err)
	require.Len(t, flagged, 3)
	require.Equal(t, "a", flagged[0].ID)
	require.Equal(t, "b", flagged[1].ID)
	require.Equal(t, "c", flagged[2].ID)
}

// ==== HANDLE ====

func TestHandleUpdatesGauge(t *testing.T) {
	source := &stubSource{agg: aggregatesWith(
		audit.SuspiciousPrincipal{PrincipalID: "noisy", DenialCount: 15},
	)}
	gauge := &stubGauge{}
	job := NewSecurityScanJob(source, nil, quietLogger(), nil, gauge)

	task, err := NewSecurityScanTask(time.Hour, 20)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 1, gauge.calls)
	require.Equal(t, 1, gauge.set)
}

func TestHandleDropsUndecodablePayload(t *testing.T) {
	job := NewSecurityScanJob(&stubSource{}, nil, quietLogger(), nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSecurityScan, []byte("??")))

	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePropagatesSourceFailure(t *testing.T) {
	job := NewSecurityScanJob(&stubSource{err: errors.New("relation does not exist")}, nil, quietLogger(), nil, nil)

	task, err := NewSecurityScanTask(0, 0)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
