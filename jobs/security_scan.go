package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/audit"
	jobmetrics "github.com/lyceum-edu/lyceum/internal/jobs"
	"github.com/lyceum-edu/lyceum/internal/security"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// fallbackThreshold applies when no tracker is wired.
const fallbackThreshold = 10

// DenialSource supplies audit denial aggregates for one window.
type DenialSource interface {
	DenialAggregates(ctx context.Context, from, to time.Time, topN int) (audit.Aggregates, error)
}

// SuspiciousGauge receives the number of currently flagged principals.
type SuspiciousGauge interface {
	SetSuspiciousPrincipals(count int)
}

// SecurityScanJob cross-checks the audit trail against the live failure
// tracker. A principal is flagged when either source puts it at or above
// the threshold inside the scan window.
type SecurityScanJob struct {
	Source  DenialSource
	Tracker *security.Tracker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Gauge   SuspiciousGauge
	clock   func() time.Time
}

// NewSecurityScanJob initialises the scan handler.
func NewSecurityScanJob(source DenialSource, tracker *security.Tracker, logger *slog.Logger, metrics *jobmetrics.Metrics, gauge SuspiciousGauge) *SecurityScanJob {
	return &SecurityScanJob{
		Source:  source,
		Tracker: tracker,
		Logger:  logger,
		Metrics: metrics,
		Gauge:   gauge,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan run.
func (j *SecurityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("security scan: handler not configured")
	}

	var payload SecurityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("security scan: decode payload: %w", asynq.SkipRetry)
	}
	if payload.Window <= 0 {
		payload.Window = 24 * time.Hour
	}
	if payload.TopN <= 0 {
		payload.TopN = 20
	}

	start := j.now()
	logger := j.logger().With(
		slog.Duration("window", payload.Window),
		slog.Int("top_n", payload.TopN),
	)
	logger.Info("starting security scan")

	track := j.metrics().Track(TaskSecurityScan)
	scanned, flagged, err := j.scan(ctx, payload, start)
	if err = track.End(err); err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	logger.Info("completed security scan",
		slog.Int("principals", scanned),
		slog.Int("flagged", len(flagged)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

type flaggedPrincipal struct {
	ID       string
	Denials  int64
	Live     int64
	Severity string
}

func (f flaggedPrincipal) worst() int64 {
	if f.Live > f.Denials {
		return f.Live
	}
	return f.Denials
}

func (j *SecurityScanJob) scan(ctx context.Context, payload SecurityScanPayload, now time.Time) (int, []flaggedPrincipal, error) {
	agg, err := j.Source.DenialAggregates(ctx, now.Add(-payload.Window), now, payload.TopN)
	if err != nil {
		return 0, nil, err
	}

	counts := make(map[string]*flaggedPrincipal, len(agg.ByPrincipal))
	for _, sp := range agg.ByPrincipal {
		counts[sp.PrincipalID] = &flaggedPrincipal{ID: sp.PrincipalID, Denials: sp.DenialCount}
	}

	// Live counters catch principals hammering right now that the audit
	// window's top-N may have missed.
	if j.Tracker != nil {
		offenders, err := j.Tracker.TopOffenders(ctx, payload.TopN)
		if err != nil {
			j.logger().Warn("tracker scan failed", slog.Any("error", err))
		}
		for _, off := range offenders {
			entry, ok := counts[off.PrincipalID]
			if !ok {
				entry = &flaggedPrincipal{ID: off.PrincipalID}
				counts[off.PrincipalID] = entry
			}
			entry.Live = off.Count
		}
	}

	threshold := j.threshold()
	flagged := make([]flaggedPrincipal, 0)
	for _, entry := range counts {
		worst := entry.worst()
		if worst < threshold {
			continue
		}
		entry.Severity = "MEDIUM"
		if worst >= 2*threshold {
			entry.Severity = "HIGH"
		}
		flagged = append(flagged, *entry)
	}
	sort.Slice(flagged, func(a, b int) bool {
		if flagged[a].worst() != flagged[b].worst() {
			return flagged[a].worst() > flagged[b].worst()
		}
		return flagged[a].ID < flagged[b].ID
	})

	for _, f := range flagged {
		j.logger().Warn("suspicious principal flagged",
			slog.String("principal_id", f.ID),
			slog.Int64("denials", f.Denials),
			slog.Int64("live_failures", f.Live),
			slog.String("severity", f.Severity),
		)
		j.metrics().AddFlagged(f.Severity, 1)
	}
	if j.Gauge != nil {
		j.Gauge.SetSuspiciousPrincipals(len(flagged))
	}

	return len(counts), flagged, nil
}

func (j *SecurityScanJob) threshold() int64 {
	if j.Tracker != nil {
		return j.Tracker.Threshold()
	}
	return fallbackThreshold
}

func (j *SecurityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSecurityScan))
	}
	return slog.Default().With(slog.String("job", TaskSecurityScan))
}

func (j *SecurityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SecurityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
