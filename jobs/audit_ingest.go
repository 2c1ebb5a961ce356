package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/audit"
	"github.com/lyceum-edu/lyceum/internal/authz"
	jobmetrics "github.com/lyceum-edu/lyceum/internal/jobs"
)

// RecordInserter persists one audit record under a caller-chosen ID.
// Inserts must be idempotent: the queue redelivers on failure.
type RecordInserter interface {
	Insert(ctx context.Context, id string, rec authz.Record) error
}

// AuditIngestJob drains queued audit records into the Postgres sink.
type AuditIngestJob struct {
	Store   RecordInserter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditIngestJob initialises the ingestion handler.
func NewAuditIngestJob(store RecordInserter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditIngestJob {
	return &AuditIngestJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes one queued audit record. A malformed payload can
// never succeed and is dropped; storage errors are left to the queue's
// retry policy.
func (j *AuditIngestJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit ingest: handler not configured")
	}

	var payload audit.RecordTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Error("undecodable audit payload", slog.Any("error", err))
		return fmt.Errorf("audit ingest: decode payload: %w", asynq.SkipRetry)
	}
	if payload.ID == "" {
		return fmt.Errorf("audit ingest: payload without id: %w", asynq.SkipRetry)
	}

	track := j.metrics().Track(audit.TaskTypeRecord)
	err := track.End(j.Store.Insert(ctx, payload.ID, payload.Record))
	if err != nil {
		j.logger().Error("insert audit record",
			slog.String("audit_id", payload.ID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (j *AuditIngestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", audit.TaskTypeRecord))
	}
	return slog.Default().With(slog.String("job", audit.TaskTypeRecord))
}

func (j *AuditIngestJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
