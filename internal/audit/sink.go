package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// Enqueuer adalah bagian dari asynq.Client yang dipakai sink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DirectWriter menulis record langsung ke penyimpanan saat antrean gagal.
type DirectWriter interface {
	Insert(ctx context.Context, id string, rec authz.Record) error
}

// AsyncSink mengantre audit record ke worker lewat asynq. ID record dibuat
// di depan sehingga hasil keputusan sudah membawa audit ID sebelum baris
// tersimpan. Saat broker tidak tersedia, sink menulis langsung ke store.
type AsyncSink struct {
	client Enqueuer
	direct DirectWriter
	logger *slog.Logger
}

// NewAsyncSink membuat sink asynq dengan fallback tulis langsung.
func NewAsyncSink(client Enqueuer, direct DirectWriter, logger *slog.Logger) (*AsyncSink, error) {
	if client == nil {
		return nil, fmt.Errorf("audit: enqueuer is required")
	}
	if direct == nil {
		return nil, fmt.Errorf("audit: direct writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSink{client: client, direct: direct, logger: logger}, nil
}

// Record implements authz.Sink.
func (s *AsyncSink) Record(ctx context.Context, rec authz.Record) (string, error) {
	id := uuid.NewString()

	payload, err := json.Marshal(RecordTask{ID: id, Record: rec})
	if err != nil {
		return "", fmt.Errorf("audit: marshal record task: %w", err)
	}

	task := asynq.NewTask(TaskTypeRecord, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err == nil {
		return id, nil
	}

	s.logger.Warn("audit enqueue failed, writing directly",
		slog.String("audit_id", id),
		slog.Any("error", err),
	)
	if err := s.direct.Insert(ctx, id, rec); err != nil {
		return "", fmt.Errorf("audit: direct write fallback: %w", err)
	}
	return id, nil
}

var _ authz.Sink = (*AsyncSink)(nil)
