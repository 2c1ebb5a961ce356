package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue for tasks enqueued without an explicit queue.
	QueueDefault = "default"
	// QueueLow carries scheduled maintenance such as the security scan.
	QueueLow = "low"

	// TaskSecurityScan cross-checks audit denial aggregates against the
	// live failure tracker and flags principals above the threshold.
	TaskSecurityScan = "authz:security_scan"
)

// SecurityScanPayload tunes a single scan run.
type SecurityScanPayload struct {
	// Window is how far back the scan looks. Zero means 24h.
	Window time.Duration `json:"window"`
	// TopN caps how many principals are pulled per source. Zero means 20.
	TopN int `json:"top_n"`
}

// NewSecurityScanTask constructs the scheduled scan task.
func NewSecurityScanTask(window time.Duration, topN int) (*asynq.Task, error) {
	data, err := json.Marshal(SecurityScanPayload{Window: window, TopN: topN})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityScan, data), nil
}
