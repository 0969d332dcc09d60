package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReportingWarmup precomputes the per-warehouse report caches.
	TaskReportingWarmup = "reporting:warmup"
	// TaskExpiryScan publishes the expiring-batch gauge per warehouse.
	TaskExpiryScan = "stock:expiry_scan"
	// TaskIdempotencyCleanup prunes idempotency keys past the retention window.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ReportingWarmupPayload parameterises a cache warmup run.
type ReportingWarmupPayload struct {
	Reason string `json:"reason"`
}

// NewReportingWarmupTask constructs a warmup task.
func NewReportingWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportingWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportingWarmup, data), nil
}

// ExpiryScanPayload parameterises an expiry scan run.
type ExpiryScanPayload struct {
	WithinDays int `json:"within_days"`
}

// NewExpiryScanTask constructs an expiry scan task.
func NewExpiryScanTask(withinDays int) (*asynq.Task, error) {
	data, err := json.Marshal(ExpiryScanPayload{WithinDays: withinDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryScan, data), nil
}

// IdempotencyCleanupPayload parameterises a retention sweep.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
