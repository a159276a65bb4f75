// Package jobs contains the background tasks run by the asynq worker.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans the ledger for allocation invariant violations.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportingWarmup pre-builds the aging and P&L report caches.
	TaskReportingWarmup = "reporting:warmup"
	// TaskIdempotencyCleanup retires processed event keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ScheduledPayload carries scheduling metadata shared by the cron tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs an integrity scan task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskLedgerIntegrity, at)
}

// NewReportingWarmupTask constructs a cache warmup task.
func NewReportingWarmupTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskReportingWarmup, at)
}

// NewIdempotencyCleanupTask constructs a key cleanup task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskIdempotencyCleanup, at)
}
