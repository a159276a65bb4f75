package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyCleaner retires processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewIdempotencyCleanupHandler deletes event keys older than retention.
// Keys must outlive the longest plausible retry window of the callers
// that deliver events, otherwise a late retry would repost.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		removed, err := cleaner.Cleanup(ctx, retention)
		if err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		logger.Info("idempotency keys cleaned", slog.Int64("removed", removed))
		return nil
	}
}
