package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fleetline/fleetline/internal/reporting"
)

// ReportWarmer is the slice of the reporting service warmup drives.
type ReportWarmer interface {
	Aging(ctx context.Context, asOf time.Time) (reporting.AgingReport, error)
	ProfitAndLoss(ctx context.Context, vehicleID int64, from, to time.Time) (reporting.PLReport, error)
}

// NewReportingWarmupHandler pre-builds today's aging report and the
// current month's fleet P&L so the first dashboard hit is served warm.
func NewReportingWarmupHandler(warmer ReportWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		now := time.Now().UTC()
		asOf := now.Truncate(24 * time.Hour)
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, err := warmer.Aging(ctx, asOf)
			return err
		})
		g.Go(func() error {
			_, err := warmer.ProfitAndLoss(ctx, 0, monthStart, asOf)
			return err
		})
		if err := g.Wait(); err != nil {
			logger.Warn("reporting warmup failed", slog.Any("error", err))
			return err
		}
		logger.Info("reporting caches warmed", slog.String("as_of", asOf.Format("2006-01-02")))
		return nil
	}
}
