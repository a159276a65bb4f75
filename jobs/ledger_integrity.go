package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/ledger"
)

// IntegrityChecker is the slice of the ledger service the scan runs.
type IntegrityChecker interface {
	CheckConsistency(ctx context.Context) ([]ledger.Finding, error)
}

// IntegrityGauge receives the finding count of each scan.
type IntegrityGauge interface {
	SetInconsistencies(count int)
}

// NewLedgerIntegrityHandler scans the ledger for allocation invariant
// violations. Findings are reported loudly and never repaired: a finding
// means a deeper bug, not bad data to patch over.
func NewLedgerIntegrityHandler(checker IntegrityChecker, gauge IntegrityGauge, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		findings, err := checker.CheckConsistency(ctx)
		if err != nil {
			logger.Error("ledger integrity scan failed", slog.Any("error", err))
			return err
		}
		if gauge != nil {
			gauge.SetInconsistencies(len(findings))
		}
		for _, f := range findings {
			logger.Error("allocation inconsistency",
				slog.String("kind", f.Kind),
				slog.Int64("entry_id", f.EntryID),
				slog.Int64("payment_id", f.PaymentID),
				slog.String("detail", f.Detail),
			)
		}
		if len(findings) == 0 {
			logger.Info("ledger integrity scan clean")
		}
		return nil
	}
}
