package app

import (
	"context"
	"log/slog"

	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/reporting"
)

// PostingInstrumentation counts posted events and retires cached reports
// whenever a posting lands, so dashboards never serve stale totals.
type PostingInstrumentation struct {
	Metrics   *observability.Metrics
	Reporting *reporting.Service
	Logger    *slog.Logger
}

// EventPosted records the event and bumps the reporting cache version.
func (p *PostingInstrumentation) EventPosted(kind string) {
	if p == nil {
		return
	}
	p.Metrics.EventPosted(kind)
	if p.Reporting != nil {
		if err := p.Reporting.Invalidate(context.Background()); err != nil && p.Logger != nil {
			p.Logger.Warn("invalidate reporting cache", slog.Any("error", err))
		}
	}
}

// DuplicateSkipped records a redelivered event that was not reapplied.
func (p *PostingInstrumentation) DuplicateSkipped(kind string) {
	if p == nil {
		return
	}
	p.Metrics.DuplicateSkipped(kind)
}
