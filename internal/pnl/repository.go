package pnl

import (
	"context"
	"time"
)

// RepositoryPort defines data access methods for P&L entries.
type RepositoryPort interface {
	// Insert creates an entry. Returns ErrDuplicateSourceRef when the
	// source ref is already posted.
	Insert(ctx context.Context, input EntryInput) (*Entry, error)
	GetBySourceRef(ctx context.Context, sourceRef string) (*Entry, error)
	ListByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Entry, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Entry, error)
	DeleteByVehicle(ctx context.Context, vehicleID int64) (int64, error)
	DeleteBySourceRef(ctx context.Context, sourceRef string) error
}
