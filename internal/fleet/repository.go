package fleet

import (
	"context"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// RepositoryPort abstracts fleet persistence.
type RepositoryPort interface {
	InsertVehicle(ctx context.Context, input VehicleInput) (*Vehicle, error)
	GetVehicle(ctx context.Context, id int64) (*Vehicle, error)
	ListVehicles(ctx context.Context, includeDisposed bool) ([]Vehicle, error)
	MarkDisposed(ctx context.Context, id int64, date time.Time, proceeds money.Amount) error
	DeleteVehicle(ctx context.Context, id int64) error

	InsertExpense(ctx context.Context, input ExpenseInput) (*Expense, error)
	GetExpense(ctx context.Context, id int64) (*Expense, error)
	ListExpenses(ctx context.Context, vehicleID int64) ([]Expense, error)
	DeleteExpense(ctx context.Context, id int64) error

	InsertFine(ctx context.Context, input FineInput) (*Fine, error)
	GetFine(ctx context.Context, id int64) (*Fine, error)
	SetFineStatus(ctx context.Context, id int64, status FineStatus) error
}
