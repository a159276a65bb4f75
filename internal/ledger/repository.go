package ledger

import (
	"context"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// ChargeSum pairs a charge with the total applied against it, used by the
// consistency check.
type ChargeSum struct {
	EntryID   int64
	Amount    money.Amount
	Remaining money.Amount
	Applied   money.Amount
}

// PaymentSum pairs a payment with the total it has applied.
type PaymentSum struct {
	PaymentID int64
	Amount    money.Amount
	Remaining money.Amount
	Applied   money.Amount
}

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetEntry(ctx context.Context, id int64) (*Entry, error)
	GetEntryBySourceRef(ctx context.Context, sourceRef string) (*Entry, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	ListOpenCharges(ctx context.Context, customerID int64) ([]Entry, error)
	ListAllOpenCharges(ctx context.Context) ([]Entry, error)
	ListCustomerEntries(ctx context.Context, customerID int64) ([]Entry, error)
	ListCustomerPayments(ctx context.Context, customerID int64) ([]Payment, error)
	ListApplicationsByPayment(ctx context.Context, paymentID int64) ([]Application, error)
	ListApplicationsByEntry(ctx context.Context, entryID int64) ([]Application, error)
	ChargeApplicationSums(ctx context.Context) ([]ChargeSum, error)
	PaymentApplicationSums(ctx context.Context) ([]PaymentSum, error)
}

// TxRepository exposes the mutations that must share one transaction.
// Allocation of a single payment runs entirely inside it, so a cancelled
// request can never leave a partial allocation behind.
type TxRepository interface {
	InsertEntry(ctx context.Context, input EntryInput) (*Entry, error)
	InsertPayment(ctx context.Context, input PaymentInput) (*Payment, error)
	LockPayment(ctx context.Context, id int64) (*Payment, error)
	CountApplications(ctx context.Context, paymentID int64) (int, error)
	ListOpenChargesForUpdate(ctx context.Context, customerID int64) ([]Entry, error)
	ListOpenCreditsForUpdate(ctx context.Context, customerID int64) ([]Payment, error)
	InsertApplication(ctx context.Context, paymentID, entryID int64, amount money.Amount, at time.Time) (*Application, error)
	SetEntryRemaining(ctx context.Context, id int64, remaining money.Amount) error
	SetPaymentRemaining(ctx context.Context, id int64, remaining money.Amount) error
}
