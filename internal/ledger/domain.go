// Package ledger implements the customer ledger: charges, payments,
// payment applications, and FIFO allocation of funds against open charges.
package ledger

import (
	"errors"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// EntryType distinguishes customer charges from cash-flow cost records.
type EntryType string

const (
	// EntryCharge is a billable obligation owed by a customer.
	EntryCharge EntryType = "CHARGE"
	// EntryCost tracks a business outflow (e.g. finance installments) on
	// the ledger for cash-flow reporting. Cost entries are never allocated.
	EntryCost EntryType = "COST"
)

// Category classifies ledger entries.
type Category string

const (
	CategoryRental     Category = "RENTAL"
	CategoryInitialFee Category = "INITIAL_FEE"
	CategoryFine       Category = "FINE"
	CategoryService    Category = "SERVICE"
	CategoryFinance    Category = "FINANCE"
	CategoryOther      Category = "OTHER"
)

// PaymentType classifies incoming payments.
type PaymentType string

const (
	PaymentRental  PaymentType = "RENTAL"
	PaymentFinance PaymentType = "FINANCE"
	PaymentFine    PaymentType = "FINE"
	PaymentOther   PaymentType = "OTHER"
)

// Entry is a ledger row. For charges, Remaining is the unpaid portion and
// decreases only through allocation; it never exceeds Amount.
type Entry struct {
	ID          int64
	Type        EntryType
	CustomerID  *int64
	VehicleID   *int64
	RentalID    *int64
	Category    Category
	Amount      money.Amount
	Remaining   money.Amount
	DueDate     time.Time
	Description string
	SourceRef   *string
	CreatedAt   time.Time
}

// Open reports whether the entry still carries an unpaid remainder.
func (e Entry) Open() bool {
	return e.Type == EntryCharge && e.Remaining.IsPositive()
}

// Payment is a received payment. Remaining is the unapplied portion,
// carried forward as customer credit until the next charge is created.
type Payment struct {
	ID         int64
	CustomerID *int64
	VehicleID  *int64
	RentalID   *int64
	Type       PaymentType
	Amount     money.Amount
	Remaining  money.Amount
	PaidAt     time.Time
	Method     string
	Reference  string
	CreatedAt  time.Time
}

// Application links a payment to a charge with the amount applied.
type Application struct {
	ID        int64
	PaymentID int64
	EntryID   int64
	Amount    money.Amount
	AppliedAt time.Time
}

// EntryInput creates a ledger entry.
type EntryInput struct {
	Type        EntryType
	CustomerID  *int64
	VehicleID   *int64
	RentalID    *int64
	Category    Category
	Amount      money.Amount
	DueDate     time.Time
	Description string
	SourceRef   *string
}

// PaymentInput creates a payment.
type PaymentInput struct {
	CustomerID *int64
	VehicleID  *int64
	RentalID   *int64
	Type       PaymentType
	Amount     money.Amount
	PaidAt     time.Time
	Method     string
	Reference  string
}

// Finding describes an invariant violation detected at read time. Findings
// are reported, never repaired: they indicate a deeper bug.
type Finding struct {
	Kind      string
	EntryID   int64
	PaymentID int64
	Detail    string
}

var (
	ErrChargeNotFound  = errors.New("ledger: charge not found")
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	ErrInvalidAmount   = errors.New("ledger: amount must not be negative")
	ErrCustomerMissing = errors.New("ledger: customer ID required")
	ErrDueDateMissing  = errors.New("ledger: due date required")
	ErrDuplicateRef    = errors.New("ledger: reference already recorded")
	ErrUnknownCategory = errors.New("ledger: unknown category")
)

var validCategories = map[Category]bool{
	CategoryRental:     true,
	CategoryInitialFee: true,
	CategoryFine:       true,
	CategoryService:    true,
	CategoryFinance:    true,
	CategoryOther:      true,
}

// ValidCategory reports whether c is a known ledger category.
func ValidCategory(c Category) bool {
	return validCategories[c]
}
