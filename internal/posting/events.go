// Package posting maps domain events onto ledger and P&L mutations. The
// rules are pure functions over the event payload and a small state
// snapshot; the engine is the only place that touches storage.
package posting

import (
	"fmt"
	"time"

	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
	"github.com/fleetline/fleetline/internal/shared"
)

// Finance payment components.
const (
	ComponentDeposit = "deposit"
	ComponentMonthly = "monthly"
	ComponentBalloon = "balloon"
	ComponentFee     = "fee"
)

// Event is a financial domain event. DedupeKey returns a stable key for
// event-level duplicate detection, or "" when the event carries no
// external delivery identity of its own.
type Event interface {
	Kind() string
	DedupeKey() string
	Validate() error
}

// ExpenseRecorded is raised when a vehicle expense is saved.
type ExpenseRecorded struct {
	ExpenseID   int64
	VehicleID   int64
	Category    string
	Amount      money.Amount
	Date        time.Time
	Description string
}

func (e ExpenseRecorded) Kind() string      { return "expense_recorded" }
func (e ExpenseRecorded) DedupeKey() string { return pnl.ExpenseSourceRef(e.ExpenseID) }

func (e ExpenseRecorded) Validate() error {
	if e.ExpenseID == 0 {
		return fmt.Errorf("%w: expense ID required", shared.ErrValidation)
	}
	if e.VehicleID == 0 {
		return fmt.Errorf("%w: vehicle ID required", shared.ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: expense amount must be positive", shared.ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: expense date required", shared.ErrValidation)
	}
	return nil
}

// FineCharged is raised when a fine is passed on to the customer.
type FineCharged struct {
	FineID      int64
	CustomerID  int64
	VehicleID   *int64
	RentalID    *int64
	Amount      money.Amount
	DueDate     time.Time
	Description string
}

func (e FineCharged) Kind() string      { return "fine_charged" }
func (e FineCharged) DedupeKey() string { return pnl.FineChargeSourceRef(e.FineID) }

func (e FineCharged) Validate() error {
	if e.FineID == 0 {
		return fmt.Errorf("%w: fine ID required", shared.ErrValidation)
	}
	if e.CustomerID == 0 {
		return fmt.Errorf("%w: customer ID required", shared.ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: fine amount must be positive", shared.ErrValidation)
	}
	if e.DueDate.IsZero() {
		return fmt.Errorf("%w: due date required", shared.ErrValidation)
	}
	return nil
}

// FineWaived is raised when the business absorbs a fine instead of
// charging the customer.
type FineWaived struct {
	FineID    int64
	VehicleID *int64
	Amount    money.Amount
	Date      time.Time
}

func (e FineWaived) Kind() string      { return "fine_waived" }
func (e FineWaived) DedupeKey() string { return pnl.FineWaiveSourceRef(e.FineID) }

func (e FineWaived) Validate() error {
	if e.FineID == 0 {
		return fmt.Errorf("%w: fine ID required", shared.ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: fine amount must be positive", shared.ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: waive date required", shared.ErrValidation)
	}
	return nil
}

// PaymentReceived is raised when customer funds arrive. It feeds the
// allocation engine rather than the P&L store.
type PaymentReceived struct {
	CustomerID int64
	VehicleID  *int64
	RentalID   *int64
	Type       string
	Amount     money.Amount
	PaidAt     time.Time
	Method     string
	Reference  string
}

func (e PaymentReceived) Kind() string { return "payment_received" }

// DedupeKey is empty when no external reference accompanies the payment;
// the ledger's own reference uniqueness still applies when one does.
func (e PaymentReceived) DedupeKey() string {
	if e.Reference == "" {
		return ""
	}
	return "pay:" + e.Reference
}

func (e PaymentReceived) Validate() error {
	if e.CustomerID == 0 {
		return fmt.Errorf("%w: customer ID required", shared.ErrValidation)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%w: payment amount must not be negative", shared.ErrValidation)
	}
	if e.PaidAt.IsZero() {
		return fmt.Errorf("%w: payment date required", shared.ErrValidation)
	}
	return nil
}

// FinanceVehicleCreated is raised when a financed vehicle is registered.
// The full contract cost is recognised upfront.
type FinanceVehicleCreated struct {
	VehicleID     int64
	ContractTotal money.Amount
	Date          time.Time
	Registration  string
}

func (e FinanceVehicleCreated) Kind() string      { return "finance_vehicle_created" }
func (e FinanceVehicleCreated) DedupeKey() string { return pnl.UpfrontSourceRef(e.VehicleID) }

func (e FinanceVehicleCreated) Validate() error {
	if e.VehicleID == 0 {
		return fmt.Errorf("%w: vehicle ID required", shared.ErrValidation)
	}
	if !e.ContractTotal.IsPositive() {
		return fmt.Errorf("%w: contract total must be positive", shared.ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: acquisition date required", shared.ErrValidation)
	}
	return nil
}

// FinancePaymentReceived is raised for each installment paid on a finance
// contract (deposit, monthly, balloon, or fee).
type FinancePaymentReceived struct {
	VehicleID int64
	Component string
	Amount    money.Amount
	Date      time.Time
}

func (e FinancePaymentReceived) Kind() string { return "finance_payment_received" }

func (e FinancePaymentReceived) DedupeKey() string {
	return pnl.FinancePaymentSourceRef(e.VehicleID, e.Component, e.Date, e.Amount)
}

func (e FinancePaymentReceived) Validate() error {
	if e.VehicleID == 0 {
		return fmt.Errorf("%w: vehicle ID required", shared.ErrValidation)
	}
	switch e.Component {
	case ComponentDeposit, ComponentMonthly, ComponentBalloon, ComponentFee:
	default:
		return fmt.Errorf("%w: unknown finance component %q", shared.ErrValidation, e.Component)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: payment date required", shared.ErrValidation)
	}
	return nil
}

// VehicleDisposed is raised when a vehicle is sold out of the fleet.
type VehicleDisposed struct {
	VehicleID    int64
	DisposalDate time.Time
	SaleProceeds money.Amount
	Buyer        string
}

func (e VehicleDisposed) Kind() string      { return "vehicle_disposed" }
func (e VehicleDisposed) DedupeKey() string { return pnl.DisposalSourceRef(e.VehicleID) }

func (e VehicleDisposed) Validate() error {
	if e.VehicleID == 0 {
		return fmt.Errorf("%w: vehicle ID required", shared.ErrValidation)
	}
	if e.SaleProceeds.IsNegative() {
		return fmt.Errorf("%w: sale proceeds must not be negative", shared.ErrValidation)
	}
	if e.DisposalDate.IsZero() {
		return fmt.Errorf("%w: disposal date required", shared.ErrValidation)
	}
	return nil
}
