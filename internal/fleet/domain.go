// Package fleet manages vehicles, expenses, and fines, feeding their
// financial events into the posting engine.
package fleet

import (
	"errors"
	"time"

	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/posting"
)

// AcquisitionType distinguishes outright purchases from finance contracts.
type AcquisitionType string

const (
	AcquisitionPurchase AcquisitionType = "PURCHASE"
	AcquisitionFinance  AcquisitionType = "FINANCE"
)

// Vehicle is a fleet vehicle with the acquisition figures the posting
// engine derives book cost from.
type Vehicle struct {
	ID             int64
	Registration   string
	Make           string
	Model          string
	Acquisition    AcquisitionType
	PurchasePrice  money.Amount
	InitialPayment money.Amount
	MonthlyPayment money.Amount
	TermMonths     int
	Balloon        money.Amount
	AcquiredAt     time.Time
	IsDisposed     bool
	DisposalDate   *time.Time
	SaleProceeds   *money.Amount
	CreatedAt      time.Time
}

// ContractTotal is the full cost of the finance contract: initial payment
// plus every installment plus the balloon.
func (v Vehicle) ContractTotal() money.Amount {
	return v.InitialPayment.Add(v.MonthlyPayment.MulInt(int64(v.TermMonths))).Add(v.Balloon)
}

// Financials converts the vehicle into the posting engine's view of it.
func (v Vehicle) Financials() posting.VehicleFinancials {
	return posting.VehicleFinancials{
		PurchasePrice:  v.PurchasePrice,
		Financed:       v.Acquisition == AcquisitionFinance,
		InitialPayment: v.InitialPayment,
		MonthlyPayment: v.MonthlyPayment,
		TermMonths:     v.TermMonths,
		Balloon:        v.Balloon,
	}
}

// VehicleInput registers a vehicle.
type VehicleInput struct {
	Registration   string
	Make           string
	Model          string
	Acquisition    AcquisitionType
	PurchasePrice  money.Amount
	InitialPayment money.Amount
	MonthlyPayment money.Amount
	TermMonths     int
	Balloon        money.Amount
	AcquiredAt     time.Time
}

// Expense is a cost incurred against a vehicle.
type Expense struct {
	ID          int64
	VehicleID   int64
	Category    string
	Amount      money.Amount
	ExpenseDate time.Time
	Description string
	CreatedAt   time.Time
}

// ExpenseInput records an expense.
type ExpenseInput struct {
	VehicleID   int64
	Category    string
	Amount      money.Amount
	ExpenseDate time.Time
	Description string
}

// FineStatus tracks what happened to a fine. A pending fine is either
// charged to the customer or waived (absorbed by the business), never both.
type FineStatus string

const (
	FinePending FineStatus = "PENDING"
	FineCharged FineStatus = "CHARGED"
	FineWaived  FineStatus = "WAIVED"
)

// Fine is a traffic or parking fine received for a vehicle.
type Fine struct {
	ID          int64
	VehicleID   *int64
	CustomerID  *int64
	RentalID    *int64
	Amount      money.Amount
	IssuedAt    time.Time
	DueDate     time.Time
	Status      FineStatus
	Description string
	CreatedAt   time.Time
}

// FineInput registers a fine.
type FineInput struct {
	VehicleID   *int64
	CustomerID  *int64
	RentalID    *int64
	Amount      money.Amount
	IssuedAt    time.Time
	DueDate     time.Time
	Description string
}

var (
	ErrVehicleNotFound  = errors.New("fleet: vehicle not found")
	ErrExpenseNotFound  = errors.New("fleet: expense not found")
	ErrFineNotFound     = errors.New("fleet: fine not found")
	ErrInvalidVehicle   = errors.New("fleet: invalid vehicle")
	ErrInvalidExpense   = errors.New("fleet: invalid expense")
	ErrInvalidFine      = errors.New("fleet: invalid fine")
	ErrFineResolved     = errors.New("fleet: fine already resolved")
	ErrCustomerRequired = errors.New("fleet: fine has no customer to charge")
)
