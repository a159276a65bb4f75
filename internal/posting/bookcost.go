package posting

import (
	"context"

	"github.com/fleetline/fleetline/internal/money"
)

// VehicleFinancials carries the acquisition figures book cost derives from.
type VehicleFinancials struct {
	PurchasePrice  money.Amount
	Financed       bool
	InitialPayment money.Amount
	MonthlyPayment money.Amount
	TermMonths     int
	Balloon        money.Amount
}

// ContractTotal is the full cost of a finance contract.
func (v VehicleFinancials) ContractTotal() money.Amount {
	return v.InitialPayment.Add(v.MonthlyPayment.MulInt(int64(v.TermMonths))).Add(v.Balloon)
}

// BookCostPolicy computes the cost basis used in disposal gain/loss. It is
// a policy, not a fixed formula: whether service or expense costs are
// capitalised into the basis is a deployment decision.
type BookCostPolicy func(v VehicleFinancials, hasUpfrontEntry bool) money.Amount

// AcquisitionBookCost is the default policy: acquisition cost only. A
// financed vehicle recognised upfront carries its contract total; every
// other vehicle carries its purchase price.
func AcquisitionBookCost(v VehicleFinancials, hasUpfrontEntry bool) money.Amount {
	if v.Financed && hasUpfrontEntry {
		return v.ContractTotal()
	}
	return v.PurchasePrice
}

// FinancialsLookup resolves a vehicle's acquisition figures from storage.
type FinancialsLookup func(ctx context.Context, vehicleID int64) (VehicleFinancials, error)
