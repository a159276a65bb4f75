package ledger

import (
	"sort"

	"github.com/fleetline/fleetline/internal/money"
)

// PlannedApplication is one step of an allocation plan.
type PlannedApplication struct {
	EntryID int64
	Amount  money.Amount
}

// AllocationResult summarises a completed allocation.
type AllocationResult struct {
	Applications []Application
	Applied      money.Amount
	// Leftover is retained on the payment as credit and auto-applied to
	// the next charge created for the customer.
	Leftover money.Amount
}

// SortOpenCharges orders charges for strict FIFO allocation: ascending
// due date, ties broken by creation order. The tie-break keeps allocation
// deterministic when several charges fall due on the same day.
func SortOpenCharges(charges []Entry) {
	sort.SliceStable(charges, func(i, j int) bool {
		if !charges[i].DueDate.Equal(charges[j].DueDate) {
			return charges[i].DueDate.Before(charges[j].DueDate)
		}
		return charges[i].ID < charges[j].ID
	})
}

// PlanAllocation distributes available funds across open charges in the
// given order. It is a pure function: callers persist the returned plan.
// Charges must already be in FIFO order (SortOpenCharges). A zero or
// negative available amount yields an empty plan.
func PlanAllocation(available money.Amount, open []Entry) ([]PlannedApplication, money.Amount) {
	var plan []PlannedApplication
	for _, charge := range open {
		if !available.IsPositive() {
			break
		}
		if !charge.Open() {
			continue
		}
		apply := money.Min(available, charge.Remaining)
		plan = append(plan, PlannedApplication{EntryID: charge.ID, Amount: apply})
		available = available.Sub(apply)
	}
	return plan, available
}
