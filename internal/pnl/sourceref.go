package pnl

import (
	"fmt"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// Source refs are stable idempotency keys derived from the triggering
// event. They live in a dedicated column, never in a display field, and
// are unique-indexed as the final race-safety net.

// ExpenseSourceRef keys a vehicle expense posting.
func ExpenseSourceRef(expenseID int64) string {
	return fmt.Sprintf("vexp:%d", expenseID)
}

// FineChargeSourceRef keys the ledger charge created for a fine.
func FineChargeSourceRef(fineID int64) string {
	return fmt.Sprintf("fine-charge:%d", fineID)
}

// FineWaiveSourceRef keys the cost posting for a business-absorbed fine.
func FineWaiveSourceRef(fineID int64) string {
	return fmt.Sprintf("fine-waive:%d", fineID)
}

// DisposalSourceRef keys the single gain-or-loss posting for a disposal.
func DisposalSourceRef(vehicleID int64) string {
	return fmt.Sprintf("dispose:%d", vehicleID)
}

// UpfrontSourceRef keys the upfront contract-total posting for a financed
// vehicle.
func UpfrontSourceRef(vehicleID int64) string {
	return fmt.Sprintf("FIN-UPFRONT:%d", vehicleID)
}

// FinancePaymentSourceRef keys a single finance payment component
// (deposit, monthly, balloon, fee) on a given date for a given amount.
func FinancePaymentSourceRef(vehicleID int64, component string, date time.Time, amount money.Amount) string {
	return fmt.Sprintf("FINPAY:%d:%s:%s:%s", vehicleID, component, date.Format("2006-01-02"), amount)
}
