// Package pnl implements the profit & loss entry store: append-mostly
// revenue/cost records per vehicle, deduplicated by a unique source ref.
package pnl

import (
	"errors"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// Side is the P&L side of an entry.
type Side string

const (
	SideRevenue Side = "REVENUE"
	SideCost    Side = "COST"
)

// Category classifies P&L entries.
type Category string

const (
	CategoryAcquisition Category = "ACQUISITION"
	CategoryFinance     Category = "FINANCE"
	CategoryService     Category = "SERVICE"
	CategoryDisposal    Category = "DISPOSAL"
	CategoryExpenses    Category = "EXPENSES"
	CategoryFine        Category = "FINE"
	CategoryRental      Category = "RENTAL"
)

// Entry is a posted P&L record. At most one row ever exists per SourceRef;
// deletion as part of a compensating reversal is the only mutation path
// other than creation.
type Entry struct {
	ID        int64
	VehicleID *int64
	EntryDate time.Time
	Side      Side
	Category  Category
	Amount    money.Amount
	Reference string
	SourceRef string
	CreatedAt time.Time
}

// EntryInput creates a P&L entry.
type EntryInput struct {
	VehicleID *int64
	EntryDate time.Time
	Side      Side
	Category  Category
	Amount    money.Amount
	Reference string
	SourceRef string
}

// Summary aggregates entries by side.
type Summary struct {
	Revenue money.Amount
	Cost    money.Amount
	Net     money.Amount
}

var (
	ErrEntryNotFound      = errors.New("pnl: entry not found")
	ErrDuplicateSourceRef = errors.New("pnl: source ref already posted")
	ErrInvalidEntry       = errors.New("pnl: invalid entry")
)

var validCategories = map[Category]bool{
	CategoryAcquisition: true,
	CategoryFinance:     true,
	CategoryService:     true,
	CategoryDisposal:    true,
	CategoryExpenses:    true,
	CategoryFine:        true,
	CategoryRental:      true,
}

// ValidCategory reports whether c is a known P&L category.
func ValidCategory(c Category) bool {
	return validCategories[c]
}

// ValidSide reports whether s is Revenue or Cost.
func ValidSide(s Side) bool {
	return s == SideRevenue || s == SideCost
}
