package posting

import (
	"fmt"
	"strings"

	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
)

// Snapshot is the stored state a rule may consult. The engine resolves it
// before planning so the rules themselves stay pure.
type Snapshot struct {
	// HasUpfrontEntry is true once the vehicle's finance contract was
	// recognised upfront. The transition is one-way until vehicle deletion.
	HasUpfrontEntry bool
	// BookCost is the vehicle's acquisition cost basis at disposal time.
	BookCost money.Amount
}

// Mutation is a single store write a rule asks for.
type Mutation interface{ mutation() }

// CreateCharge adds a customer charge; open credit is auto-applied to it.
type CreateCharge struct {
	Input ledger.EntryInput
}

// RecordCost adds a cash-flow cost row to the ledger. Never allocated.
type RecordCost struct {
	Input ledger.EntryInput
}

// RecordPayment registers received funds and triggers FIFO allocation.
type RecordPayment struct {
	Input ledger.PaymentInput
}

// PostPnL ensures one P&L entry exists for SourceRef.
type PostPnL struct {
	SourceRef string
	Input     pnl.EntryInput
}

func (CreateCharge) mutation()  {}
func (RecordCost) mutation()    {}
func (RecordPayment) mutation() {}
func (PostPnL) mutation()       {}

func ref(s string) *string { return &s }

// Plan maps an event plus the state snapshot onto the store mutations that
// must exist afterwards. Every mutation carries its own idempotency key,
// so applying a plan twice cannot double-post.
func Plan(event Event, snap Snapshot) ([]Mutation, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	switch e := event.(type) {
	case ExpenseRecorded:
		category := pnl.CategoryExpenses
		if strings.EqualFold(e.Category, "Service") {
			category = pnl.CategoryService
		}
		return []Mutation{PostPnL{
			SourceRef: pnl.ExpenseSourceRef(e.ExpenseID),
			Input: pnl.EntryInput{
				VehicleID: &e.VehicleID,
				EntryDate: e.Date,
				Side:      pnl.SideCost,
				Category:  category,
				Amount:    e.Amount,
				Reference: e.Description,
				SourceRef: pnl.ExpenseSourceRef(e.ExpenseID),
			},
		}}, nil

	case FineCharged:
		return []Mutation{CreateCharge{Input: ledger.EntryInput{
			Type:        ledger.EntryCharge,
			CustomerID:  &e.CustomerID,
			VehicleID:   e.VehicleID,
			RentalID:    e.RentalID,
			Category:    ledger.CategoryFine,
			Amount:      e.Amount,
			DueDate:     e.DueDate,
			Description: e.Description,
			SourceRef:   ref(pnl.FineChargeSourceRef(e.FineID)),
		}}}, nil

	case FineWaived:
		return []Mutation{PostPnL{
			SourceRef: pnl.FineWaiveSourceRef(e.FineID),
			Input: pnl.EntryInput{
				VehicleID: e.VehicleID,
				EntryDate: e.Date,
				Side:      pnl.SideCost,
				Category:  pnl.CategoryFine,
				Amount:    e.Amount,
				Reference: fmt.Sprintf("Fine %d absorbed", e.FineID),
				SourceRef: pnl.FineWaiveSourceRef(e.FineID),
			},
		}}, nil

	case PaymentReceived:
		return []Mutation{RecordPayment{Input: ledger.PaymentInput{
			CustomerID: &e.CustomerID,
			VehicleID:  e.VehicleID,
			RentalID:   e.RentalID,
			Type:       paymentType(e.Type),
			Amount:     e.Amount,
			PaidAt:     e.PaidAt,
			Method:     e.Method,
			Reference:  e.Reference,
		}}}, nil

	case FinanceVehicleCreated:
		return []Mutation{PostPnL{
			SourceRef: pnl.UpfrontSourceRef(e.VehicleID),
			Input: pnl.EntryInput{
				VehicleID: &e.VehicleID,
				EntryDate: e.Date,
				Side:      pnl.SideCost,
				Category:  pnl.CategoryAcquisition,
				Amount:    e.ContractTotal,
				Reference: fmt.Sprintf("Finance contract %s", e.Registration),
				SourceRef: pnl.UpfrontSourceRef(e.VehicleID),
			},
		}}, nil

	case FinancePaymentReceived:
		key := pnl.FinancePaymentSourceRef(e.VehicleID, e.Component, e.Date, e.Amount)
		muts := []Mutation{RecordCost{Input: ledger.EntryInput{
			Type:        ledger.EntryCost,
			VehicleID:   &e.VehicleID,
			Category:    ledger.CategoryFinance,
			Amount:      e.Amount,
			DueDate:     e.Date,
			Description: fmt.Sprintf("Finance %s payment", e.Component),
			SourceRef:   ref(key),
		}}}
		// The contract was already costed in full at creation; posting each
		// installment again would double count.
		if !snap.HasUpfrontEntry {
			muts = append(muts, PostPnL{
				SourceRef: key,
				Input: pnl.EntryInput{
					VehicleID: &e.VehicleID,
					EntryDate: e.Date,
					Side:      pnl.SideCost,
					Category:  pnl.CategoryFinance,
					Amount:    e.Amount,
					Reference: fmt.Sprintf("Finance %s payment", e.Component),
					SourceRef: key,
				},
			})
		}
		return muts, nil

	case VehicleDisposed:
		gain := e.SaleProceeds.Sub(snap.BookCost)
		if gain.IsZero() {
			return nil, nil
		}
		side := pnl.SideRevenue
		if gain.IsNegative() {
			side = pnl.SideCost
		}
		return []Mutation{PostPnL{
			SourceRef: pnl.DisposalSourceRef(e.VehicleID),
			Input: pnl.EntryInput{
				VehicleID: &e.VehicleID,
				EntryDate: e.DisposalDate,
				Side:      side,
				Category:  pnl.CategoryDisposal,
				Amount:    gain.Abs(),
				Reference: fmt.Sprintf("Disposal of vehicle %d", e.VehicleID),
				SourceRef: pnl.DisposalSourceRef(e.VehicleID),
			},
		}}, nil

	default:
		return nil, fmt.Errorf("posting: unknown event kind %q", event.Kind())
	}
}

func paymentType(t string) ledger.PaymentType {
	switch strings.ToUpper(t) {
	case string(ledger.PaymentRental):
		return ledger.PaymentRental
	case string(ledger.PaymentFinance):
		return ledger.PaymentFinance
	case string(ledger.PaymentFine):
		return ledger.PaymentFine
	default:
		return ledger.PaymentOther
	}
}
