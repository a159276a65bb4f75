package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
	"github.com/fleetline/fleetline/internal/shared"
)

// LedgerPort is the slice of the ledger service the engine drives.
type LedgerPort interface {
	CreateCharge(ctx context.Context, input ledger.EntryInput) (*ledger.Entry, []ledger.Application, error)
	RecordCost(ctx context.Context, input ledger.EntryInput) (*ledger.Entry, error)
	RecordPayment(ctx context.Context, input ledger.PaymentInput) (*ledger.Payment, ledger.AllocationResult, error)
}

// ProfitPort is the slice of the P&L service the engine drives.
type ProfitPort interface {
	EnsurePosted(ctx context.Context, sourceRef string, build func() (pnl.EntryInput, error)) (*pnl.Entry, bool, error)
	HasUpfrontEntry(ctx context.Context, vehicleID int64) (bool, error)
	EntryBySourceRef(ctx context.Context, sourceRef string) (*pnl.Entry, error)
}

// Deduper claims event delivery keys. A claim that fails processing is
// released so the caller's retry can claim it again.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Auditor records posting decisions for manual reconciliation.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts posting outcomes.
type Metrics interface {
	EventPosted(kind string)
	DuplicateSkipped(kind string)
}

type noopMetrics struct{}

func (noopMetrics) EventPosted(string)      {}
func (noopMetrics) DuplicateSkipped(string) {}

// Engine resolves state snapshots, plans mutations through the rules, and
// applies them. Every mutation is individually idempotent, so a partially
// applied event converges on retry.
type Engine struct {
	ledger     LedgerPort
	pnl        ProfitPort
	financials FinancialsLookup
	dedupe     Deduper
	audit      Auditor
	metrics    Metrics
	bookCost   BookCostPolicy
	log        *slog.Logger
}

// NewEngine wires the engine. dedupe, audit, and metrics may be nil.
func NewEngine(ledgerSvc LedgerPort, pnlSvc ProfitPort, financials FinancialsLookup, dedupe Deduper, audit Auditor, metrics Metrics, log *slog.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		ledger:     ledgerSvc,
		pnl:        pnlSvc,
		financials: financials,
		dedupe:     dedupe,
		audit:      audit,
		metrics:    metrics,
		bookCost:   AcquisitionBookCost,
		log:        log,
	}
}

// UseBookCostPolicy swaps the disposal cost-basis policy.
func (e *Engine) UseBookCostPolicy(p BookCostPolicy) {
	if p != nil {
		e.bookCost = p
	}
}

// Result reports what an event produced. Duplicate means the delivery was
// already processed and nothing was written.
type Result struct {
	Duplicate     bool
	LedgerEntries []*ledger.Entry
	Applications  []ledger.Application
	Payment       *ledger.Payment
	Allocation    ledger.AllocationResult
	PnLEntries    []*pnl.Entry
}

// Post processes one domain event end to end.
func (e *Engine) Post(ctx context.Context, event Event) (Result, error) {
	if err := event.Validate(); err != nil {
		return Result{}, err
	}

	key := event.DedupeKey()
	claimed := false
	if e.dedupe != nil && key != "" {
		err := e.dedupe.CheckAndInsert(ctx, key, "posting")
		switch {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			e.metrics.DuplicateSkipped(event.Kind())
			e.log.Debug("duplicate event delivery skipped", "event", event.Kind(), "key", key)
			return Result{Duplicate: true}, nil
		case err != nil:
			return Result{}, fmt.Errorf("posting: claim %s: %w", key, err)
		}
		claimed = true
	}

	result, err := e.post(ctx, event)
	if err != nil {
		if claimed {
			if delErr := e.dedupe.Delete(ctx, key); delErr != nil {
				e.log.Error("failed to release idempotency key", "key", key, slog.Any("error", delErr))
			}
		}
		return Result{}, err
	}

	e.metrics.EventPosted(event.Kind())
	e.recordAudit(ctx, event, key, result)
	return result, nil
}

func (e *Engine) post(ctx context.Context, event Event) (Result, error) {
	snap, err := e.resolveSnapshot(ctx, event)
	if err != nil {
		return Result{}, err
	}

	muts, err := Plan(event, snap)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, mut := range muts {
		switch m := mut.(type) {
		case CreateCharge:
			entry, apps, err := e.ledger.CreateCharge(ctx, m.Input)
			if err != nil {
				return Result{}, fmt.Errorf("posting: %s: create charge: %w", event.Kind(), err)
			}
			result.LedgerEntries = append(result.LedgerEntries, entry)
			result.Applications = append(result.Applications, apps...)
		case RecordCost:
			entry, err := e.ledger.RecordCost(ctx, m.Input)
			if err != nil {
				return Result{}, fmt.Errorf("posting: %s: record cost: %w", event.Kind(), err)
			}
			result.LedgerEntries = append(result.LedgerEntries, entry)
		case RecordPayment:
			payment, alloc, err := e.ledger.RecordPayment(ctx, m.Input)
			if err != nil {
				return Result{}, fmt.Errorf("posting: %s: record payment: %w", event.Kind(), err)
			}
			result.Payment = payment
			result.Allocation = alloc
		case PostPnL:
			entry, _, err := e.pnl.EnsurePosted(ctx, m.SourceRef, func() (pnl.EntryInput, error) {
				return m.Input, nil
			})
			if err != nil {
				return Result{}, fmt.Errorf("posting: %s: pnl %s: %w", event.Kind(), m.SourceRef, err)
			}
			result.PnLEntries = append(result.PnLEntries, entry)
		default:
			return Result{}, fmt.Errorf("posting: unhandled mutation %T", mut)
		}
	}
	return result, nil
}

func (e *Engine) resolveSnapshot(ctx context.Context, event Event) (Snapshot, error) {
	switch ev := event.(type) {
	case FinancePaymentReceived:
		has, err := e.pnl.HasUpfrontEntry(ctx, ev.VehicleID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("posting: upfront lookup for vehicle %d: %w", ev.VehicleID, err)
		}
		return Snapshot{HasUpfrontEntry: has}, nil
	case VehicleDisposed:
		cost, err := e.resolveBookCost(ctx, ev.VehicleID)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{BookCost: cost}, nil
	default:
		return Snapshot{}, nil
	}
}

func (e *Engine) resolveBookCost(ctx context.Context, vehicleID int64) (money.Amount, error) {
	if e.financials == nil {
		return money.Amount{}, errors.New("posting: financials lookup not configured")
	}
	fin, err := e.financials(ctx, vehicleID)
	if err != nil {
		return money.Amount{}, fmt.Errorf("posting: financials for vehicle %d: %w", vehicleID, err)
	}
	hasUpfront, err := e.pnl.HasUpfrontEntry(ctx, vehicleID)
	if err != nil {
		return money.Amount{}, fmt.Errorf("posting: upfront lookup for vehicle %d: %w", vehicleID, err)
	}
	return e.bookCost(fin, hasUpfront), nil
}

func (e *Engine) recordAudit(ctx context.Context, event Event, key string, result Result) {
	if e.audit == nil {
		return
	}
	if key == "" {
		key = event.Kind()
	}
	log := shared.AuditLog{
		Action:   event.Kind(),
		Entity:   "posting",
		EntityID: key,
		Meta: map[string]any{
			"ledger_entries": len(result.LedgerEntries),
			"pnl_entries":    len(result.PnLEntries),
		},
		At: time.Now(),
	}
	if err := e.audit.Record(ctx, log); err != nil {
		e.log.Warn("audit record failed", "event", event.Kind(), slog.Any("error", err))
	}
}

// DisposalInput is the disposal RPC request.
type DisposalInput struct {
	VehicleID    int64
	DisposalDate time.Time
	SaleProceeds money.Amount
	Buyer        string
}

// DisposalResult is the disposal RPC response. GainOrLoss is signed:
// positive for a gain, negative for a loss. PnLEntryID is zero when
// proceeds matched book cost exactly and no entry was needed.
type DisposalResult struct {
	GainOrLoss money.Amount
	PnLEntryID int64
}

// Dispose posts the gain or loss on selling a vehicle. Calling it twice
// for the same vehicle returns the first outcome without writing again.
func (e *Engine) Dispose(ctx context.Context, in DisposalInput) (DisposalResult, error) {
	event := VehicleDisposed{
		VehicleID:    in.VehicleID,
		DisposalDate: in.DisposalDate,
		SaleProceeds: in.SaleProceeds,
		Buyer:        in.Buyer,
	}
	if err := event.Validate(); err != nil {
		return DisposalResult{}, err
	}

	sourceRef := pnl.DisposalSourceRef(in.VehicleID)
	existing, err := e.pnl.EntryBySourceRef(ctx, sourceRef)
	switch {
	case err == nil:
		e.metrics.DuplicateSkipped(event.Kind())
		return disposalResultFrom(existing), nil
	case !errors.Is(err, pnl.ErrEntryNotFound):
		return DisposalResult{}, fmt.Errorf("posting: disposal lookup for vehicle %d: %w", in.VehicleID, err)
	}

	bookCost, err := e.resolveBookCost(ctx, in.VehicleID)
	if err != nil {
		return DisposalResult{}, err
	}
	gain := in.SaleProceeds.Sub(bookCost)
	if gain.IsZero() {
		e.recordAudit(ctx, event, sourceRef, Result{})
		return DisposalResult{}, nil
	}

	side := pnl.SideRevenue
	if gain.IsNegative() {
		side = pnl.SideCost
	}
	entry, _, err := e.pnl.EnsurePosted(ctx, sourceRef, func() (pnl.EntryInput, error) {
		return pnl.EntryInput{
			VehicleID: &in.VehicleID,
			EntryDate: in.DisposalDate,
			Side:      side,
			Category:  pnl.CategoryDisposal,
			Amount:    gain.Abs(),
			Reference: fmt.Sprintf("Disposal of vehicle %d", in.VehicleID),
			SourceRef: sourceRef,
		}, nil
	})
	if err != nil {
		return DisposalResult{}, fmt.Errorf("posting: dispose vehicle %d: %w", in.VehicleID, err)
	}

	e.metrics.EventPosted(event.Kind())
	e.recordAudit(ctx, event, sourceRef, Result{PnLEntries: []*pnl.Entry{entry}})
	return disposalResultFrom(entry), nil
}

func disposalResultFrom(entry *pnl.Entry) DisposalResult {
	gain := entry.Amount
	if entry.Side == pnl.SideCost {
		gain = gain.Neg()
	}
	return DisposalResult{GainOrLoss: gain, PnLEntryID: entry.ID}
}
