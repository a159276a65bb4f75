package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

func sortStatement(lines []StatementLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		// Charges before payments on the same day.
		return lines[i].Kind < lines[j].Kind
	})
}

// Service handles ledger business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validateEntryInput(input EntryInput) error {
	if input.Amount.IsNegative() || input.Amount.IsZero() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, input.Amount)
	}
	if !ValidCategory(input.Category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, input.Category)
	}
	switch input.Type {
	case EntryCharge:
		if input.CustomerID == nil || *input.CustomerID == 0 {
			return ErrCustomerMissing
		}
		if input.DueDate.IsZero() {
			return ErrDueDateMissing
		}
	case EntryCost:
		// Cost entries track business outflows; no customer involved.
	default:
		return fmt.Errorf("ledger: unknown entry type %q", input.Type)
	}
	return nil
}

// CreateCharge records a billable obligation. Any open customer credit is
// auto-applied to the new charge inside the same transaction, so unapplied
// payment amounts never linger once a charge exists to absorb them.
func (s *Service) CreateCharge(ctx context.Context, input EntryInput) (*Entry, []Application, error) {
	input.Type = EntryCharge
	if err := validateEntryInput(input); err != nil {
		return nil, nil, err
	}

	// Re-delivered events resolve to the already-created charge.
	if input.SourceRef != nil && *input.SourceRef != "" {
		if existing, err := s.repo.GetEntryBySourceRef(ctx, *input.SourceRef); err == nil {
			apps, err := s.repo.ListApplicationsByEntry(ctx, existing.ID)
			if err != nil {
				return nil, nil, err
			}
			return existing, apps, nil
		} else if !errors.Is(err, ErrChargeNotFound) {
			return nil, nil, err
		}
	}

	var charge *Entry
	var applied []Application
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		charge = inserted

		credits, err := tx.ListOpenCreditsForUpdate(ctx, *input.CustomerID)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, credit := range credits {
			if !charge.Remaining.IsPositive() {
				break
			}
			apply := money.Min(credit.Remaining, charge.Remaining)
			app, err := tx.InsertApplication(ctx, credit.ID, charge.ID, apply, now)
			if err != nil {
				return err
			}
			applied = append(applied, *app)
			charge.Remaining = charge.Remaining.Sub(apply)
			if err := tx.SetEntryRemaining(ctx, charge.ID, charge.Remaining); err != nil {
				return err
			}
			if err := tx.SetPaymentRemaining(ctx, credit.ID, credit.Remaining.Sub(apply)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRef) && input.SourceRef != nil {
			// Lost the race to a concurrent delivery; return its row.
			existing, readErr := s.repo.GetEntryBySourceRef(ctx, *input.SourceRef)
			if readErr != nil {
				return nil, nil, readErr
			}
			apps, readErr := s.repo.ListApplicationsByEntry(ctx, existing.ID)
			if readErr != nil {
				return nil, nil, readErr
			}
			return existing, apps, nil
		}
		return nil, nil, err
	}
	return charge, applied, nil
}

// RecordCost records a business outflow on the ledger for cash-flow
// tracking. Idempotent by source ref.
func (s *Service) RecordCost(ctx context.Context, input EntryInput) (*Entry, error) {
	input.Type = EntryCost
	if err := validateEntryInput(input); err != nil {
		return nil, err
	}
	if input.SourceRef != nil && *input.SourceRef != "" {
		if existing, err := s.repo.GetEntryBySourceRef(ctx, *input.SourceRef); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrChargeNotFound) {
			return nil, err
		}
	}
	var entry *Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		// Cost entries carry no receivable.
		if err := tx.SetEntryRemaining(ctx, inserted.ID, money.Zero()); err != nil {
			return err
		}
		inserted.Remaining = money.Zero()
		entry = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRef) && input.SourceRef != nil {
			return s.repo.GetEntryBySourceRef(ctx, *input.SourceRef)
		}
		return nil, err
	}
	return entry, nil
}

// RecordPayment registers an incoming payment and allocates it FIFO across
// the customer's open charges in one transaction. Payments carrying a
// reference are idempotent: a retried delivery returns the original rows.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (*Payment, AllocationResult, error) {
	if input.Amount.IsNegative() {
		return nil, AllocationResult{}, fmt.Errorf("%w: got %s", ErrInvalidAmount, input.Amount)
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = time.Now()
	}

	if input.Reference != "" {
		if existing, err := s.repo.GetPaymentByReference(ctx, input.Reference); err == nil {
			return s.existingResult(ctx, existing)
		} else if !errors.Is(err, ErrPaymentNotFound) {
			return nil, AllocationResult{}, err
		}
	}

	var payment *Payment
	var result AllocationResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertPayment(ctx, input)
		if err != nil {
			return err
		}
		payment = inserted

		// Zero-amount payments are recorded but allocate nothing.
		if !payment.Remaining.IsPositive() || payment.CustomerID == nil {
			result = AllocationResult{Leftover: payment.Remaining}
			return nil
		}

		res, err := allocateLocked(ctx, tx, payment)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRef) && input.Reference != "" {
			existing, readErr := s.repo.GetPaymentByReference(ctx, input.Reference)
			if readErr != nil {
				return nil, AllocationResult{}, readErr
			}
			return s.existingResult(ctx, existing)
		}
		return nil, AllocationResult{}, err
	}
	return payment, result, nil
}

func (s *Service) existingResult(ctx context.Context, payment *Payment) (*Payment, AllocationResult, error) {
	apps, err := s.repo.ListApplicationsByPayment(ctx, payment.ID)
	if err != nil {
		return nil, AllocationResult{}, err
	}
	return payment, AllocationResult{
		Applications: apps,
		Applied:      payment.Amount.Sub(payment.Remaining),
		Leftover:     payment.Remaining,
	}, nil
}

// AllocatePayment distributes a payment's unapplied amount across the
// customer's open charges. Exactly-once: a payment that already has
// applications is left untouched and its existing result is returned.
func (s *Service) AllocatePayment(ctx context.Context, paymentID int64) (AllocationResult, error) {
	var result AllocationResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		count, err := tx.CountApplications(ctx, paymentID)
		if err != nil {
			return err
		}
		if count > 0 {
			// Retried request: report prior allocation, mutate nothing.
			apps, err := s.repo.ListApplicationsByPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			result = AllocationResult{
				Applications: apps,
				Applied:      payment.Amount.Sub(payment.Remaining),
				Leftover:     payment.Remaining,
			}
			return nil
		}
		if !payment.Remaining.IsPositive() || payment.CustomerID == nil {
			result = AllocationResult{Leftover: payment.Remaining}
			return nil
		}
		res, err := allocateLocked(ctx, tx, payment)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// allocateLocked persists a FIFO allocation plan for a payment whose row is
// already locked in the transaction.
func allocateLocked(ctx context.Context, tx TxRepository, payment *Payment) (AllocationResult, error) {
	open, err := tx.ListOpenChargesForUpdate(ctx, *payment.CustomerID)
	if err != nil {
		return AllocationResult{}, err
	}
	SortOpenCharges(open)
	plan, leftover := PlanAllocation(payment.Remaining, open)

	remaining := make(map[int64]money.Amount, len(open))
	for _, charge := range open {
		remaining[charge.ID] = charge.Remaining
	}

	now := time.Now()
	result := AllocationResult{Leftover: leftover}
	for _, step := range plan {
		app, err := tx.InsertApplication(ctx, payment.ID, step.EntryID, step.Amount, now)
		if err != nil {
			return AllocationResult{}, err
		}
		result.Applications = append(result.Applications, *app)
		result.Applied = result.Applied.Add(step.Amount)
		if err := tx.SetEntryRemaining(ctx, step.EntryID, remaining[step.EntryID].Sub(step.Amount)); err != nil {
			return AllocationResult{}, err
		}
	}
	if err := tx.SetPaymentRemaining(ctx, payment.ID, leftover); err != nil {
		return AllocationResult{}, err
	}
	payment.Remaining = leftover
	return result, nil
}

// OpenCharges returns a customer's unpaid charges in FIFO order.
func (s *Service) OpenCharges(ctx context.Context, customerID int64) ([]Entry, error) {
	if customerID == 0 {
		return nil, ErrCustomerMissing
	}
	return s.repo.ListOpenCharges(ctx, customerID)
}

// AllOpenCharges returns every unpaid charge, for aging reports.
func (s *Service) AllOpenCharges(ctx context.Context) ([]Entry, error) {
	return s.repo.ListAllOpenCharges(ctx)
}

// CustomerBalance returns outstanding charges minus unapplied credit.
func (s *Service) CustomerBalance(ctx context.Context, customerID int64) (money.Amount, error) {
	if customerID == 0 {
		return money.Zero(), ErrCustomerMissing
	}
	charges, err := s.repo.ListOpenCharges(ctx, customerID)
	if err != nil {
		return money.Zero(), err
	}
	payments, err := s.repo.ListCustomerPayments(ctx, customerID)
	if err != nil {
		return money.Zero(), err
	}
	balance := money.Zero()
	for _, c := range charges {
		balance = balance.Add(c.Remaining)
	}
	for _, p := range payments {
		balance = balance.Sub(p.Remaining)
	}
	return balance, nil
}

// StatementLine is one row of a customer statement.
type StatementLine struct {
	Date        time.Time
	Kind        string
	Description string
	Debit       money.Amount
	Credit      money.Amount
	Balance     money.Amount
}

// Statement merges a customer's charges and payments chronologically with
// a running balance.
func (s *Service) Statement(ctx context.Context, customerID int64) ([]StatementLine, error) {
	if customerID == 0 {
		return nil, ErrCustomerMissing
	}
	entries, err := s.repo.ListCustomerEntries(ctx, customerID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListCustomerPayments(ctx, customerID)
	if err != nil {
		return nil, err
	}

	lines := make([]StatementLine, 0, len(entries)+len(payments))
	for _, e := range entries {
		if e.Type != EntryCharge {
			continue
		}
		lines = append(lines, StatementLine{
			Date:        e.DueDate,
			Kind:        "charge",
			Description: e.Description,
			Debit:       e.Amount,
		})
	}
	for _, p := range payments {
		desc := p.Method
		if desc == "" {
			desc = string(p.Type)
		}
		lines = append(lines, StatementLine{
			Date:        p.PaidAt,
			Kind:        "payment",
			Description: desc,
			Credit:      p.Amount,
		})
	}
	sortStatement(lines)

	balance := money.Zero()
	for i := range lines {
		balance = balance.Add(lines[i].Debit).Sub(lines[i].Credit)
		lines[i].Balance = balance
	}
	return lines, nil
}

// CheckConsistency scans for invariant violations: remaining amounts out
// of range, and applications summing to something other than the consumed
// portion of a charge or payment. Findings are reported, never repaired.
func (s *Service) CheckConsistency(ctx context.Context) ([]Finding, error) {
	var findings []Finding

	chargeSums, err := s.repo.ChargeApplicationSums(ctx)
	if err != nil {
		return nil, err
	}
	for _, sum := range chargeSums {
		switch {
		case sum.Remaining.IsNegative():
			findings = append(findings, Finding{
				Kind:    "charge_remaining_negative",
				EntryID: sum.EntryID,
				Detail:  fmt.Sprintf("remaining %s below zero", sum.Remaining),
			})
		case sum.Remaining.GreaterThan(sum.Amount):
			findings = append(findings, Finding{
				Kind:    "charge_remaining_exceeds_amount",
				EntryID: sum.EntryID,
				Detail:  fmt.Sprintf("remaining %s exceeds amount %s", sum.Remaining, sum.Amount),
			})
		case !sum.Amount.Sub(sum.Remaining).Equal(sum.Applied):
			findings = append(findings, Finding{
				Kind:    "charge_application_mismatch",
				EntryID: sum.EntryID,
				Detail:  fmt.Sprintf("consumed %s but applications sum to %s", sum.Amount.Sub(sum.Remaining), sum.Applied),
			})
		}
	}

	paymentSums, err := s.repo.PaymentApplicationSums(ctx)
	if err != nil {
		return nil, err
	}
	for _, sum := range paymentSums {
		switch {
		case sum.Remaining.IsNegative():
			findings = append(findings, Finding{
				Kind:      "payment_remaining_negative",
				PaymentID: sum.PaymentID,
				Detail:    fmt.Sprintf("remaining %s below zero", sum.Remaining),
			})
		case sum.Remaining.GreaterThan(sum.Amount):
			findings = append(findings, Finding{
				Kind:      "payment_remaining_exceeds_amount",
				PaymentID: sum.PaymentID,
				Detail:    fmt.Sprintf("remaining %s exceeds amount %s", sum.Remaining, sum.Amount),
			})
		case !sum.Amount.Sub(sum.Remaining).Equal(sum.Applied):
			findings = append(findings, Finding{
				Kind:      "payment_application_mismatch",
				PaymentID: sum.PaymentID,
				Detail:    fmt.Sprintf("applied %s but applications sum to %s", sum.Amount.Sub(sum.Remaining), sum.Applied),
			})
		}
	}

	return findings, nil
}
