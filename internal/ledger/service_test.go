package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/money"
)

type memoryRepo struct {
	mu            sync.Mutex
	entries       map[int64]*Entry
	payments      map[int64]*Payment
	applications  []Application
	sourceRefs    map[string]int64
	references    map[string]int64
	nextEntryID   int64
	nextPaymentID int64
	nextAppID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:    make(map[int64]*Entry),
		payments:   make(map[int64]*Payment),
		sourceRefs: make(map[string]int64),
		references: make(map[string]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrChargeNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *memoryRepo) GetEntryBySourceRef(ctx context.Context, sourceRef string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.sourceRefs[sourceRef]
	if !ok {
		return nil, ErrChargeNotFound
	}
	copied := *r.entries[id]
	return &copied, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.references[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *r.payments[id]
	return &copied, nil
}

func (r *memoryRepo) ListOpenCharges(ctx context.Context, customerID int64) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Type == EntryCharge && e.CustomerID != nil && *e.CustomerID == customerID && e.Remaining.IsPositive() {
			out = append(out, *e)
		}
	}
	SortOpenCharges(out)
	return out, nil
}

func (r *memoryRepo) ListAllOpenCharges(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Type == EntryCharge && e.Remaining.IsPositive() {
			out = append(out, *e)
		}
	}
	SortOpenCharges(out)
	return out, nil
}

func (r *memoryRepo) ListCustomerEntries(ctx context.Context, customerID int64) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.CustomerID != nil && *e.CustomerID == customerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListCustomerPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.CustomerID != nil && *p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListApplicationsByPayment(ctx context.Context, paymentID int64) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Application
	for _, a := range r.applications {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListApplicationsByEntry(ctx context.Context, entryID int64) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Application
	for _, a := range r.applications {
		if a.EntryID == entryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ChargeApplicationSums(ctx context.Context) ([]ChargeSum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ChargeSum
	for _, e := range r.entries {
		if e.Type != EntryCharge {
			continue
		}
		applied := money.Zero()
		for _, a := range r.applications {
			if a.EntryID == e.ID {
				applied = applied.Add(a.Amount)
			}
		}
		out = append(out, ChargeSum{EntryID: e.ID, Amount: e.Amount, Remaining: e.Remaining, Applied: applied})
	}
	return out, nil
}

func (r *memoryRepo) PaymentApplicationSums(ctx context.Context) ([]PaymentSum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PaymentSum
	for _, p := range r.payments {
		applied := money.Zero()
		for _, a := range r.applications {
			if a.PaymentID == p.ID {
				applied = applied.Add(a.Amount)
			}
		}
		out = append(out, PaymentSum{PaymentID: p.ID, Amount: p.Amount, Remaining: p.Remaining, Applied: applied})
	}
	return out, nil
}

func (r *memoryRepo) InsertEntry(ctx context.Context, input EntryInput) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if input.SourceRef != nil && *input.SourceRef != "" {
		if _, taken := r.sourceRefs[*input.SourceRef]; taken {
			return nil, ErrDuplicateRef
		}
	}
	r.nextEntryID++
	e := &Entry{
		ID:          r.nextEntryID,
		Type:        input.Type,
		CustomerID:  input.CustomerID,
		VehicleID:   input.VehicleID,
		RentalID:    input.RentalID,
		Category:    input.Category,
		Amount:      input.Amount,
		Remaining:   input.Amount,
		DueDate:     input.DueDate,
		Description: input.Description,
		SourceRef:   input.SourceRef,
		CreatedAt:   time.Now(),
	}
	r.entries[e.ID] = e
	if input.SourceRef != nil && *input.SourceRef != "" {
		r.sourceRefs[*input.SourceRef] = e.ID
	}
	copied := *e
	return &copied, nil
}

func (r *memoryRepo) InsertPayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if input.Reference != "" {
		if _, taken := r.references[input.Reference]; taken {
			return nil, ErrDuplicateRef
		}
	}
	r.nextPaymentID++
	p := &Payment{
		ID:         r.nextPaymentID,
		CustomerID: input.CustomerID,
		VehicleID:  input.VehicleID,
		RentalID:   input.RentalID,
		Type:       input.Type,
		Amount:     input.Amount,
		Remaining:  input.Amount,
		PaidAt:     input.PaidAt,
		Method:     input.Method,
		Reference:  input.Reference,
		CreatedAt:  time.Now(),
	}
	r.payments[p.ID] = p
	if input.Reference != "" {
		r.references[input.Reference] = p.ID
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) LockPayment(ctx context.Context, id int64) (*Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *memoryRepo) CountApplications(ctx context.Context, paymentID int64) (int, error) {
	apps, _ := r.ListApplicationsByPayment(ctx, paymentID)
	return len(apps), nil
}

func (r *memoryRepo) ListOpenChargesForUpdate(ctx context.Context, customerID int64) ([]Entry, error) {
	return r.ListOpenCharges(ctx, customerID)
}

func (r *memoryRepo) ListOpenCreditsForUpdate(ctx context.Context, customerID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.CustomerID != nil && *p.CustomerID == customerID && p.Remaining.IsPositive() {
			out = append(out, *p)
		}
	}
	sortPaymentsByPaidAt(out)
	return out, nil
}

func sortPaymentsByPaidAt(payments []Payment) {
	for i := 1; i < len(payments); i++ {
		for j := i; j > 0; j-- {
			a, b := payments[j-1], payments[j]
			if b.PaidAt.Before(a.PaidAt) || (b.PaidAt.Equal(a.PaidAt) && b.ID < a.ID) {
				payments[j-1], payments[j] = b, a
			}
		}
	}
}

func (r *memoryRepo) InsertApplication(ctx context.Context, paymentID, entryID int64, amount money.Amount, at time.Time) (*Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAppID++
	a := Application{ID: r.nextAppID, PaymentID: paymentID, EntryID: entryID, Amount: amount, AppliedAt: at}
	r.applications = append(r.applications, a)
	return &a, nil
}

func (r *memoryRepo) SetEntryRemaining(ctx context.Context, id int64, remaining money.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ErrChargeNotFound
	}
	e.Remaining = remaining
	return nil
}

func (r *memoryRepo) SetPaymentRemaining(ctx context.Context, id int64, remaining money.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Remaining = remaining
	return nil
}

func customer(id int64) *int64 {
	return &id
}

func mustCharge(t *testing.T, svc *Service, customerID int64, amount, due string) *Entry {
	t.Helper()
	charge, _, err := svc.CreateCharge(context.Background(), EntryInput{
		CustomerID: customer(customerID),
		Category:   CategoryRental,
		Amount:     money.MustParse(amount),
		DueDate:    day(due),
	})
	require.NoError(t, err)
	return charge
}

func TestCreateChargeValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, _, err := svc.CreateCharge(ctx, EntryInput{
		Category: CategoryRental,
		Amount:   money.MustParse("100"),
		DueDate:  day("2026-01-01"),
	})
	require.ErrorIs(t, err, ErrCustomerMissing)

	_, _, err = svc.CreateCharge(ctx, EntryInput{
		CustomerID: customer(1),
		Category:   CategoryRental,
		Amount:     money.MustParse("-5"),
		DueDate:    day("2026-01-01"),
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = svc.CreateCharge(ctx, EntryInput{
		CustomerID: customer(1),
		Category:   Category("BOGUS"),
		Amount:     money.MustParse("100"),
		DueDate:    day("2026-01-01"),
	})
	require.ErrorIs(t, err, ErrUnknownCategory)

	_, _, err = svc.CreateCharge(ctx, EntryInput{
		CustomerID: customer(1),
		Category:   CategoryRental,
		Amount:     money.MustParse("100"),
	})
	require.ErrorIs(t, err, ErrDueDateMissing)
}

func TestRecordPaymentAllocatesFIFORegardlessOfInsertionOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// Inserted newest due date first; allocation must still go D1, D2, D3.
	c3 := mustCharge(t, svc, 1, "300", "2026-03-01")
	c1 := mustCharge(t, svc, 1, "100", "2026-01-01")
	c2 := mustCharge(t, svc, 1, "200", "2026-02-01")

	_, result, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("600"),
		PaidAt:     day("2026-03-05"),
	})
	require.NoError(t, err)
	require.Len(t, result.Applications, 3)
	require.Equal(t, c1.ID, result.Applications[0].EntryID)
	require.Equal(t, c2.ID, result.Applications[1].EntryID)
	require.Equal(t, c3.ID, result.Applications[2].EntryID)
	require.Equal(t, "600.00", result.Applied.String())
	require.True(t, result.Leftover.IsZero())

	for _, id := range []int64{c1.ID, c2.ID, c3.ID} {
		e, err := repo.GetEntry(ctx, id)
		require.NoError(t, err)
		require.True(t, e.Remaining.IsZero())
	}
}

func TestIdenticalDueDatesAllocateInCreationOrder(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	first := mustCharge(t, svc, 1, "50", "2026-01-15")
	second := mustCharge(t, svc, 1, "50", "2026-01-15")

	_, result, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("60"),
		PaidAt:     day("2026-01-20"),
	})
	require.NoError(t, err)
	require.Len(t, result.Applications, 2)
	require.Equal(t, first.ID, result.Applications[0].EntryID)
	require.Equal(t, "50.00", result.Applications[0].Amount.String())
	require.Equal(t, second.ID, result.Applications[1].EntryID)
	require.Equal(t, "10.00", result.Applications[1].Amount.String())
}

func TestAllocatePaymentIsExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	charge := mustCharge(t, svc, 1, "100", "2026-01-01")
	payment, first, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("100"),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)
	require.Len(t, first.Applications, 1)

	// Re-running allocation must not duplicate applications.
	second, err := svc.AllocatePayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, second.Applications, 1)
	require.Equal(t, first.Applications[0].ID, second.Applications[0].ID)

	apps, err := repo.ListApplicationsByEntry(ctx, charge.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
}

func TestConservationInvariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	mustCharge(t, svc, 1, "120", "2026-01-01")
	mustCharge(t, svc, 1, "80", "2026-02-01")

	_, _, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("150"),
		PaidAt:     day("2026-02-05"),
	})
	require.NoError(t, err)

	sums, err := repo.ChargeApplicationSums(ctx)
	require.NoError(t, err)
	for _, sum := range sums {
		require.True(t, sum.Amount.Sub(sum.Remaining).Equal(sum.Applied),
			"charge %d: consumed %s, applied %s", sum.EntryID, sum.Amount.Sub(sum.Remaining), sum.Applied)
	}

	findings, err := svc.CheckConsistency(ctx)
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestOverpaymentBecomesCreditAndAutoApplies(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	mustCharge(t, svc, 1, "100", "2026-01-01")

	payment, result, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("130"),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)
	require.Equal(t, "30.00", result.Leftover.String())

	// Credit is auto-applied when the next charge is created.
	next, applied, err := svc.CreateCharge(ctx, EntryInput{
		CustomerID: customer(1),
		Category:   CategoryRental,
		Amount:     money.MustParse("50"),
		DueDate:    day("2026-02-01"),
	})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, "30.00", applied[0].Amount.String())
	require.Equal(t, "20.00", next.Remaining.String())

	p, err := repo.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.True(t, p.Remaining.IsZero())
}

func TestPaymentWithNoOpenChargesIsAllCredit(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, result, err := svc.RecordPayment(context.Background(), PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("75"),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)
	require.Empty(t, result.Applications)
	require.Equal(t, "75.00", result.Leftover.String())
}

func TestPaymentWithoutCustomerRecordsUnallocatedCredit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	mustCharge(t, svc, 1, "200", "2026-01-01")
	payment, result, err := svc.RecordPayment(ctx, PaymentInput{
		Type:   PaymentFinance,
		Amount: money.MustParse("120"),
		PaidAt: day("2026-01-05"),
	})
	require.NoError(t, err)
	require.Nil(t, payment.CustomerID)
	require.Empty(t, result.Applications)
	require.Equal(t, "120.00", result.Leftover.String())

	stored, err := repo.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Nil(t, stored.CustomerID)
	require.Equal(t, "120.00", stored.Remaining.String())
}

func TestZeroAmountPaymentAllocatesNothing(t *testing.T) {
	svc := NewService(newMemoryRepo())

	mustCharge(t, svc, 1, "100", "2026-01-01")
	_, result, err := svc.RecordPayment(context.Background(), PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.Zero(),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)
	require.Empty(t, result.Applications)
	require.True(t, result.Leftover.IsZero())
}

func TestNegativePaymentRejected(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, _, err := svc.RecordPayment(context.Background(), PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("-10"),
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDuplicatePaymentReferenceReturnsOriginal(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	mustCharge(t, svc, 1, "100", "2026-01-01")

	input := PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("100"),
		PaidAt:     day("2026-01-05"),
		Reference:  "bank-txn-889",
	}
	first, firstResult, err := svc.RecordPayment(ctx, input)
	require.NoError(t, err)

	second, secondResult, err := svc.RecordPayment(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, secondResult.Applications, len(firstResult.Applications))

	require.Len(t, repo.payments, 1)
	require.Len(t, repo.applications, 1)
}

func TestCustomerBalanceNetsCredit(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	mustCharge(t, svc, 1, "200", "2026-01-01")
	_, _, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("50"),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)

	balance, err := svc.CustomerBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "150.00", balance.String())
}

func TestStatementRunningBalance(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	mustCharge(t, svc, 1, "100", "2026-01-01")
	mustCharge(t, svc, 1, "50", "2026-02-01")
	_, _, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("100"),
		PaidAt:     day("2026-01-10"),
	})
	require.NoError(t, err)

	lines, err := svc.Statement(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, "100.00", lines[0].Balance.String())
	require.Equal(t, "0.00", lines[1].Balance.String())
	require.Equal(t, "50.00", lines[2].Balance.String())
}

func TestCheckConsistencyFlagsCorruptedCharge(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	charge := mustCharge(t, svc, 1, "100", "2026-01-01")

	// Simulate a corrupted row: remaining above the original amount.
	repo.mu.Lock()
	repo.entries[charge.ID].Remaining = money.MustParse("150")
	repo.mu.Unlock()

	findings, err := svc.CheckConsistency(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, "charge_remaining_exceeds_amount", findings[0].Kind)
	require.Equal(t, charge.ID, findings[0].EntryID)
}

func TestCheckConsistencyFlagsApplicationMismatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	charge := mustCharge(t, svc, 1, "100", "2026-01-01")
	_, _, err := svc.RecordPayment(ctx, PaymentInput{
		CustomerID: customer(1),
		Type:       PaymentRental,
		Amount:     money.MustParse("40"),
		PaidAt:     day("2026-01-05"),
	})
	require.NoError(t, err)

	// Simulate a lost application row.
	repo.mu.Lock()
	repo.applications = nil
	repo.mu.Unlock()

	findings, err := svc.CheckConsistency(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	kinds := map[string]bool{}
	for _, f := range findings {
		kinds[f.Kind] = true
		if f.EntryID == charge.ID {
			require.Equal(t, "charge_application_mismatch", f.Kind)
		}
	}
	require.True(t, kinds["charge_application_mismatch"])
	require.True(t, kinds["payment_application_mismatch"])
}

func TestRecordCostIdempotentBySourceRef(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	ref := "FINPAY:7:monthly:2026-01-01:300.00"
	vehicleID := int64(7)
	input := EntryInput{
		VehicleID: &vehicleID,
		Category:  CategoryFinance,
		Amount:    money.MustParse("300"),
		SourceRef: &ref,
	}
	first, err := svc.RecordCost(ctx, input)
	require.NoError(t, err)
	require.True(t, first.Remaining.IsZero())

	second, err := svc.RecordCost(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.entries, 1)
}
