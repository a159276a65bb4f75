package pnl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/money"
)

// memoryRepo enforces source_ref uniqueness under a mutex, mirroring the
// database unique index, so concurrency tests exercise the real guard
// semantics.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	byRef   map[string]int64
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[int64]*Entry), byRef: make(map[string]int64)}
}

func (r *memoryRepo) Insert(ctx context.Context, input EntryInput) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byRef[input.SourceRef]; taken {
		return nil, ErrDuplicateSourceRef
	}
	r.nextID++
	e := &Entry{
		ID:        r.nextID,
		VehicleID: input.VehicleID,
		EntryDate: input.EntryDate,
		Side:      input.Side,
		Category:  input.Category,
		Amount:    input.Amount,
		Reference: input.Reference,
		SourceRef: input.SourceRef,
		CreatedAt: time.Now(),
	}
	r.entries[e.ID] = e
	r.byRef[e.SourceRef] = e.ID
	copied := *e
	return &copied, nil
}

func (r *memoryRepo) GetBySourceRef(ctx context.Context, sourceRef string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[sourceRef]
	if !ok {
		return nil, ErrEntryNotFound
	}
	copied := *r.entries[id]
	return &copied, nil
}

func (r *memoryRepo) ListByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.VehicleID == nil || *e.VehicleID != vehicleID {
			continue
		}
		if !from.IsZero() && e.EntryDate.Before(from) {
			continue
		}
		if !to.IsZero() && e.EntryDate.After(to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if !from.IsZero() && e.EntryDate.Before(from) {
			continue
		}
		if !to.IsZero() && e.EntryDate.After(to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryRepo) DeleteByVehicle(ctx context.Context, vehicleID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, e := range r.entries {
		if e.VehicleID != nil && *e.VehicleID == vehicleID {
			delete(r.byRef, e.SourceRef)
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *memoryRepo) DeleteBySourceRef(ctx context.Context, sourceRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[sourceRef]
	if !ok {
		return nil
	}
	delete(r.byRef, sourceRef)
	delete(r.entries, id)
	return nil
}

func vehicle(id int64) *int64 {
	return &id
}

func costInput(vehicleID int64, category Category, amount string) EntryInput {
	return EntryInput{
		VehicleID: vehicle(vehicleID),
		EntryDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Side:      SideCost,
		Category:  category,
		Amount:    money.MustParse(amount),
		Reference: "test",
	}
}

func TestEnsurePostedCreatesOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	entry, created, err := svc.EnsurePosted(ctx, "vexp:42", func() (EntryInput, error) {
		return costInput(7, CategoryService, "300"), nil
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "vexp:42", entry.SourceRef)

	builds := 0
	again, created, err := svc.EnsurePosted(ctx, "vexp:42", func() (EntryInput, error) {
		builds++
		return costInput(7, CategoryService, "300"), nil
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, entry.ID, again.ID)
	require.Zero(t, builds, "builder must not run when the entry exists")
	require.Len(t, repo.entries, 1)
}

func TestEnsurePostedValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, _, err := svc.EnsurePosted(ctx, "", func() (EntryInput, error) {
		return costInput(7, CategoryService, "300"), nil
	})
	require.ErrorIs(t, err, ErrInvalidEntry)

	_, _, err = svc.EnsurePosted(ctx, "vexp:1", func() (EntryInput, error) {
		return costInput(7, CategoryService, "0"), nil
	})
	require.ErrorIs(t, err, ErrInvalidEntry)

	_, _, err = svc.EnsurePosted(ctx, "vexp:2", func() (EntryInput, error) {
		input := costInput(7, CategoryService, "300")
		input.Side = Side("SIDEWAYS")
		return input, nil
	})
	require.ErrorIs(t, err, ErrInvalidEntry)
}

func TestEnsurePostedConcurrentCallersShareOneRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	const callers = 16
	results := make([]*Entry, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			results[i], _, errs[i] = svc.EnsurePosted(ctx, "dispose:9", func() (EntryInput, error) {
				input := costInput(9, CategoryDisposal, "3000")
				return input, nil
			})
		}(i)
	}
	start.Done()
	wg.Wait()

	require.Len(t, repo.entries, 1)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		require.Equal(t, results[0].ID, results[i].ID)
	}
}

func TestHasUpfrontEntry(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	has, err := svc.HasUpfrontEntry(ctx, 5)
	require.NoError(t, err)
	require.False(t, has)

	_, _, err = svc.EnsurePosted(ctx, UpfrontSourceRef(5), func() (EntryInput, error) {
		return costInput(5, CategoryAcquisition, "16800"), nil
	})
	require.NoError(t, err)

	has, err = svc.HasUpfrontEntry(ctx, 5)
	require.NoError(t, err)
	require.True(t, has)
}

func TestSummariseAndTotalFor(t *testing.T) {
	entries := []Entry{
		{Side: SideRevenue, Category: CategoryRental, Amount: money.MustParse("500")},
		{Side: SideRevenue, Category: CategoryDisposal, Amount: money.MustParse("2000")},
		{Side: SideCost, Category: CategoryService, Amount: money.MustParse("300")},
		{Side: SideCost, Category: CategoryExpenses, Amount: money.MustParse("750")},
	}
	sum := Summarise(entries)
	require.Equal(t, "2500.00", sum.Revenue.String())
	require.Equal(t, "1050.00", sum.Cost.String())
	require.Equal(t, "1450.00", sum.Net.String())

	require.Equal(t, "300.00", TotalFor(entries, SideCost, CategoryService).String())
	require.Equal(t, "0.00", TotalFor(entries, SideCost, CategoryFinance).String())
}

func TestRemoveVehicleEntriesCascades(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, _, err := svc.EnsurePosted(ctx, UpfrontSourceRef(3), func() (EntryInput, error) {
		return costInput(3, CategoryAcquisition, "12000"), nil
	})
	require.NoError(t, err)
	_, _, err = svc.EnsurePosted(ctx, "vexp:77", func() (EntryInput, error) {
		return costInput(3, CategoryService, "250"), nil
	})
	require.NoError(t, err)

	removed, err := svc.RemoveVehicleEntries(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	// Guard state resets with the cascade: the vehicle could be
	// re-created and recognised upfront again.
	has, err := svc.HasUpfrontEntry(ctx, 3)
	require.NoError(t, err)
	require.False(t, has)
}

func TestSourceRefFormats(t *testing.T) {
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "vexp:42", ExpenseSourceRef(42))
	require.Equal(t, "fine-charge:9", FineChargeSourceRef(9))
	require.Equal(t, "fine-waive:9", FineWaiveSourceRef(9))
	require.Equal(t, "dispose:3", DisposalSourceRef(3))
	require.Equal(t, "FIN-UPFRONT:3", UpfrontSourceRef(3))
	require.Equal(t, "FINPAY:3:monthly:2026-02-01:300.00",
		FinancePaymentSourceRef(3, "monthly", date, money.MustParse("300")))
}
