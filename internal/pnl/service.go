package pnl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetline/fleetline/internal/money"
)

// Service handles P&L business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validateInput(input EntryInput) error {
	if input.SourceRef == "" {
		return fmt.Errorf("%w: source ref required", ErrInvalidEntry)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidEntry, input.Amount)
	}
	if !ValidSide(input.Side) {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidEntry, input.Side)
	}
	if !ValidCategory(input.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, input.Category)
	}
	if input.EntryDate.IsZero() {
		return fmt.Errorf("%w: entry date required", ErrInvalidEntry)
	}
	return nil
}

// EnsurePosted posts at most one entry per source ref. A hit returns the
// existing entry unchanged; a miss invokes build and inserts. Losing an
// insert race to a concurrent caller is resolved by re-reading, so both
// callers observe the same row and neither sees an error.
func (s *Service) EnsurePosted(ctx context.Context, sourceRef string, build func() (EntryInput, error)) (*Entry, bool, error) {
	if sourceRef == "" {
		return nil, false, fmt.Errorf("%w: source ref required", ErrInvalidEntry)
	}

	existing, err := s.repo.GetBySourceRef(ctx, sourceRef)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, false, err
	}

	input, err := build()
	if err != nil {
		return nil, false, err
	}
	input.SourceRef = sourceRef
	if err := validateInput(input); err != nil {
		return nil, false, err
	}

	entry, err := s.repo.Insert(ctx, input)
	if err == nil {
		return entry, true, nil
	}
	if errors.Is(err, ErrDuplicateSourceRef) {
		winner, readErr := s.repo.GetBySourceRef(ctx, sourceRef)
		if readErr != nil {
			return nil, false, readErr
		}
		return winner, false, nil
	}
	return nil, false, err
}

// HasUpfrontEntry reports whether the vehicle's finance contract was
// recognised upfront. The single lookup every finance-payment rule
// consults; once true it stays true until the vehicle is deleted.
func (s *Service) HasUpfrontEntry(ctx context.Context, vehicleID int64) (bool, error) {
	_, err := s.repo.GetBySourceRef(ctx, UpfrontSourceRef(vehicleID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// EntryBySourceRef looks up an entry by its idempotency key.
func (s *Service) EntryBySourceRef(ctx context.Context, sourceRef string) (*Entry, error) {
	if sourceRef == "" {
		return nil, fmt.Errorf("%w: source ref required", ErrInvalidEntry)
	}
	return s.repo.GetBySourceRef(ctx, sourceRef)
}

// EntriesForVehicle lists a vehicle's entries within an optional window.
func (s *Service) EntriesForVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Entry, error) {
	if vehicleID == 0 {
		return nil, fmt.Errorf("%w: vehicle ID required", ErrInvalidEntry)
	}
	return s.repo.ListByVehicle(ctx, vehicleID, from, to)
}

// EntriesInRange lists all entries within a date window.
func (s *Service) EntriesInRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return s.repo.ListByDateRange(ctx, from, to)
}

// Summarise totals entries by side.
func Summarise(entries []Entry) Summary {
	var sum Summary
	for _, e := range entries {
		switch e.Side {
		case SideRevenue:
			sum.Revenue = sum.Revenue.Add(e.Amount)
		case SideCost:
			sum.Cost = sum.Cost.Add(e.Amount)
		}
	}
	sum.Net = sum.Revenue.Sub(sum.Cost)
	return sum
}

// TotalFor sums entries matching a side and category.
func TotalFor(entries []Entry, side Side, category Category) money.Amount {
	total := money.Zero()
	for _, e := range entries {
		if e.Side == side && e.Category == category {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// RemoveVehicleEntries deletes all entries for a vehicle. Part of the
// vehicle-deletion compensating reversal; not exposed to event posting.
func (s *Service) RemoveVehicleEntries(ctx context.Context, vehicleID int64) (int64, error) {
	if vehicleID == 0 {
		return 0, fmt.Errorf("%w: vehicle ID required", ErrInvalidEntry)
	}
	return s.repo.DeleteByVehicle(ctx, vehicleID)
}

// RemoveBySourceRef deletes the entry posted under the given key, used
// when the originating record (e.g. an expense) is deleted.
func (s *Service) RemoveBySourceRef(ctx context.Context, sourceRef string) error {
	if sourceRef == "" {
		return fmt.Errorf("%w: source ref required", ErrInvalidEntry)
	}
	return s.repo.DeleteBySourceRef(ctx, sourceRef)
}
