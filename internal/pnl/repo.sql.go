package pnl

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, vehicle_id, entry_date, side, category, amount, reference, source_ref, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.VehicleID, &e.EntryDate, &e.Side, &e.Category, &e.Amount, &e.Reference, &e.SourceRef, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert creates a P&L entry. The unique index on source_ref makes the
// insert the atomic compare-and-insert the idempotency guard relies on.
func (r *Repository) Insert(ctx context.Context, input EntryInput) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `INSERT INTO pnl_entries
(vehicle_id, entry_date, side, category, amount, reference, source_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING `+entryColumns,
		input.VehicleID, input.EntryDate, input.Side, input.Category, input.Amount, input.Reference, input.SourceRef))
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return nil, ErrDuplicateSourceRef
		}
		return nil, err
	}
	return e, nil
}

// GetBySourceRef fetches the entry posted under the given idempotency key.
func (r *Repository) GetBySourceRef(ctx context.Context, sourceRef string) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM pnl_entries WHERE source_ref=$1`, sourceRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// ListByVehicle returns entries for a vehicle, optionally date-bounded.
func (r *Repository) ListByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM pnl_entries
WHERE vehicle_id=$1
  AND ($2::date IS NULL OR entry_date >= $2)
  AND ($3::date IS NULL OR entry_date <= $3)
ORDER BY entry_date, id`, vehicleID, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByDateRange returns all entries in a date window.
func (r *Repository) ListByDateRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM pnl_entries
WHERE ($1::date IS NULL OR entry_date >= $1)
  AND ($2::date IS NULL OR entry_date <= $2)
ORDER BY entry_date, id`, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// DeleteByVehicle removes all entries for a vehicle as part of a
// compensating reversal.
func (r *Repository) DeleteByVehicle(ctx context.Context, vehicleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pnl_entries WHERE vehicle_id=$1`, vehicleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteBySourceRef removes the entry posted under the given key.
func (r *Repository) DeleteBySourceRef(ctx context.Context, sourceRef string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pnl_entries WHERE source_ref=$1`, sourceRef)
	return err
}

func collect(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
