package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/platform/db"
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

const entryColumns = `id, entry_type, customer_id, vehicle_id, rental_id, category, amount, remaining_amount, due_date, description, source_ref, created_at`
const paymentColumns = `id, customer_id, vehicle_id, rental_id, payment_type, amount, remaining_amount, paid_at, method, reference, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.Type, &e.CustomerID, &e.VehicleID, &e.RentalID, &e.Category, &e.Amount, &e.Remaining, &e.DueDate, &e.Description, &e.SourceRef, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.CustomerID, &p.VehicleID, &p.RentalID, &p.Type, &p.Amount, &p.Remaining, &p.PaidAt, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
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

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetEntry fetches a ledger entry by id.
func (r *Repository) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChargeNotFound
	}
	return e, err
}

// GetEntryBySourceRef fetches a ledger entry by its idempotency key.
func (r *Repository) GetEntryBySourceRef(ctx context.Context, sourceRef string) (*Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE source_ref=$1`, sourceRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChargeNotFound
	}
	return e, err
}

// GetPayment fetches a payment by id.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// GetPaymentByReference fetches a payment by its external reference.
func (r *Repository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference=$1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ListOpenCharges returns a customer's unpaid charges in FIFO order.
func (r *Repository) ListOpenCharges(ctx context.Context, customerID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE entry_type='CHARGE' AND customer_id=$1 AND remaining_amount > 0
ORDER BY due_date, id`, customerID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListAllOpenCharges returns every unpaid charge, for aging reports.
func (r *Repository) ListAllOpenCharges(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE entry_type='CHARGE' AND remaining_amount > 0
ORDER BY customer_id, due_date, id`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListCustomerEntries returns all ledger entries for a customer.
func (r *Repository) ListCustomerEntries(ctx context.Context, customerID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE customer_id=$1 ORDER BY due_date, id`, customerID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListCustomerPayments returns all payments for a customer.
func (r *Repository) ListCustomerPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE customer_id=$1 ORDER BY paid_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// ListApplicationsByPayment returns applications recorded for a payment.
func (r *Repository) ListApplicationsByPayment(ctx context.Context, paymentID int64) ([]Application, error) {
	return r.listApplications(ctx, `payment_id=$1`, paymentID)
}

// ListApplicationsByEntry returns applications recorded against a charge.
func (r *Repository) ListApplicationsByEntry(ctx context.Context, entryID int64) ([]Application, error) {
	return r.listApplications(ctx, `charge_entry_id=$1`, entryID)
}

func (r *Repository) listApplications(ctx context.Context, where string, arg any) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, payment_id, charge_entry_id, amount_applied, applied_at FROM payment_applications WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apps []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.EntryID, &a.Amount, &a.AppliedAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return apps, nil
}

// ChargeApplicationSums aggregates applied totals per charge.
func (r *Repository) ChargeApplicationSums(ctx context.Context) ([]ChargeSum, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.amount, e.remaining_amount, COALESCE(SUM(a.amount_applied), 0)
FROM ledger_entries e
LEFT JOIN payment_applications a ON a.charge_entry_id = e.id
WHERE e.entry_type='CHARGE'
GROUP BY e.id, e.amount, e.remaining_amount
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []ChargeSum
	for rows.Next() {
		var s ChargeSum
		if err := rows.Scan(&s.EntryID, &s.Amount, &s.Remaining, &s.Applied); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// PaymentApplicationSums aggregates applied totals per payment.
func (r *Repository) PaymentApplicationSums(ctx context.Context) ([]PaymentSum, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.amount, p.remaining_amount, COALESCE(SUM(a.amount_applied), 0)
FROM payments p
LEFT JOIN payment_applications a ON a.payment_id = p.id
GROUP BY p.id, p.amount, p.remaining_amount
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []PaymentSum
	for rows.Next() {
		var s PaymentSum
		if err := rows.Scan(&s.PaymentID, &s.Amount, &s.Remaining, &s.Applied); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertEntry(ctx context.Context, input EntryInput) (*Entry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `INSERT INTO ledger_entries
(entry_type, customer_id, vehicle_id, rental_id, category, amount, remaining_amount, due_date, description, source_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, NOW())
RETURNING `+entryColumns, input.Type, input.CustomerID, input.VehicleID, input.RentalID, input.Category, input.Amount, input.DueDate, input.Description, input.SourceRef))
	if err != nil && shared.IsUniqueViolation(err) {
		return nil, ErrDuplicateRef
	}
	return e, err
}

func (t *txRepo) InsertPayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	var ref *string
	if input.Reference != "" {
		ref = &input.Reference
	}
	p, err := scanPayment(t.tx.QueryRow(ctx, `INSERT INTO payments
(customer_id, vehicle_id, rental_id, payment_type, amount, remaining_amount, paid_at, method, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $5, $6, $7, COALESCE($8, ''), NOW())
RETURNING `+paymentColumns, input.CustomerID, input.VehicleID, input.RentalID, input.Type, input.Amount, input.PaidAt, input.Method, ref))
	if err != nil && shared.IsUniqueViolation(err) {
		return nil, ErrDuplicateRef
	}
	return p, err
}

func (t *txRepo) LockPayment(ctx context.Context, id int64) (*Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (t *txRepo) CountApplications(ctx context.Context, paymentID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payment_applications WHERE payment_id=$1`, paymentID).Scan(&count)
	return count, err
}

func (t *txRepo) ListOpenChargesForUpdate(ctx context.Context, customerID int64) ([]Entry, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE entry_type='CHARGE' AND customer_id=$1 AND remaining_amount > 0
ORDER BY due_date, id
FOR UPDATE`, customerID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (t *txRepo) ListOpenCreditsForUpdate(ctx context.Context, customerID int64) ([]Payment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE customer_id=$1 AND remaining_amount > 0
ORDER BY paid_at, id
FOR UPDATE`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (t *txRepo) InsertApplication(ctx context.Context, paymentID, entryID int64, amount money.Amount, at time.Time) (*Application, error) {
	var a Application
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_applications (payment_id, charge_entry_id, amount_applied, applied_at)
VALUES ($1, $2, $3, $4) RETURNING id, payment_id, charge_entry_id, amount_applied, applied_at`, paymentID, entryID, amount, at).
		Scan(&a.ID, &a.PaymentID, &a.EntryID, &a.Amount, &a.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *txRepo) SetEntryRemaining(ctx context.Context, id int64, remaining money.Amount) error {
	_, err := t.tx.Exec(ctx, `UPDATE ledger_entries SET remaining_amount=$1 WHERE id=$2`, remaining, id)
	return err
}

func (t *txRepo) SetPaymentRemaining(ctx context.Context, id int64, remaining money.Amount) error {
	_, err := t.tx.Exec(ctx, `UPDATE payments SET remaining_amount=$1 WHERE id=$2`, remaining, id)
	return err
}
