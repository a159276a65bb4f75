package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetline/fleetline/internal/money"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vehicleColumns = `id, registration, make, model, acquisition_type, purchase_price,
initial_payment, monthly_payment, term_months, balloon, acquired_at,
is_disposed, disposal_date, sale_proceeds, created_at`

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	if err := row.Scan(&v.ID, &v.Registration, &v.Make, &v.Model, &v.Acquisition, &v.PurchasePrice,
		&v.InitialPayment, &v.MonthlyPayment, &v.TermMonths, &v.Balloon, &v.AcquiredAt,
		&v.IsDisposed, &v.DisposalDate, &v.SaleProceeds, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) InsertVehicle(ctx context.Context, input VehicleInput) (*Vehicle, error) {
	return scanVehicle(r.pool.QueryRow(ctx, `INSERT INTO vehicles
(registration, make, model, acquisition_type, purchase_price, initial_payment,
 monthly_payment, term_months, balloon, acquired_at, is_disposed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
RETURNING `+vehicleColumns,
		input.Registration, input.Make, input.Model, input.Acquisition, input.PurchasePrice,
		input.InitialPayment, input.MonthlyPayment, input.TermMonths, input.Balloon, input.AcquiredAt))
}

func (r *Repository) GetVehicle(ctx context.Context, id int64) (*Vehicle, error) {
	v, err := scanVehicle(r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	return v, err
}

func (r *Repository) ListVehicles(ctx context.Context, includeDisposed bool) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles
WHERE ($1 OR NOT is_disposed) ORDER BY id`, includeDisposed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *Repository) MarkDisposed(ctx context.Context, id int64, date time.Time, proceeds money.Amount) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vehicles
SET is_disposed=TRUE, disposal_date=$2, sale_proceeds=$3 WHERE id=$1`, id, date, proceeds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

func (r *Repository) DeleteVehicle(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

const expenseColumns = `id, vehicle_id, category, amount, expense_date, description, created_at`

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	if err := row.Scan(&e.ID, &e.VehicleID, &e.Category, &e.Amount, &e.ExpenseDate, &e.Description, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) InsertExpense(ctx context.Context, input ExpenseInput) (*Expense, error) {
	return scanExpense(r.pool.QueryRow(ctx, `INSERT INTO expenses
(vehicle_id, category, amount, expense_date, description, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING `+expenseColumns,
		input.VehicleID, input.Category, input.Amount, input.ExpenseDate, input.Description))
}

func (r *Repository) GetExpense(ctx context.Context, id int64) (*Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	return e, err
}

func (r *Repository) ListExpenses(ctx context.Context, vehicleID int64) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE vehicle_id=$1 ORDER BY expense_date, id`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

const fineColumns = `id, vehicle_id, customer_id, rental_id, amount, issued_at, due_date, status, description, created_at`

func scanFine(row pgx.Row) (*Fine, error) {
	var f Fine
	if err := row.Scan(&f.ID, &f.VehicleID, &f.CustomerID, &f.RentalID, &f.Amount, &f.IssuedAt, &f.DueDate, &f.Status, &f.Description, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) InsertFine(ctx context.Context, input FineInput) (*Fine, error) {
	return scanFine(r.pool.QueryRow(ctx, `INSERT INTO fines
(vehicle_id, customer_id, rental_id, amount, issued_at, due_date, status, description, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
RETURNING `+fineColumns,
		input.VehicleID, input.CustomerID, input.RentalID, input.Amount, input.IssuedAt,
		input.DueDate, FinePending, input.Description))
}

func (r *Repository) GetFine(ctx context.Context, id int64) (*Fine, error) {
	f, err := scanFine(r.pool.QueryRow(ctx, `SELECT `+fineColumns+` FROM fines WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFineNotFound
	}
	return f, err
}

func (r *Repository) SetFineStatus(ctx context.Context, id int64, status FineStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE fines SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFineNotFound
	}
	return nil
}
