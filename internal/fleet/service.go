package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
	"github.com/fleetline/fleetline/internal/posting"
)

// Poster is the slice of the posting engine the fleet service drives.
type Poster interface {
	Post(ctx context.Context, event posting.Event) (posting.Result, error)
	Dispose(ctx context.Context, in posting.DisposalInput) (posting.DisposalResult, error)
}

// EntryRemover handles the compensating P&L reversals on deletion.
type EntryRemover interface {
	RemoveVehicleEntries(ctx context.Context, vehicleID int64) (int64, error)
	RemoveBySourceRef(ctx context.Context, sourceRef string) error
}

// Service implements fleet workflows.
type Service struct {
	repo    RepositoryPort
	poster  Poster
	remover EntryRemover
	log     *slog.Logger
}

// NewService constructs the service.
func NewService(repo RepositoryPort, poster Poster, remover EntryRemover, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, poster: poster, remover: remover, log: log}
}

// FinancialsLookup adapts the repository into the posting engine's
// book-cost resolver.
func FinancialsLookup(repo RepositoryPort) posting.FinancialsLookup {
	return func(ctx context.Context, vehicleID int64) (posting.VehicleFinancials, error) {
		v, err := repo.GetVehicle(ctx, vehicleID)
		if err != nil {
			return posting.VehicleFinancials{}, err
		}
		return v.Financials(), nil
	}
}

func validateVehicleInput(input VehicleInput) error {
	if input.Registration == "" {
		return fmt.Errorf("%w: registration required", ErrInvalidVehicle)
	}
	if input.AcquiredAt.IsZero() {
		return fmt.Errorf("%w: acquisition date required", ErrInvalidVehicle)
	}
	switch input.Acquisition {
	case AcquisitionPurchase:
		if input.PurchasePrice.IsNegative() {
			return fmt.Errorf("%w: purchase price must not be negative", ErrInvalidVehicle)
		}
	case AcquisitionFinance:
		if input.TermMonths <= 0 {
			return fmt.Errorf("%w: finance term required", ErrInvalidVehicle)
		}
		if input.MonthlyPayment.IsNegative() || input.InitialPayment.IsNegative() || input.Balloon.IsNegative() {
			return fmt.Errorf("%w: finance amounts must not be negative", ErrInvalidVehicle)
		}
	default:
		return fmt.Errorf("%w: unknown acquisition type %q", ErrInvalidVehicle, input.Acquisition)
	}
	return nil
}

// CreateVehicle registers a vehicle. Financed vehicles have their full
// contract cost recognised upfront through the posting engine.
func (s *Service) CreateVehicle(ctx context.Context, input VehicleInput) (*Vehicle, error) {
	if err := validateVehicleInput(input); err != nil {
		return nil, err
	}
	v, err := s.repo.InsertVehicle(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("fleet: insert vehicle: %w", err)
	}
	if v.Acquisition == AcquisitionFinance {
		_, err := s.poster.Post(ctx, posting.FinanceVehicleCreated{
			VehicleID:     v.ID,
			ContractTotal: v.ContractTotal(),
			Date:          v.AcquiredAt,
			Registration:  v.Registration,
		})
		if err != nil {
			return nil, fmt.Errorf("fleet: upfront posting for vehicle %d: %w", v.ID, err)
		}
	}
	return v, nil
}

// Vehicle fetches one vehicle.
func (s *Service) Vehicle(ctx context.Context, id int64) (*Vehicle, error) {
	return s.repo.GetVehicle(ctx, id)
}

// Vehicles lists the fleet.
func (s *Service) Vehicles(ctx context.Context, includeDisposed bool) ([]Vehicle, error) {
	return s.repo.ListVehicles(ctx, includeDisposed)
}

// RecordExpense stores the expense and posts its cost entry.
func (s *Service) RecordExpense(ctx context.Context, input ExpenseInput) (*Expense, error) {
	if input.VehicleID == 0 {
		return nil, fmt.Errorf("%w: vehicle ID required", ErrInvalidExpense)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidExpense)
	}
	if input.Category == "" {
		return nil, fmt.Errorf("%w: category required", ErrInvalidExpense)
	}
	if input.ExpenseDate.IsZero() {
		return nil, fmt.Errorf("%w: expense date required", ErrInvalidExpense)
	}
	if _, err := s.repo.GetVehicle(ctx, input.VehicleID); err != nil {
		return nil, err
	}

	expense, err := s.repo.InsertExpense(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("fleet: insert expense: %w", err)
	}
	_, err = s.poster.Post(ctx, posting.ExpenseRecorded{
		ExpenseID:   expense.ID,
		VehicleID:   expense.VehicleID,
		Category:    expense.Category,
		Amount:      expense.Amount,
		Date:        expense.ExpenseDate,
		Description: expense.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("fleet: post expense %d: %w", expense.ID, err)
	}
	return expense, nil
}

// Expenses lists a vehicle's expenses.
func (s *Service) Expenses(ctx context.Context, vehicleID int64) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, vehicleID)
}

// DeleteExpense removes the expense and reverses its P&L entry.
func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if _, err := s.repo.GetExpense(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	if err := s.remover.RemoveBySourceRef(ctx, pnl.ExpenseSourceRef(id)); err != nil {
		return fmt.Errorf("fleet: reverse expense %d: %w", id, err)
	}
	return nil
}

// RecordFinancePayment posts an installment on a finance contract.
func (s *Service) RecordFinancePayment(ctx context.Context, vehicleID int64, component string, amount money.Amount, date time.Time) (posting.Result, error) {
	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return posting.Result{}, err
	}
	if v.Acquisition != AcquisitionFinance {
		return posting.Result{}, fmt.Errorf("%w: vehicle %d is not financed", ErrInvalidVehicle, vehicleID)
	}
	return s.poster.Post(ctx, posting.FinancePaymentReceived{
		VehicleID: vehicleID,
		Component: component,
		Amount:    amount,
		Date:      date,
	})
}

// RegisterFine stores a fine in pending state.
func (s *Service) RegisterFine(ctx context.Context, input FineInput) (*Fine, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidFine)
	}
	if input.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: due date required", ErrInvalidFine)
	}
	return s.repo.InsertFine(ctx, input)
}

// Fine fetches one fine.
func (s *Service) Fine(ctx context.Context, id int64) (*Fine, error) {
	return s.repo.GetFine(ctx, id)
}

// ChargeFine passes a fine on to the customer as a ledger charge.
// Charging an already-charged fine is a no-op; a waived fine is final.
func (s *Service) ChargeFine(ctx context.Context, id int64) (*Fine, error) {
	fine, err := s.repo.GetFine(ctx, id)
	if err != nil {
		return nil, err
	}
	if fine.Status == FineWaived {
		return nil, fmt.Errorf("%w: fine %d was waived", ErrFineResolved, id)
	}
	if fine.CustomerID == nil {
		return nil, fmt.Errorf("%w: fine %d", ErrCustomerRequired, id)
	}

	_, err = s.poster.Post(ctx, posting.FineCharged{
		FineID:      fine.ID,
		CustomerID:  *fine.CustomerID,
		VehicleID:   fine.VehicleID,
		RentalID:    fine.RentalID,
		Amount:      fine.Amount,
		DueDate:     fine.DueDate,
		Description: fine.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("fleet: charge fine %d: %w", id, err)
	}
	if fine.Status != FineCharged {
		if err := s.repo.SetFineStatus(ctx, id, FineCharged); err != nil {
			return nil, err
		}
		fine.Status = FineCharged
	}
	return fine, nil
}

// WaiveFine absorbs a fine as a business cost instead of charging it on.
func (s *Service) WaiveFine(ctx context.Context, id int64) (*Fine, error) {
	fine, err := s.repo.GetFine(ctx, id)
	if err != nil {
		return nil, err
	}
	if fine.Status == FineCharged {
		return nil, fmt.Errorf("%w: fine %d was charged to the customer", ErrFineResolved, id)
	}

	_, err = s.poster.Post(ctx, posting.FineWaived{
		FineID:    fine.ID,
		VehicleID: fine.VehicleID,
		Amount:    fine.Amount,
		Date:      time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("fleet: waive fine %d: %w", id, err)
	}
	if fine.Status != FineWaived {
		if err := s.repo.SetFineStatus(ctx, id, FineWaived); err != nil {
			return nil, err
		}
		fine.Status = FineWaived
	}
	return fine, nil
}

// DisposalInput is the disposal request.
type DisposalInput struct {
	VehicleID    int64
	DisposalDate time.Time
	SaleProceeds money.Amount
	Buyer        string
}

// Dispose sells a vehicle out of the fleet: the gain or loss is posted
// first, then the vehicle is marked disposed. Retrying after a failure
// converges because the posting side is idempotent.
func (s *Service) Dispose(ctx context.Context, in DisposalInput) (posting.DisposalResult, error) {
	v, err := s.repo.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return posting.DisposalResult{}, err
	}

	result, err := s.poster.Dispose(ctx, posting.DisposalInput{
		VehicleID:    in.VehicleID,
		DisposalDate: in.DisposalDate,
		SaleProceeds: in.SaleProceeds,
		Buyer:        in.Buyer,
	})
	if err != nil {
		return posting.DisposalResult{}, err
	}

	if !v.IsDisposed {
		if err := s.repo.MarkDisposed(ctx, in.VehicleID, in.DisposalDate, in.SaleProceeds); err != nil {
			return posting.DisposalResult{}, fmt.Errorf("fleet: mark vehicle %d disposed: %w", in.VehicleID, err)
		}
	}
	return result, nil
}

// DeleteVehicle removes the vehicle and cascades removal of its P&L
// entries. Deletion is the compensating reversal for everything posted
// against the vehicle, the upfront recognition included.
func (s *Service) DeleteVehicle(ctx context.Context, id int64) error {
	if _, err := s.repo.GetVehicle(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteVehicle(ctx, id); err != nil {
		return err
	}
	removed, err := s.remover.RemoveVehicleEntries(ctx, id)
	if err != nil {
		return fmt.Errorf("fleet: reverse vehicle %d entries: %w", id, err)
	}
	s.log.Info("vehicle deleted", "vehicle_id", id, "pnl_entries_removed", removed)
	return nil
}
