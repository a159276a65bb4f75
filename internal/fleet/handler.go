package fleet

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/platform/httpx"
	"github.com/fleetline/fleetline/internal/shared"
)

// Handler manages fleet endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fleet routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/vehicles", h.createVehicle)
	r.Get("/vehicles", h.listVehicles)
	r.Get("/vehicles/{id}", h.getVehicle)
	r.Delete("/vehicles/{id}", h.deleteVehicle)
	r.Post("/vehicles/{id}/expenses", h.recordExpense)
	r.Get("/vehicles/{id}/expenses", h.listExpenses)
	r.Post("/vehicles/{id}/finance-payments", h.recordFinancePayment)
	r.Post("/vehicles/{id}/dispose", h.dispose)
	r.Delete("/expenses/{id}", h.deleteExpense)
	r.Post("/fines", h.registerFine)
	r.Post("/fines/{id}/charge", h.chargeFine)
	r.Post("/fines/{id}/waive", h.waiveFine)
}

type createVehicleRequest struct {
	Registration   string       `json:"registration" validate:"required"`
	Make           string       `json:"make,omitempty"`
	Model          string       `json:"model,omitempty"`
	Acquisition    string       `json:"acquisition_type" validate:"required,oneof=PURCHASE FINANCE"`
	PurchasePrice  money.Amount `json:"purchase_price"`
	InitialPayment money.Amount `json:"initial_payment"`
	MonthlyPayment money.Amount `json:"monthly_payment"`
	TermMonths     int          `json:"term_months"`
	Balloon        money.Amount `json:"balloon"`
	AcquiredAt     string       `json:"acquired_at" validate:"required"`
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req createVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	acquiredAt, err := time.Parse("2006-01-02", req.AcquiredAt)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid acquired_at", httpx.ErrValidation))
		return
	}

	vehicle, err := h.service.CreateVehicle(r.Context(), VehicleInput{
		Registration:   req.Registration,
		Make:           req.Make,
		Model:          req.Model,
		Acquisition:    AcquisitionType(req.Acquisition),
		PurchasePrice:  req.PurchasePrice,
		InitialPayment: req.InitialPayment,
		MonthlyPayment: req.MonthlyPayment,
		TermMonths:     req.TermMonths,
		Balloon:        req.Balloon,
		AcquiredAt:     acquiredAt,
	})
	if err != nil {
		h.logger.Error("create vehicle", slog.Any("error", err), slog.String("registration", req.Registration))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"vehicle": vehicle})
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	includeDisposed := r.URL.Query().Get("include_disposed") == "true"
	vehicles, err := h.service.Vehicles(r.Context(), includeDisposed)
	if err != nil {
		h.logger.Error("list vehicles", slog.Any("error", err))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (h *Handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	vehicle, err := h.service.Vehicle(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicle": vehicle})
}

func (h *Handler) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteVehicle(r.Context(), id); err != nil {
		h.logger.Error("delete vehicle", slog.Any("error", err), slog.Int64("vehicle_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordExpenseRequest struct {
	Category    string       `json:"category" validate:"required"`
	Amount      money.Amount `json:"amount"`
	ExpenseDate string       `json:"expense_date" validate:"required"`
	Description string       `json:"description,omitempty"`
}

func (h *Handler) recordExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req recordExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	expenseDate, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid expense_date", httpx.ErrValidation))
		return
	}

	expense, err := h.service.RecordExpense(r.Context(), ExpenseInput{
		VehicleID:   id,
		Category:    req.Category,
		Amount:      req.Amount,
		ExpenseDate: expenseDate,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("record expense", slog.Any("error", err), slog.Int64("vehicle_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expenses, err := h.service.Expenses(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteExpense(r.Context(), id); err != nil {
		h.logger.Error("delete expense", slog.Any("error", err), slog.Int64("expense_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type financePaymentRequest struct {
	Component string       `json:"component" validate:"required,oneof=deposit monthly balloon fee"`
	Amount    money.Amount `json:"amount"`
	Date      string       `json:"date" validate:"required"`
}

func (h *Handler) recordFinancePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req financePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid date", httpx.ErrValidation))
		return
	}

	result, err := h.service.RecordFinancePayment(r.Context(), id, req.Component, req.Amount, date)
	if err != nil {
		h.logger.Error("finance payment", slog.Any("error", err), slog.Int64("vehicle_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"duplicate":      result.Duplicate,
		"ledger_entries": result.LedgerEntries,
		"pnl_entries":    result.PnLEntries,
	})
}

type disposeRequest struct {
	DisposalDate string       `json:"disposal_date" validate:"required"`
	SaleProceeds money.Amount `json:"sale_proceeds"`
	Buyer        string       `json:"buyer,omitempty"`
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req disposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	disposalDate, err := time.Parse("2006-01-02", req.DisposalDate)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid disposal_date", httpx.ErrValidation))
		return
	}

	result, err := h.service.Dispose(r.Context(), DisposalInput{
		VehicleID:    id,
		DisposalDate: disposalDate,
		SaleProceeds: req.SaleProceeds,
		Buyer:        req.Buyer,
	})
	if err != nil {
		h.logger.Error("dispose vehicle", slog.Any("error", err), slog.Int64("vehicle_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"gain_or_loss": result.GainOrLoss,
		"pnl_entry_id": result.PnLEntryID,
	})
}

type registerFineRequest struct {
	VehicleID   *int64       `json:"vehicle_id,omitempty"`
	CustomerID  *int64       `json:"customer_id,omitempty"`
	RentalID    *int64       `json:"rental_id,omitempty"`
	Amount      money.Amount `json:"amount"`
	IssuedAt    string       `json:"issued_at,omitempty"`
	DueDate     string       `json:"due_date" validate:"required"`
	Description string       `json:"description,omitempty"`
}

func (h *Handler) registerFine(w http.ResponseWriter, r *http.Request) {
	var req registerFineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid due_date", httpx.ErrValidation))
		return
	}
	issuedAt := dueDate
	if req.IssuedAt != "" {
		issuedAt, err = time.Parse("2006-01-02", req.IssuedAt)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid issued_at", httpx.ErrValidation))
			return
		}
	}

	fine, err := h.service.RegisterFine(r.Context(), FineInput{
		VehicleID:   req.VehicleID,
		CustomerID:  req.CustomerID,
		RentalID:    req.RentalID,
		Amount:      req.Amount,
		IssuedAt:    issuedAt,
		DueDate:     dueDate,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("register fine", slog.Any("error", err))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"fine": fine})
}

func (h *Handler) chargeFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fine, err := h.service.ChargeFine(r.Context(), id)
	if err != nil {
		h.logger.Error("charge fine", slog.Any("error", err), slog.Int64("fine_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fine": fine})
}

func (h *Handler) waiveFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fine, err := h.service.WaiveFine(r.Context(), id)
	if err != nil {
		h.logger.Error("waive fine", slog.Any("error", err), slog.Int64("fine_id", id))
		httpx.RespondError(w, mapFleetErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fine": fine})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid id", httpx.ErrValidation))
		return 0, false
	}
	return id, true
}

func mapFleetErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidVehicle),
		errors.Is(err, ErrInvalidExpense),
		errors.Is(err, ErrInvalidFine),
		errors.Is(err, ErrCustomerRequired),
		errors.Is(err, shared.ErrValidation):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, ErrVehicleNotFound),
		errors.Is(err, ErrExpenseNotFound),
		errors.Is(err, ErrFineNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err)
	case errors.Is(err, ErrFineResolved):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	default:
		return err
	}
}
