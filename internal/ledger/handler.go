package ledger

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
)

// Handler manages ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/charges", h.createCharge)
	r.Post("/payments", h.recordPayment)
	r.Post("/payments/{id}/allocate", h.allocatePayment)
	r.Get("/customers/{id}/charges/open", h.openCharges)
	r.Get("/customers/{id}/balance", h.customerBalance)
	r.Get("/customers/{id}/statement", h.customerStatement)
}

type createChargeRequest struct {
	CustomerID  int64        `json:"customer_id" validate:"required,gt=0"`
	VehicleID   *int64       `json:"vehicle_id,omitempty"`
	RentalID    *int64       `json:"rental_id,omitempty"`
	Category    string       `json:"category" validate:"required"`
	Amount      money.Amount `json:"amount"`
	DueDate     string       `json:"due_date" validate:"required"`
	Description string       `json:"description,omitempty"`
	SourceRef   string       `json:"source_ref,omitempty"`
}

type chargeResponse struct {
	Charge       *Entry        `json:"charge"`
	Applications []Application `json:"applications,omitempty"`
}

func (h *Handler) createCharge(w http.ResponseWriter, r *http.Request) {
	var req createChargeRequest
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

	input := EntryInput{
		CustomerID:  &req.CustomerID,
		VehicleID:   req.VehicleID,
		RentalID:    req.RentalID,
		Category:    Category(req.Category),
		Amount:      req.Amount,
		DueDate:     dueDate,
		Description: req.Description,
	}
	if req.SourceRef != "" {
		input.SourceRef = &req.SourceRef
	}

	charge, applications, err := h.service.CreateCharge(r.Context(), input)
	if err != nil {
		h.logger.Error("create charge", slog.Any("error", err), slog.Int64("customer_id", req.CustomerID))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, chargeResponse{Charge: charge, Applications: applications})
}

type recordPaymentRequest struct {
	CustomerID *int64       `json:"customer_id,omitempty"`
	VehicleID  *int64       `json:"vehicle_id,omitempty"`
	RentalID   *int64       `json:"rental_id,omitempty"`
	Type       string       `json:"payment_type" validate:"required"`
	Amount     money.Amount `json:"amount"`
	PaidAt     string       `json:"paid_at,omitempty"`
	Method     string       `json:"method,omitempty"`
	Reference  string       `json:"reference,omitempty"`
}

type paymentResponse struct {
	Payment      *Payment      `json:"payment"`
	Applications []Application `json:"applications,omitempty"`
	Applied      money.Amount  `json:"applied"`
	Credit       money.Amount  `json:"credit"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		parsed, err := time.Parse("2006-01-02", req.PaidAt)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid paid_at", httpx.ErrValidation))
			return
		}
		paidAt = parsed
	}

	payment, result, err := h.service.RecordPayment(r.Context(), PaymentInput{
		CustomerID: req.CustomerID,
		VehicleID:  req.VehicleID,
		RentalID:   req.RentalID,
		Type:       PaymentType(req.Type),
		Amount:     req.Amount,
		PaidAt:     paidAt,
		Method:     req.Method,
		Reference:  req.Reference,
	})
	if err != nil {
		h.logger.Error("record payment", slog.Any("error", err), slog.String("reference", req.Reference))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{
		Payment:      payment,
		Applications: result.Applications,
		Applied:      result.Applied,
		Credit:       result.Leftover,
	})
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid payment id", httpx.ErrValidation))
		return
	}
	result, err := h.service.AllocatePayment(r.Context(), id)
	if err != nil {
		h.logger.Error("allocate payment", slog.Any("error", err), slog.Int64("payment_id", id))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"applications": result.Applications,
		"applied":      result.Applied,
		"credit":       result.Leftover,
	})
}

func (h *Handler) openCharges(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", httpx.ErrValidation))
		return
	}
	charges, err := h.service.OpenCharges(r.Context(), id)
	if err != nil {
		h.logger.Error("open charges", slog.Any("error", err), slog.Int64("customer_id", id))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"charges": charges})
}

func (h *Handler) customerBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", httpx.ErrValidation))
		return
	}
	balance, err := h.service.CustomerBalance(r.Context(), id)
	if err != nil {
		h.logger.Error("customer balance", slog.Any("error", err), slog.Int64("customer_id", id))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) customerStatement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", httpx.ErrValidation))
		return
	}
	lines, err := h.service.Statement(r.Context(), id)
	if err != nil {
		h.logger.Error("customer statement", slog.Any("error", err), slog.Int64("customer_id", id))
		httpx.RespondError(w, mapServiceErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func mapServiceErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrCustomerMissing),
		errors.Is(err, ErrDueDateMissing),
		errors.Is(err, ErrUnknownCategory):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, ErrChargeNotFound), errors.Is(err, ErrPaymentNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err)
	default:
		return err
	}
}
