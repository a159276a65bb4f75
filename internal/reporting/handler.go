package reporting

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetline/fleetline/internal/platform/httpx"
)

// Handler serves report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/aging", h.aging)
	r.Get("/reports/pnl", h.profitAndLoss)
	r.Get("/reports/dashboard", h.dashboard)
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return parsed, nil
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	var vehicleID int64
	if raw := r.URL.Query().Get("vehicle_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid vehicle_id", httpx.ErrValidation))
			return
		}
		vehicleID = parsed
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	report, err := h.service.ProfitAndLoss(r.Context(), vehicleID, from, to)
	if err != nil {
		h.logger.Error("pnl report", slog.Any("error", err), slog.Int64("vehicle_id", vehicleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	dash, err := h.service.Dashboard(r.Context(), asOf, from, to)
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}
