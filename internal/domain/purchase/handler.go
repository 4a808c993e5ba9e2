package purchase

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
	PackageID  int64 `json:"package_id" validate:"required,gt=0"`
}

// Purchase handles POST /purchases.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	t, err := h.service.Purchase(r.Context(), req.TelegramID, req.PackageID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, t)
}

// Reserve handles POST /reservations.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	outcome, err := h.service.Reserve(r.Context(), req.TelegramID, req.PackageID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, outcome)
}

// Active handles GET /reservations/{telegramID}.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	res, err := h.service.ActiveReservation(r.Context(), telegramID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, res)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientBalanceError
	if errors.As(err, &insufficient) {
		response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_BALANCE", "insufficient USD balance", map[string]string{
			"required_usd":  insufficient.Required.StringFixed(2),
			"balance_usd":   insufficient.Balance.StringFixed(2),
			"shortfall_usd": insufficient.Shortfall().StringFixed(2),
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, ledger.ErrUserBanned):
		response.Forbidden(w, "account is banned")
	case errors.Is(err, catalog.ErrPackageNotFound):
		response.NotFound(w, "package not found")
	case errors.Is(err, catalog.ErrPackageInactive):
		response.Conflict(w, "package is no longer offered")
	case errors.Is(err, ErrNoActiveReservation):
		response.NotFound(w, "no active reservation")
	default:
		response.InternalError(w)
	}
}

// Routes returns the purchase router mounted behind gateway auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Purchase)
	return r
}

// ReservationRoutes returns the reservation router mounted behind gateway
// auth.
func (h *Handler) ReservationRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Reserve)
	r.Get("/{telegramID}", h.Active)
	return r
}
