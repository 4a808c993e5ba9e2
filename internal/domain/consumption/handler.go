package consumption

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/pidkey"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestPayload struct {
	TelegramID     int64  `json:"telegram_id" validate:"required,gt=0"`
	InstallationID string `json:"installation_id" validate:"required"`
}

// Request handles POST /cid-requests.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestPayload
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.service.Request(r.Context(), req.TelegramID, req.InstallationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, result)
}

// History handles GET /cid-requests/{telegramID}.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	p := ledger.Pagination{Limit: 20}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			p.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}

	requests, err := h.service.History(r.Context(), telegramID, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.WithMeta(w, requests, response.Meta{Limit: p.Limit, Offset: p.Offset, Count: len(requests)})
}

// Stats handles GET /cid-requests/{telegramID}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	stats, err := h.service.Stats(r.Context(), telegramID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, stats)
}

// Get handles GET /cid-requests/{requestID} on the admin router. Settlement
// failures log the request id, and this is how an operator pulls the stored
// confirmation id back out.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		response.BadRequest(w, "invalid request id")
		return
	}

	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, req)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, ledger.ErrUserBanned):
		response.Forbidden(w, "account is banned")
	case errors.Is(err, ledger.ErrInsufficientCID):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_CID", "no CID balance, purchase a package first")
	case errors.Is(err, ErrInvalidInstallationID):
		response.Error(w, http.StatusBadRequest, "INVALID_INSTALLATION_ID", err.Error())
	case errors.Is(err, pidkey.ErrInvalidInstallationID):
		response.Error(w, http.StatusBadRequest, "INVALID_INSTALLATION_ID", "installation id rejected by the key service")
	case errors.Is(err, pidkey.ErrExecutionFailed):
		response.Error(w, http.StatusConflict, "KEY_ISSUANCE_REJECTED", "installation id was rejected or already used")
	case errors.Is(err, ErrRequestInFlight):
		response.Error(w, http.StatusTooManyRequests, "REQUEST_IN_FLIGHT", err.Error())
	case errors.Is(err, pidkey.ErrRateLimited):
		response.TooManyRequests(w)
	case errors.Is(err, pidkey.ErrUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "KEY_SERVICE_UNAVAILABLE", "key issuance service is unavailable, try again")
	case errors.Is(err, pidkey.ErrUnauthorized), errors.Is(err, pidkey.ErrUnexpectedResponse):
		response.BadGateway(w, "key issuance service error")
	case errors.Is(err, ErrRequestNotFound):
		response.NotFound(w, "cid request not found")
	default:
		response.InternalError(w)
	}
}

// Routes returns the CID request router mounted behind gateway auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Request)
	r.Get("/{telegramID}", h.History)
	r.Get("/{telegramID}/stats", h.Stats)
	return r
}

// AdminRoutes returns the admin CID request router.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/{requestID}", h.Get)
	return r
}
