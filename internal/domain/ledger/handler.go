package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type syncUserRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Username   string `json:"username" validate:"omitempty,max=64"`
	FirstName  string `json:"first_name" validate:"omitempty,max=128"`
	LastName   string `json:"last_name" validate:"omitempty,max=128"`
}

// Sync handles POST /users/sync. The gateway calls it on every user
// contact so the account row always exists before balance operations.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	user, err := h.service.Sync(r.Context(), req.TelegramID, req.Username, req.FirstName, req.LastName)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, user)
}

// GetUser handles GET /users/{telegramID}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	telegramID, err := parseTelegramID(r)
	if err != nil {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	user, err := h.service.GetUser(r.Context(), telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, user)
}

// Balance handles GET /users/{telegramID}/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	telegramID, err := parseTelegramID(r)
	if err != nil {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, balance)
}

// Transactions handles GET /users/{telegramID}/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	telegramID, err := parseTelegramID(r)
	if err != nil {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	p := Pagination{Limit: 20}
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

	transactions, err := h.service.History(r.Context(), telegramID, p)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "user not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.WithMeta(w, transactions, response.Meta{Limit: p.Limit, Offset: p.Offset, Count: len(transactions)})
}

func parseTelegramID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid telegram id")
	}
	return id, nil
}

// Routes returns the user and ledger router.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/sync", h.Sync)
	r.Get("/{telegramID}", h.GetUser)
	r.Get("/{telegramID}/balance", h.Balance)
	r.Get("/{telegramID}/transactions", h.Transactions)
	return r
}
