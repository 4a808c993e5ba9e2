package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/validator"
)

type actingAdminKey struct{}

// WithActingAdmin reads the X-Admin-ID header the panel forwards, so every
// action is attributed to a human admin and not just to the panel's token.
func WithActingAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get("X-Admin-ID"), 10, 64)
		if err != nil || id <= 0 {
			response.Unauthorized(w, "missing or invalid X-Admin-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), actingAdminKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actingAdmin(r *http.Request) int64 {
	id, _ := r.Context().Value(actingAdminKey{}).(int64)
	return id
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type adjustRequest struct {
	TelegramID int64           `json:"telegram_id" validate:"required,gt=0"`
	CIDDelta   int64           `json:"cid_delta"`
	USDDelta   decimal.Decimal `json:"usd_delta"`
	Reason     string          `json:"reason" validate:"required,max=500"`
}

type banRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type adjustOutcome struct {
	Transaction *ledger.Transaction `json:"transaction"`
	Audit       *AuditLog           `json:"audit"`
}

// Adjust handles POST /admin/adjustments.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	posted, entry, err := h.service.Adjust(r.Context(), AdjustParams{
		AdminID:      actingAdmin(r),
		TargetUserID: req.TelegramID,
		CIDDelta:     req.CIDDelta,
		USDDelta:     req.USDDelta,
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, adjustOutcome{Transaction: posted, Audit: entry})
}

// Ban handles POST /admin/users/{telegramID}/ban.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// Unban handles POST /admin/users/{telegramID}/unban.
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	var req banRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil {
			response.BadRequest(w, "invalid JSON body")
			return
		}
		if errs := validator.Validate(&req); errs != nil {
			response.ValidationError(w, errs)
			return
		}
	}

	entry, err := h.service.SetBanned(r.Context(), actingAdmin(r), telegramID, banned, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, entry)
}

// Logs handles GET /admin/logs.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
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

	logs, err := h.service.Logs(r.Context(), actingAdmin(r), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.WithMeta(w, logs, response.Meta{Limit: p.Limit, Offset: p.Offset, Count: len(logs)})
}

// SearchTransactions handles GET /admin/transactions.
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	f := parseSearchFilters(r)
	transactions, err := h.service.SearchTransactions(r.Context(), actingAdmin(r), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.WithMeta(w, transactions, response.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(transactions)})
}

// CheckConsistency handles GET /admin/consistency/{telegramID}.
func (h *Handler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.BadRequest(w, "invalid telegram id")
		return
	}

	report, err := h.service.CheckConsistency(r.Context(), actingAdmin(r), telegramID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, report)
}

func parseSearchFilters(r *http.Request) ledger.SearchFilters {
	q := r.URL.Query()
	var f ledger.SearchFilters

	if v := q.Get("user_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			f.UserID = &n
		}
	}
	if v := q.Get("type"); v != "" {
		t := ledger.TxType(v)
		f.Type = &t
	}
	if v := q.Get("status"); v != "" {
		s := ledger.TxStatus(v)
		f.Status = &s
	}
	if v := q.Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateFrom = &ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateTo = &ts
		}
	}

	f.Limit = 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	return f
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotAdmin):
		response.Forbidden(w, "admin privileges required")
	case errors.Is(err, ErrEmptyAdjustment):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ledger.ErrUserNotFound):
		response.NotFound(w, "user not found")
	default:
		response.InternalError(w)
	}
}

// Routes returns the admin router. Callers mount it behind the admin-scope
// token middleware; the acting-admin header check runs after it.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(WithActingAdmin)
	r.Post("/adjustments", h.Adjust)
	r.Post("/users/{telegramID}/ban", h.Ban)
	r.Post("/users/{telegramID}/unban", h.Unban)
	r.Get("/logs", h.Logs)
	r.Get("/transactions", h.SearchTransactions)
	r.Get("/consistency/{telegramID}", h.CheckConsistency)
	return r
}
