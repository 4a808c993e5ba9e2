package voucher

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

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

type redeemRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Code       string `json:"code" validate:"required,min=6,max=20"`
}

type createRequest struct {
	CIDAmount   int64           `json:"cid_amount"`
	USDAmount   decimal.Decimal `json:"usd_amount"`
	CustomCode  string          `json:"custom_code" validate:"omitempty,voucher_code"`
	CreatedBy   int64           `json:"created_by"`
	ExpiresDays int             `json:"expires_days" validate:"omitempty,gt=0"`
}

type bulkRequest struct {
	Count       int             `json:"count" validate:"required,gt=0"`
	CIDAmount   int64           `json:"cid_amount"`
	USDAmount   decimal.Decimal `json:"usd_amount"`
	Prefix      string          `json:"prefix" validate:"omitempty,max=8"`
	CreatedBy   int64           `json:"created_by"`
	ExpiresDays int             `json:"expires_days" validate:"omitempty,gt=0"`
}

// Redeem handles POST /vouchers/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	v, posted, err := h.service.Redeem(r.Context(), req.Code, req.TelegramID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			response.BadRequest(w, "invalid voucher code")
		case errors.Is(err, ErrVoucherNotFound):
			response.NotFound(w, "voucher not found")
		case errors.Is(err, ErrAlreadyUsed):
			response.Conflict(w, "voucher already used")
		case errors.Is(err, ErrVoucherExpired):
			response.Conflict(w, "voucher expired")
		case errors.Is(err, ledger.ErrUserNotFound):
			response.NotFound(w, "user not found")
		case errors.Is(err, ledger.ErrUserBanned):
			response.Forbidden(w, "account is banned")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]interface{}{
		"voucher":     v,
		"transaction": posted,
	})
}

// Create handles POST /vouchers (admin scope).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	v, err := h.service.Create(r.Context(), CreateParams{
		CIDAmount:  req.CIDAmount,
		USDAmount:  req.USDAmount,
		CustomCode: req.CustomCode,
		CreatedBy:  req.CreatedBy,
		ExpiresIn:  time.Duration(req.ExpiresDays) * 24 * time.Hour,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "voucher must carry a positive CID or USD value")
		case errors.Is(err, ErrInvalidCode):
			response.BadRequest(w, "custom code must be 6-20 characters of A-Z and 0-9")
		case errors.Is(err, ErrCodeTaken):
			response.Conflict(w, "voucher code already exists")
		default:
			response.InternalError(w)
		}
		return
	}
	response.Created(w, v)
}

// CreateBulk handles POST /vouchers/bulk (admin scope).
func (h *Handler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	codes, err := h.service.CreateBulk(r.Context(), req.Count, CreateParams{
		CIDAmount: req.CIDAmount,
		USDAmount: req.USDAmount,
		CreatedBy: req.CreatedBy,
		ExpiresIn: time.Duration(req.ExpiresDays) * 24 * time.Hour,
	}, req.Prefix)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidBulkCount):
			response.BadRequest(w, "count must be between 1 and 100")
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "voucher must carry a positive CID or USD value")
		case errors.Is(err, ErrInvalidCode):
			response.BadRequest(w, "prefix must be 1-8 characters of A-Z and 0-9")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, map[string]interface{}{
		"codes": codes,
		"count": len(codes),
	})
}

// Get handles GET /vouchers/{code} (admin scope).
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			response.BadRequest(w, "invalid voucher code")
		case errors.Is(err, ErrVoucherNotFound):
			response.NotFound(w, "voucher not found")
		default:
			response.InternalError(w)
		}
		return
	}

	status := "active"
	switch {
	case v.IsUsed:
		status = "used"
	case v.Expired(time.Now().UTC()):
		status = "expired"
	}

	uses, err := h.service.Uses(r.Context(), v.ID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"voucher": v,
		"status":  status,
		"uses":    uses,
	})
}

// Stats handles GET /vouchers/stats (admin scope).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, stats)
}

// Routes returns the gateway-facing voucher router.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/redeem", h.Redeem)
	return r
}

// AdminRoutes returns the admin voucher router.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Post("/bulk", h.CreateBulk)
	r.Get("/stats", h.Stats)
	r.Get("/{code}", h.Get)
	return r
}
