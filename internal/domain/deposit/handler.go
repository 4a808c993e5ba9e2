package deposit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/purchase"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/tronscan"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type verifyRequest struct {
	TxID string `json:"txid" validate:"required,tron_txid"`
}

type processRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	TxID       string `json:"txid" validate:"required,tron_txid"`
}

// Verify handles POST /deposits/verify. Dry-run: classifies the payment
// without crediting anything.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	payment, err := h.service.Verify(r.Context(), req.TxID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, payment)
}

// Process handles POST /deposits/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	outcome, err := h.service.Process(r.Context(), req.TelegramID, req.TxID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, outcome)
}

// Address handles GET /deposits/address.
func (h *Handler) Address(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"address": h.service.DepositAddress(),
		"network": "TRC20",
		"asset":   "USDT",
	})
}

// Recent handles GET /deposits/recent. Admin reconciliation view of wallet
// inflows.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 720 {
			response.BadRequest(w, "hours must be between 1 and 720")
			return
		}
		hours = parsed
	}

	transfers, err := h.service.RecentTransfers(r.Context(), hours)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, transfers)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var mismatch *purchase.AmountMismatchError
	if errors.As(err, &mismatch) {
		response.ErrorWithDetails(w, http.StatusConflict, "AMOUNT_MISMATCH", "payment does not match the reserved amount", map[string]string{
			"required_usd": mismatch.Required.StringFixed(2),
			"paid_usd":     mismatch.Paid.StringFixed(2),
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, ledger.ErrUserBanned):
		response.Forbidden(w, "account is banned")
	case errors.Is(err, ErrTxNotFound):
		response.NotFound(w, "transaction not found on chain")
	case errors.Is(err, ErrUnconfirmed):
		response.Error(w, http.StatusConflict, "UNCONFIRMED", err.Error())
	case errors.Is(err, ErrWrongAsset):
		response.BadRequest(w, "transaction carries no USDT transfer")
	case errors.Is(err, ErrWrongRecipient):
		response.BadRequest(w, "transfer does not pay the deposit wallet")
	case errors.Is(err, ErrBelowMinimum):
		response.Error(w, http.StatusBadRequest, "BELOW_MINIMUM", err.Error())
	case errors.Is(err, ErrAlreadyProcessed):
		response.Conflict(w, "transaction already credited")
	case errors.Is(err, ErrVerificationInFlight):
		response.TooManyRequests(w)
	case errors.Is(err, ledger.ErrInsufficientUSD):
		response.Conflict(w, "balance changed during settlement, submit again")
	case errors.Is(err, tronscan.ErrUnavailable):
		response.BadGateway(w, "chain explorer unavailable")
	default:
		response.InternalError(w)
	}
}

// Routes returns the deposit router mounted behind gateway auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/address", h.Address)
	r.Post("/verify", h.Verify)
	r.Post("/process", h.Process)
	return r
}

// AdminRoutes returns the admin deposit router.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/recent", h.Recent)
	return r
}
