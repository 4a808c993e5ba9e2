package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /packages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.List(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, packages)
}

// Get handles GET /packages/{packageID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid package id")
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrPackageNotFound):
			response.NotFound(w, "package not found")
		case errors.Is(err, ErrPackageInactive):
			response.NotFound(w, "package is no longer offered")
		default:
			response.InternalError(w)
		}
		return
	}
	response.OK(w, p)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Get("/{packageID}", h.Get)
	return r
}
