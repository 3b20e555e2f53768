package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes. Role and override links live on the
// rbac assignment handler under the same prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Get("/combobox", h.combobox)
	r.Get("/{id}", h.getUser)
	r.Put("/{id}", h.updateUser)
	r.Post("/{id}/archive", h.byID(h.service.Archive))
	r.Post("/{id}/restore", h.byID(h.service.Restore))
	r.Post("/{id}/verify-email", h.byID(h.service.VerifyEmail))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), shared.RequestInfoFromRequest(r), shared.ListFiltersFromQuery(r.URL.Query().Get))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) combobox(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Combobox(r.Context(), shared.RequestInfoFromRequest(r), r.URL.Query().Get("search"))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	h.byID(h.service.Get)(w, r)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var cmd CreateCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.Create(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var cmd UpdateCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = id
	u, err := h.service.Update(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) byID(op func(ctx context.Context, info shared.RequestInfo, id int64) (User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		u, err := op(r.Context(), shared.RequestInfoFromRequest(r), id)
		if err != nil {
			httpx.Fail(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, u)
	}
}
