package roles

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes. Permission links are mounted separately
// by the rbac assignment handler.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/combobox", h.combobox)
	r.Get("/{id}", h.getRole)
	r.Put("/{id}", h.updateRole)
	r.Post("/{id}/archive", h.lifecycle(h.service.Archive))
	r.Post("/{id}/restore", h.lifecycle(h.service.Restore))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
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

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), shared.RequestInfoFromRequest(r), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var cmd RoleCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = 0
	role, err := h.service.Create(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var cmd RoleCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = id
	role, err := h.service.Update(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) lifecycle(op func(ctx context.Context, info shared.RequestInfo, id int64) (Role, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		role, err := op(r.Context(), shared.RequestInfoFromRequest(r), id)
		if err != nil {
			httpx.Fail(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, role)
	}
}
