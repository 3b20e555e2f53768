package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionsHandler serves the permission catalog.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *PermissionService
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *PermissionService) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/combobox", h.combobox)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/archive", h.archive)
	r.Post("/{id}/restore", h.restore)
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), shared.RequestInfoFromRequest(r), shared.ListFiltersFromQuery(r.URL.Query().Get))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *PermissionsHandler) combobox(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Combobox(r.Context(), shared.RequestInfoFromRequest(r), r.URL.Query().Get("search"))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}

func (h *PermissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), shared.RequestInfoFromRequest(r), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *PermissionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var cmd PermissionCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = 0
	p, err := h.service.Create(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *PermissionsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var cmd PermissionCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = id
	p, err := h.service.Update(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *PermissionsHandler) archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Archive)
}

func (h *PermissionsHandler) restore(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Restore)
}

func (h *PermissionsHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, info shared.RequestInfo, id int64) (Permission, error)) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := op(r.Context(), shared.RequestInfoFromRequest(r), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
