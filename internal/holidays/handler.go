package holidays

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler serves the holiday calendar.
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

// MountRoutes registers holiday routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/combobox", h.combobox)
	r.Get("/{id}", h.byID(h.service.Get))
	r.Put("/{id}", h.update)
	r.Post("/{id}/archive", h.byID(h.service.Archive))
	r.Post("/{id}/restore", h.byID(h.service.Restore))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := Filter{ListFilters: shared.ListFiltersFromQuery(query.Get), Type: query.Get("type")}
	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 {
			httpx.RespondError(w, shared.Validation("year must be a positive integer"))
			return
		}
		f.Year = year
	}
	page, err := h.service.List(r.Context(), shared.RequestInfoFromRequest(r), f)
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

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = 0
	holiday, err := h.service.Create(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, holiday)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var cmd Command
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.ID = id
	holiday, err := h.service.Update(r.Context(), shared.RequestInfoFromRequest(r), cmd)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, holiday)
}

func (h *Handler) byID(op func(ctx context.Context, info shared.RequestInfo, id int64) (Holiday, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		holiday, err := op(r.Context(), shared.RequestInfoFromRequest(r), id)
		if err != nil {
			httpx.Fail(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, holiday)
	}
}
