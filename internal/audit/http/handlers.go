package audithttp

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service defines the read contract for activity logs.
type Service interface {
	FindAll(ctx context.Context, info shared.RequestInfo, filters shared.ListFilters) (shared.Page[audit.ActivityLog], error)
	FindByEntity(ctx context.Context, info shared.RequestInfo, entity string, filters shared.ListFilters) (shared.Page[audit.ActivityLog], error)
	FindByAction(ctx context.Context, info shared.RequestInfo, action string, filters shared.ListFilters) (shared.Page[audit.ActivityLog], error)
	Find(ctx context.Context, info shared.RequestInfo, filter audit.Filter) (shared.Page[audit.ActivityLog], error)
	Export(ctx context.Context, info shared.RequestInfo, filter audit.Filter) ([]audit.ActivityLog, error)
}

// Handler menangani permintaan activity log.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	info := shared.RequestInfoFromRequest(r)
	query := r.URL.Query()
	filters := shared.ListFiltersFromQuery(query.Get)
	entity := strings.TrimSpace(query.Get("entity"))
	action := strings.TrimSpace(query.Get("action"))

	var (
		page shared.Page[audit.ActivityLog]
		err  error
	)
	switch {
	case entity != "" && action != "":
		page, err = h.service.Find(r.Context(), info, audit.Filter{Entity: entity, Action: action, ListFilters: filters})
	case entity != "":
		page, err = h.service.FindByEntity(r.Context(), info, entity, filters)
	case action != "":
		page, err = h.service.FindByAction(r.Context(), info, action, filters)
	default:
		page, err = h.service.FindAll(r.Context(), info, filters)
	}
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	query := r.URL.Query()
	rows, err := h.service.Export(r.Context(), shared.RequestInfoFromRequest(r), audit.Filter{
		Entity: strings.TrimSpace(query.Get("entity")),
		Action: strings.TrimSpace(query.Get("action")),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activity-logs.csv\"")
	if err := writeCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func writeCSV(w http.ResponseWriter, rows []audit.ActivityLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "occurred_at", "action", "entity", "employee_id", "details"}); err != nil {
		return err
	}
	for _, row := range rows {
		employee := ""
		if row.EmployeeID != nil {
			employee = strconv.FormatInt(*row.EmployeeID, 10)
		}
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.OccurredAt.UTC().Format(time.RFC3339),
			row.Action,
			row.Entity,
			employee,
			string(row.Details),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
