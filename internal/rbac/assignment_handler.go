package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// AssignmentHandler serves link and override endpoints nested under roles and users.
type AssignmentHandler struct {
	logger  *slog.Logger
	service *AssignmentService
}

// NewAssignmentHandler builds AssignmentHandler instance.
func NewAssignmentHandler(logger *slog.Logger, service *AssignmentService) *AssignmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentHandler{logger: logger, service: service}
}

// MountRoleRoutes registers /{id}/permissions on the roles router.
func (h *AssignmentHandler) MountRoleRoutes(r chi.Router) {
	r.Post("/{id}/permissions", h.assignRolePermissions)
	r.Delete("/{id}/permissions", h.removeRolePermissions)
}

// MountUserRoutes registers role and override routes on the users router.
func (h *AssignmentHandler) MountUserRoutes(r chi.Router) {
	r.Post("/{id}/roles", h.assignUserRoles)
	r.Delete("/{id}/roles", h.removeUserRoles)
	r.Get("/{id}/permissions", h.effective)
	r.Post("/{id}/permissions/grant", h.grant)
	r.Post("/{id}/permissions/deny", h.deny)
	r.Delete("/{id}/permissions", h.removeOverrides)
}

// MountAuthzRoutes registers the permission check endpoint.
func (h *AssignmentHandler) MountAuthzRoutes(r chi.Router) {
	r.Get("/check", h.check)
}

// decodeWithOwner decodes the body into cmd and returns the path id. An empty
// body is accepted for remove commands.
func decodeWithOwner(r *http.Request, cmd any, bodyOptional bool) (int64, error) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		return 0, err
	}
	if bodyOptional && r.ContentLength == 0 {
		return id, nil
	}
	if err := httpx.DecodeJSON(r, cmd); err != nil {
		return 0, err
	}
	return id, nil
}

func (h *AssignmentHandler) assignRolePermissions(w http.ResponseWriter, r *http.Request) {
	var cmd RolePermissionsCommand
	id, err := decodeWithOwner(r, &cmd, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.RoleID = id
	h.respond(w, r)(h.service.AssignPermissionsToRole(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) removeRolePermissions(w http.ResponseWriter, r *http.Request) {
	var cmd RemoveRolePermissionsCommand
	id, err := decodeWithOwner(r, &cmd, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.RoleID = id
	h.respond(w, r)(h.service.RemovePermissionsFromRole(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) assignUserRoles(w http.ResponseWriter, r *http.Request) {
	var cmd UserRolesCommand
	id, err := decodeWithOwner(r, &cmd, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.UserID = id
	h.respond(w, r)(h.service.AssignRolesToUser(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) removeUserRoles(w http.ResponseWriter, r *http.Request) {
	var cmd RemoveUserRolesCommand
	id, err := decodeWithOwner(r, &cmd, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.UserID = id
	h.respond(w, r)(h.service.RemoveRolesFromUser(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) grant(w http.ResponseWriter, r *http.Request) {
	var cmd UserOverridesCommand
	id, err := decodeWithOwner(r, &cmd, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.UserID = id
	h.respondOverrides(w, r)(h.service.GrantPermissionsToUser(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) deny(w http.ResponseWriter, r *http.Request) {
	var cmd UserOverridesCommand
	id, err := decodeWithOwner(r, &cmd, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.UserID = id
	h.respondOverrides(w, r)(h.service.DenyPermissionsToUser(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) removeOverrides(w http.ResponseWriter, r *http.Request) {
	var cmd RemoveUserOverridesCommand
	id, err := decodeWithOwner(r, &cmd, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cmd.UserID = id
	h.respondOverrides(w, r)(h.service.RemovePermissionsFromUser(r.Context(), shared.RequestInfoFromRequest(r), cmd))
}

func (h *AssignmentHandler) effective(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Effective(r.Context(), shared.RequestInfoFromRequest(r), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *AssignmentHandler) check(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Check(r.Context(), shared.RequestInfoFromRequest(r), r.URL.Query().Get("permission"))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *AssignmentHandler) respond(w http.ResponseWriter, r *http.Request) func(LinkResult, error) {
	return func(res LinkResult, err error) {
		if err != nil {
			httpx.Fail(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	}
}

func (h *AssignmentHandler) respondOverrides(w http.ResponseWriter, r *http.Request) func(OverrideResult, error) {
	return func(res OverrideResult, err error) {
		if err != nil {
			httpx.Fail(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	}
}
