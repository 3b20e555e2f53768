package rbac

import (
	"strings"

	"github.com/odyssey-erp/backoffice/internal/audit"
)

// Permission names checked by the use cases.
const (
	PermUsersRead          = "users:read"
	PermUsersCreate        = "users:create"
	PermUsersUpdate        = "users:update"
	PermUsersArchive       = "users:archive"
	PermUsersRestore       = "users:restore"
	PermUsersAssignRoles   = "users:assign_roles"
	PermUsersManagePerms   = "users:manage_permissions"
	PermUsersVerifyEmail   = "users:verify_email"
	PermRolesRead          = "roles:read"
	PermRolesCreate        = "roles:create"
	PermRolesUpdate        = "roles:update"
	PermRolesArchive       = "roles:archive"
	PermRolesRestore       = "roles:restore"
	PermRolesAssignPerms   = "roles:assign_permissions"
	PermPermissionsRead    = "permissions:read"
	PermPermissionsCreate  = "permissions:create"
	PermPermissionsUpdate  = "permissions:update"
	PermPermissionsArchive = "permissions:archive"
	PermPermissionsRestore = "permissions:restore"
	PermHolidaysRead       = "holidays:read"
	PermHolidaysCreate     = "holidays:create"
	PermHolidaysUpdate     = "holidays:update"
	PermHolidaysArchive    = "holidays:archive"
	PermHolidaysRestore    = "holidays:restore"
	PermActivityLogsRead   = audit.PermissionRead
)

// CatalogEntry is a seedable permission.
type CatalogEntry struct {
	Resource    string
	Action      string
	Description string
}

// Name returns resource:action.
func (e CatalogEntry) Name() string { return PermissionName(e.Resource, e.Action) }

var crudActions = []string{"read", "create", "update", "archive", "restore"}

// Catalog lists every permission the service checks.
func Catalog() []CatalogEntry {
	var out []CatalogEntry
	for _, resource := range []string{"users", "roles", "permissions", "holidays"} {
		for _, action := range crudActions {
			out = append(out, CatalogEntry{Resource: resource, Action: action, Description: action + " " + resource})
		}
	}
	return append(out,
		CatalogEntry{Resource: "roles", Action: "assign_permissions", Description: "assign and remove role permissions"},
		CatalogEntry{Resource: "users", Action: "assign_roles", Description: "assign and remove user roles"},
		CatalogEntry{Resource: "users", Action: "manage_permissions", Description: "grant, deny and remove user overrides"},
		CatalogEntry{Resource: "users", Action: "verify_email", Description: "mark user email as verified"},
		CatalogEntry{Resource: "activitylogs", Action: "read", Description: "read the activity log"},
	)
}

// PermissionName builds the canonical permission name.
func PermissionName(resource, action string) string {
	return normalizePermission(resource) + ":" + normalizePermission(action)
}

// ParsePermission splits a canonical name into resource and action.
func ParsePermission(name string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(normalizePermission(name), ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", "", false
	}
	return resource, action, true
}

func normalizePermission(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
