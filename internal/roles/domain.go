package roles

import "github.com/odyssey-erp/backoffice/internal/shared"

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	shared.Stamps
	// Permissions is filled by Get only.
	Permissions []shared.Option `json:"permissions,omitempty"`
}

// RoleCommand creates or updates a role.
type RoleCommand struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}
