package users

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// User represents a back-office account.
type User struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	PasswordHash    string     `json:"-"`
	IsActive        bool       `json:"is_active"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	shared.Stamps
	// Roles is filled by Get only.
	Roles []shared.Option `json:"roles,omitempty"`
}

// CreateCommand creates a user.
type CreateCommand struct {
	Username  string `json:"username" validate:"required,min=3,max=50,excludesall= :@"`
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	IsActive  *bool  `json:"is_active"`
}

// UpdateCommand updates a user. Username is accepted only when unchanged.
type UpdateCommand struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Password  string `json:"password" validate:"omitempty,min=8,max=72"`
	IsActive  *bool  `json:"is_active"`
}
