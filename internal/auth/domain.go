package auth

import "time"

// Credential is the login view of a user account.
type Credential struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	DeletedAt    *time.Time
}

// CanLogin reports whether the account may start a session.
func (c Credential) CanLogin() bool {
	return c.IsActive && c.DeletedAt == nil
}

// LoginCommand carries login input. Login accepts a username or an email.
type LoginCommand struct {
	Login    string `json:"login" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// Me describes the current principal.
type Me struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	Denied      []string `json:"denied"`
}
