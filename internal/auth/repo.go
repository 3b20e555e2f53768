package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByLogin(ctx context.Context, q db.DBTX, login string) (Credential, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct{}

// NewRepository constructs a PostgreSQL repository.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

const findByLogin = `SELECT id, username, email, password_hash, is_active, deleted_at
FROM users
WHERE username = $1 OR email = $1
ORDER BY (username = $1) DESC
LIMIT 1`

// FindByLogin fetches a user by username or email, archived rows included.
func (r *PGRepository) FindByLogin(ctx context.Context, q db.DBTX, login string) (Credential, error) {
	var c Credential
	err := q.QueryRow(ctx, findByLogin, strings.ToLower(strings.TrimSpace(login))).
		Scan(&c.ID, &c.Username, &c.Email, &c.PasswordHash, &c.IsActive, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, shared.NotFound("User")
		}
		return Credential{}, fmt.Errorf("auth: find by login: %w", err)
	}
	return c, nil
}

var _ Repository = (*PGRepository)(nil)
