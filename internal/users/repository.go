package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	dest := []any{&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsActive, &u.EmailVerified, &u.EmailVerifiedAt,
		&u.CreatedBy, &u.CreatedAt, &u.UpdatedBy, &u.UpdatedAt, &u.DeletedBy, &u.DeletedAt}
	err := row.Scan(append(dest, extra...)...)
	return u, err
}

// GetUser loads a user, archived or not.
func (r *Repository) GetUser(ctx context.Context, q db.DBTX, id int64) (User, error) {
	u, err := scanUser(q.QueryRow(ctx, getUser, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFound("User")
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// ListUsers returns one page of users and the total count.
func (r *Repository) ListUsers(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]User, int, error) {
	sql := listUsers + db.OrderBy(filters.SortBy, filters.SortDir, userSortColumns, "username") + ` LIMIT $3 OFFSET $4`
	rows, err := q.Query(ctx, sql, filters.Archived, db.LikePattern(filters.Search), filters.Limit, filters.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var (
		out   []User
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// UserOptions returns active users as combobox options.
func (r *Repository) UserOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error) {
	rows, err := q.Query(ctx, userOptions, db.LikePattern(search))
	if err != nil {
		return nil, fmt.Errorf("users: options: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// UserRoles returns the active roles linked to a user.
func (r *Repository) UserRoles(ctx context.Context, q db.DBTX, userID int64) ([]shared.Option, error) {
	rows, err := q.Query(ctx, userRoleOptions, userID)
	if err != nil {
		return nil, fmt.Errorf("users: roles: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, q db.DBTX, u User) (User, error) {
	return scanUser(q.QueryRow(ctx, createUser, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive, u.CreatedBy))
}

// UpdateUser writes the mutable columns of u. Username is never updated.
func (r *Repository) UpdateUser(ctx context.Context, q db.DBTX, u User) (User, error) {
	return scanUser(q.QueryRow(ctx, updateUser, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive,
		u.EmailVerified, u.EmailVerifiedAt, u.UpdatedBy))
}

// SetUserArchived archives or restores a user.
func (r *Repository) SetUserArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (User, error) {
	return scanUser(q.QueryRow(ctx, setUserArchived, id, archive, actor))
}

// MarkEmailVerified stamps email verification.
func (r *Repository) MarkEmailVerified(ctx context.Context, q db.DBTX, id int64, actor *int64) (User, error) {
	return scanUser(q.QueryRow(ctx, markEmailVerified, id, actor))
}
