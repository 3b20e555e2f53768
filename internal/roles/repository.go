package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence. Every method runs on the
// caller's transaction.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanRole(row pgx.Row, extra ...any) (Role, error) {
	var role Role
	dest := []any{&role.ID, &role.Name, &role.Description,
		&role.CreatedBy, &role.CreatedAt, &role.UpdatedBy, &role.UpdatedAt, &role.DeletedBy, &role.DeletedAt}
	err := row.Scan(append(dest, extra...)...)
	return role, err
}

// GetRole loads a role, archived or not.
func (r *Repository) GetRole(ctx context.Context, q db.DBTX, id int64) (Role, error) {
	role, err := scanRole(q.QueryRow(ctx, getRole, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFound("Role")
		}
		return Role{}, fmt.Errorf("roles: get: %w", err)
	}
	return role, nil
}

// ListRoles returns one page of roles and the total count.
func (r *Repository) ListRoles(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]Role, int, error) {
	sql := listRoles + db.OrderBy(filters.SortBy, filters.SortDir, roleSortColumns, "name") + ` LIMIT $3 OFFSET $4`
	rows, err := q.Query(ctx, sql, filters.Archived, db.LikePattern(filters.Search), filters.Limit, filters.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var (
		roles []Role
		total int
	)
	for rows.Next() {
		role, err := scanRole(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("roles: scan: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

// RoleOptions returns active roles as combobox options.
func (r *Repository) RoleOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error) {
	rows, err := q.Query(ctx, roleOptions, db.LikePattern(search))
	if err != nil {
		return nil, fmt.Errorf("roles: options: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// RolePermissions returns the active permissions linked to a role.
func (r *Repository) RolePermissions(ctx context.Context, q db.DBTX, roleID int64) ([]shared.Option, error) {
	rows, err := q.Query(ctx, rolePermissionOptions, roleID)
	if err != nil {
		return nil, fmt.Errorf("roles: permissions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, q db.DBTX, role Role) (Role, error) {
	return scanRole(q.QueryRow(ctx, createRole, role.Name, role.Description, role.CreatedBy))
}

// UpdateRole writes the mutable columns of role.
func (r *Repository) UpdateRole(ctx context.Context, q db.DBTX, role Role) (Role, error) {
	return scanRole(q.QueryRow(ctx, updateRole, role.ID, role.Name, role.Description, role.UpdatedBy))
}

// SetRoleArchived archives or restores a role.
func (r *Repository) SetRoleArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Role, error) {
	return scanRole(q.QueryRow(ctx, setRoleArchived, id, archive, actor))
}
