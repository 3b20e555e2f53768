package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const permissionColumns = `id, name, resource, action, description, created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

var permissionSortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"resource":   "resource",
	"action":     "action",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedBy, &p.UpdatedAt, &p.DeletedBy, &p.DeletedAt)
	return p, err
}

// GetPermission loads a permission, archived or not.
func (s *Store) GetPermission(ctx context.Context, q db.DBTX, id int64) (Permission, error) {
	p, err := scanPermission(q.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.NotFound("Permission")
		}
		return Permission{}, fmt.Errorf("rbac: get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns one page of permissions and the total count.
func (s *Store) ListPermissions(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]Permission, int, error) {
	sql := `SELECT ` + permissionColumns + `, COUNT(*) OVER () FROM permissions
WHERE (deleted_at IS NOT NULL) = $1
  AND ($2::text = '' OR name ILIKE $2 OR description ILIKE $2)` +
		db.OrderBy(filters.SortBy, filters.SortDir, permissionSortColumns, "name") +
		` LIMIT $3 OFFSET $4`
	rows, err := q.Query(ctx, sql, filters.Archived, db.LikePattern(filters.Search), filters.Limit, filters.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()

	var (
		out   []Permission
		total int
	)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedBy, &p.UpdatedAt, &p.DeletedBy, &p.DeletedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("rbac: scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// PermissionOptions returns active permissions as combobox options.
func (s *Store) PermissionOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error) {
	rows, err := q.Query(ctx, `SELECT id, name FROM permissions
WHERE deleted_at IS NULL AND ($1::text = '' OR name ILIKE $1)
ORDER BY name LIMIT 100`, db.LikePattern(search))
	if err != nil {
		return nil, fmt.Errorf("rbac: permission options: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// CreatePermission inserts p and returns the stored row.
func (s *Store) CreatePermission(ctx context.Context, q db.DBTX, p Permission) (Permission, error) {
	return scanPermission(q.QueryRow(ctx, `INSERT INTO permissions (name, resource, action, description, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $5)
RETURNING `+permissionColumns, p.Name, p.Resource, p.Action, p.Description, p.CreatedBy))
}

// UpdatePermission writes the mutable columns of p.
func (s *Store) UpdatePermission(ctx context.Context, q db.DBTX, p Permission) (Permission, error) {
	return scanPermission(q.QueryRow(ctx, `UPDATE permissions
SET name = $2, resource = $3, action = $4, description = $5, updated_by = $6, updated_at = NOW()
WHERE id = $1
RETURNING `+permissionColumns, p.ID, p.Name, p.Resource, p.Action, p.Description, p.UpdatedBy))
}

// SetPermissionArchived archives (actor set) or restores (actor nil) a permission.
func (s *Store) SetPermissionArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Permission, error) {
	return scanPermission(q.QueryRow(ctx, `UPDATE permissions
SET deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
    deleted_by = CASE WHEN $2 THEN $3::bigint ELSE NULL END,
    updated_by = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+permissionColumns, id, archive, actor))
}
