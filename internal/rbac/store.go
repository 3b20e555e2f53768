package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the PostgreSQL role/permission/override store. Every method runs on
// the caller's connection or transaction.
type Store struct{}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{}
}

const rolePermissionNames = `SELECT DISTINCT p.name
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
WHERE u.id = $1 AND u.deleted_at IS NULL AND u.is_active`

const activeUserOverrides = `SELECT p.id, p.name, up.is_allowed
FROM users u
JOIN user_permissions up ON up.user_id = u.id
JOIN permissions p ON p.id = up.permission_id AND p.deleted_at IS NULL
WHERE u.id = $1 AND u.deleted_at IS NULL AND u.is_active`

// RolePermissionNames returns the permission names of the user's active roles.
func (s *Store) RolePermissionNames(ctx context.Context, q db.DBTX, userID int64) ([]string, error) {
	rows, err := q.Query(ctx, rolePermissionNames, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UserOverrides returns the overrides that take part in resolution.
func (s *Store) UserOverrides(ctx context.Context, q db.DBTX, userID int64) ([]Override, error) {
	rows, err := q.Query(ctx, activeUserOverrides, userID)
	if err != nil {
		return nil, err
	}
	return collectOverrides(rows)
}

// OverrideLinks returns every override row of the user.
func (s *Store) OverrideLinks(ctx context.Context, q db.DBTX, userID int64) ([]Override, error) {
	rows, err := q.Query(ctx, `SELECT p.id, p.name, up.is_allowed
FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id
WHERE up.user_id = $1
ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectOverrides(rows)
}

func collectOverrides(rows pgx.Rows) ([]Override, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Override, error) {
		var o Override
		err := row.Scan(&o.PermissionID, &o.Permission, &o.Allowed)
		return o, err
	})
}

// LockRole locks the role row for the rest of the transaction.
func (s *Store) LockRole(ctx context.Context, q db.DBTX, roleID int64) (archived bool, err error) {
	return lockOwner(ctx, q, `SELECT deleted_at IS NOT NULL FROM roles WHERE id = $1 FOR UPDATE`, roleID, "Role")
}

// LockUser locks the user row for the rest of the transaction.
func (s *Store) LockUser(ctx context.Context, q db.DBTX, userID int64) (archived bool, err error) {
	return lockOwner(ctx, q, `SELECT deleted_at IS NOT NULL FROM users WHERE id = $1 FOR UPDATE`, userID, "User")
}

// UserArchived reports whether the user is archived, without locking.
func (s *Store) UserArchived(ctx context.Context, q db.DBTX, userID int64) (bool, error) {
	return lockOwner(ctx, q, `SELECT deleted_at IS NOT NULL FROM users WHERE id = $1`, userID, "User")
}

func lockOwner(ctx context.Context, q db.DBTX, sql string, id int64, entity string) (bool, error) {
	var archived bool
	if err := q.QueryRow(ctx, sql, id).Scan(&archived); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, shared.NotFound(entity)
		}
		return false, err
	}
	return archived, nil
}

// ActivePermissionIDs returns which of ids name active permissions.
func (s *Store) ActivePermissionIDs(ctx context.Context, q db.DBTX, ids []int64) ([]int64, error) {
	return collectIDs(ctx, q, `SELECT id FROM permissions WHERE id = ANY($1::bigint[]) AND deleted_at IS NULL ORDER BY id`, ids)
}

// ActiveRoleIDs returns which of ids name active roles.
func (s *Store) ActiveRoleIDs(ctx context.Context, q db.DBTX, ids []int64) ([]int64, error) {
	return collectIDs(ctx, q, `SELECT id FROM roles WHERE id = ANY($1::bigint[]) AND deleted_at IS NULL ORDER BY id`, ids)
}

// RolePermissionIDs returns the permission ids linked to the role.
func (s *Store) RolePermissionIDs(ctx context.Context, q db.DBTX, roleID int64) ([]int64, error) {
	return collectIDs(ctx, q, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
}

// UserRoleIDs returns the role ids linked to the user.
func (s *Store) UserRoleIDs(ctx context.Context, q db.DBTX, userID int64) ([]int64, error) {
	return collectIDs(ctx, q, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
}

func collectIDs(ctx context.Context, q db.DBTX, sql string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// AddRolePermissions links permissions to a role; existing links are kept.
func (s *Store) AddRolePermissions(ctx context.Context, q db.DBTX, roleID int64, ids []int64, actor *int64) error {
	_, err := q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, created_by)
SELECT $1, pid, $3 FROM unnest($2::bigint[]) AS pid
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, ids, actor)
	return wrap("add role permissions", err)
}

// DeleteRolePermissions unlinks ids from the role, or every permission when ids is empty.
func (s *Store) DeleteRolePermissions(ctx context.Context, q db.DBTX, roleID int64, ids []int64) error {
	var err error
	if len(ids) == 0 {
		_, err = q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	} else {
		_, err = q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2::bigint[])`, roleID, ids)
	}
	return wrap("delete role permissions", err)
}

// AddUserRoles links roles to a user; existing links are kept.
func (s *Store) AddUserRoles(ctx context.Context, q db.DBTX, userID int64, ids []int64, actor *int64) error {
	_, err := q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_by)
SELECT $1, rid, $3 FROM unnest($2::bigint[]) AS rid
ON CONFLICT (user_id, role_id) DO NOTHING`, userID, ids, actor)
	return wrap("add user roles", err)
}

// DeleteUserRoles unlinks ids from the user, or every role when ids is empty.
func (s *Store) DeleteUserRoles(ctx context.Context, q db.DBTX, userID int64, ids []int64) error {
	var err error
	if len(ids) == 0 {
		_, err = q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	} else {
		_, err = q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = ANY($2::bigint[])`, userID, ids)
	}
	return wrap("delete user roles", err)
}

// UpsertUserOverrides writes overrides, flipping is_allowed on existing rows.
func (s *Store) UpsertUserOverrides(ctx context.Context, q db.DBTX, userID int64, ids []int64, allowed bool, actor *int64) error {
	_, err := q.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, is_allowed, created_by)
SELECT $1, pid, $3, $4 FROM unnest($2::bigint[]) AS pid
ON CONFLICT (user_id, permission_id) DO UPDATE SET is_allowed = EXCLUDED.is_allowed`, userID, ids, allowed, actor)
	return wrap("upsert user overrides", err)
}

// DeleteUserOverrides removes overrides of the user. Empty ids means all rows;
// a non-nil allowed restricts the delete to grants or denies.
func (s *Store) DeleteUserOverrides(ctx context.Context, q db.DBTX, userID int64, ids []int64, allowed *bool) error {
	_, err := q.Exec(ctx, `DELETE FROM user_permissions
WHERE user_id = $1
  AND (cardinality($2::bigint[]) = 0 OR permission_id = ANY($2::bigint[]))
  AND ($3::boolean IS NULL OR is_allowed = $3)`, userID, nonNil(ids), allowed)
	return wrap("delete user overrides", err)
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("rbac: %s: %w", op, err)
}
