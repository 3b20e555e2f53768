package roles

const roleColumns = `id, name, description, created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

const getRole = `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

const listRoles = `SELECT ` + roleColumns + `, COUNT(*) OVER () FROM roles
WHERE (deleted_at IS NOT NULL) = $1
  AND ($2::text = '' OR name ILIKE $2 OR description ILIKE $2)`

const roleOptions = `SELECT id, name FROM roles
WHERE deleted_at IS NULL AND ($1::text = '' OR name ILIKE $1)
ORDER BY name LIMIT 100`

const rolePermissionOptions = `SELECT p.id, p.name
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1 AND p.deleted_at IS NULL
ORDER BY p.name`

const createRole = `INSERT INTO roles (name, description, created_by, updated_by)
VALUES ($1, $2, $3, $3)
RETURNING ` + roleColumns

const updateRole = `UPDATE roles
SET name = $2, description = $3, updated_by = $4, updated_at = NOW()
WHERE id = $1
RETURNING ` + roleColumns

const setRoleArchived = `UPDATE roles
SET deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
    deleted_by = CASE WHEN $2 THEN $3::bigint ELSE NULL END,
    updated_by = $3, updated_at = NOW()
WHERE id = $1
RETURNING ` + roleColumns

var roleSortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}
