package users

const userColumns = `id, username, email, first_name, last_name, password_hash, is_active, email_verified, email_verified_at,
created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

const listUsers = `SELECT ` + userColumns + `, COUNT(*) OVER () FROM users
WHERE (deleted_at IS NOT NULL) = $1
  AND ($2::text = '' OR username ILIKE $2 OR email ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2)`

const userOptions = `SELECT id, username FROM users
WHERE deleted_at IS NULL AND ($1::text = '' OR username ILIKE $1 OR email ILIKE $1)
ORDER BY username LIMIT 100`

const userRoleOptions = `SELECT r.id, r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 AND r.deleted_at IS NULL
ORDER BY r.name`

const createUser = `INSERT INTO users (username, email, first_name, last_name, password_hash, is_active, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + userColumns

const updateUser = `UPDATE users
SET email = $2, first_name = $3, last_name = $4, password_hash = $5, is_active = $6,
    email_verified = $7, email_verified_at = $8, updated_by = $9, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

const setUserArchived = `UPDATE users
SET deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
    deleted_by = CASE WHEN $2 THEN $3::bigint ELSE NULL END,
    updated_by = $3, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

const markEmailVerified = `UPDATE users
SET email_verified = TRUE, email_verified_at = NOW(), updated_by = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

var userSortColumns = map[string]string{
	"id":         "id",
	"username":   "username",
	"email":      "email",
	"first_name": "first_name",
	"last_name":  "last_name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}
