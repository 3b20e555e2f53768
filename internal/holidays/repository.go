package holidays

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const holidayColumns = `id, name, date, type, is_recurring, description, created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

var holidaySortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"date":       "date",
	"type":       "type",
	"created_at": "created_at",
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanHoliday(row pgx.Row, extra ...any) (Holiday, error) {
	var h Holiday
	dest := []any{&h.ID, &h.Name, &h.Date, &h.Type, &h.IsRecurring, &h.Description,
		&h.CreatedBy, &h.CreatedAt, &h.UpdatedBy, &h.UpdatedAt, &h.DeletedBy, &h.DeletedAt}
	err := row.Scan(append(dest, extra...)...)
	return h, err
}

// GetHoliday loads a holiday, archived or not.
func (r *Repository) GetHoliday(ctx context.Context, q db.DBTX, id int64) (Holiday, error) {
	h, err := scanHoliday(q.QueryRow(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holiday{}, shared.NotFound("Holiday")
		}
		return Holiday{}, fmt.Errorf("holidays: get: %w", err)
	}
	return h, nil
}

// ListHolidays returns one page of holidays and the total count.
func (r *Repository) ListHolidays(ctx context.Context, q db.DBTX, f Filter) ([]Holiday, int, error) {
	sql := `SELECT ` + holidayColumns + `, COUNT(*) OVER () FROM holidays
WHERE (deleted_at IS NOT NULL) = $1
  AND ($2::text = '' OR name ILIKE $2 OR description ILIKE $2)
  AND ($3::int = 0 OR EXTRACT(YEAR FROM date)::int = $3 OR is_recurring)
  AND ($4::text = '' OR type = $4)` +
		db.OrderBy(f.SortBy, f.SortDir, holidaySortColumns, "date") +
		` LIMIT $5 OFFSET $6`
	rows, err := q.Query(ctx, sql, f.Archived, db.LikePattern(f.Search), f.Year, f.Type, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("holidays: list: %w", err)
	}
	defer rows.Close()

	var (
		out   []Holiday
		total int
	)
	for rows.Next() {
		h, err := scanHoliday(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("holidays: scan: %w", err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

// HolidayOptions returns active holidays as combobox options.
func (r *Repository) HolidayOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error) {
	rows, err := q.Query(ctx, `SELECT id, name || ' (' || to_char(date, 'YYYY-MM-DD') || ')' FROM holidays
WHERE deleted_at IS NULL AND ($1::text = '' OR name ILIKE $1)
ORDER BY date, name LIMIT 100`, db.LikePattern(search))
	if err != nil {
		return nil, fmt.Errorf("holidays: options: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[shared.Option])
}

// CreateHoliday inserts a holiday.
func (r *Repository) CreateHoliday(ctx context.Context, q db.DBTX, h Holiday) (Holiday, error) {
	return scanHoliday(q.QueryRow(ctx, `INSERT INTO holidays (name, date, type, is_recurring, description, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING `+holidayColumns, h.Name, h.Date, h.Type, h.IsRecurring, h.Description, h.CreatedBy))
}

// UpdateHoliday writes the mutable columns of h.
func (r *Repository) UpdateHoliday(ctx context.Context, q db.DBTX, h Holiday) (Holiday, error) {
	return scanHoliday(q.QueryRow(ctx, `UPDATE holidays
SET name = $2, date = $3, type = $4, is_recurring = $5, description = $6, updated_by = $7, updated_at = NOW()
WHERE id = $1
RETURNING `+holidayColumns, h.ID, h.Name, h.Date, h.Type, h.IsRecurring, h.Description, h.UpdatedBy))
}

// SetHolidayArchived archives or restores a holiday.
func (r *Repository) SetHolidayArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Holiday, error) {
	return scanHoliday(q.QueryRow(ctx, `UPDATE holidays
SET deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
    deleted_by = CASE WHEN $2 THEN $3::bigint ELSE NULL END,
    updated_by = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+holidayColumns, id, archive, actor))
}
