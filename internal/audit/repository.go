package audit

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

const listActivityLogs = `SELECT id, action, entity, employee_id, occurred_at, details, request_info, COUNT(*) OVER () AS total
FROM activitylogs
WHERE ($1::text = '' OR entity = $1)
  AND ($2::text = '' OR action = $2)
ORDER BY occurred_at DESC, id DESC
LIMIT $3 OFFSET $4`

// PGRepository membaca activity log dari PostgreSQL.
type PGRepository struct{}

// NewRepository membuat repository activity log.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

// List returns one page of matching rows, newest first, and the total match count.
func (r *PGRepository) List(ctx context.Context, q db.DBTX, filter Filter) ([]ActivityLog, int, error) {
	rows, err := q.Query(ctx, listActivityLogs, filter.Entity, filter.Action, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list activity logs: %w", err)
	}
	defer rows.Close()

	var (
		logs  []ActivityLog
		total int
	)
	for rows.Next() {
		var row ActivityLog
		if err := rows.Scan(&row.ID, &row.Action, &row.Entity, &row.EmployeeID, &row.OccurredAt, &row.Details, &row.RequestInfo, &total); err != nil {
			return nil, 0, fmt.Errorf("audit: scan activity log: %w", err)
		}
		logs = append(logs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit: iterate activity logs: %w", err)
	}
	return logs, total, nil
}

var _ Repository = (*PGRepository)(nil)
