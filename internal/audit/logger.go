package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const insertActivityLog = `INSERT INTO activitylogs (action, entity, details, employee_id, occurred_at, request_info)
VALUES ($1, $2, $3, $4, $5, $6)`

// Logger menulis activity log melalui transaksi pemanggil.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger membuat audit logger baru.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, now: time.Now}
}

// Record inserts one activity row through q. Any failure is returned so the
// enclosing transaction rolls back with the mutation.
func (l *Logger) Record(ctx context.Context, q db.DBTX, entry Entry) error {
	entry.Action = strings.TrimSpace(entry.Action)
	entry.Entity = strings.TrimSpace(entry.Entity)
	if entry.Action == "" || entry.Entity == "" {
		return shared.Validation("audit entry requires action and entity")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = l.now()
	}

	details, err := encodeDetails(entry.Details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	requestInfo, err := json.Marshal(entry.RequestInfo)
	if err != nil {
		return fmt.Errorf("audit: encode request info: %w", err)
	}

	if _, err := q.Exec(ctx, insertActivityLog,
		entry.Action,
		entry.Entity,
		details,
		entry.EmployeeID,
		entry.OccurredAt.UTC(),
		json.RawMessage(requestInfo),
	); err != nil {
		return fmt.Errorf("audit: insert activity log: %w", err)
	}

	l.logger.Debug("activity recorded",
		slog.String("action", entry.Action),
		slog.String("entity", entry.Entity),
		slog.String("request_id", entry.RequestInfo.RequestID),
	)
	return nil
}

func encodeDetails(details any) (json.RawMessage, error) {
	switch v := details.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return preEncoded(v)
	case []byte:
		return preEncoded(v)
	case string:
		return preEncoded([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}

// preEncoded keeps valid JSON as is and wraps anything else under "raw".
func preEncoded(raw []byte) (json.RawMessage, error) {
	if json.Valid(raw) {
		return json.RawMessage(raw), nil
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(raw)})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// Recorder is implemented by Logger; use cases depend on it.
type Recorder interface {
	Record(ctx context.Context, q db.DBTX, entry Entry) error
}

var _ Recorder = (*Logger)(nil)
