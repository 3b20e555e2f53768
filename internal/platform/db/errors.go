package db

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MapError translates storage failures into the shared error taxonomy.
// Errors that already carry a shared.Kind, context cancellation and any other
// non-storage error pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	kind, message := classify(pgErr)
	return shared.Storage(kind, message, err)
}

func classify(pgErr *pgconn.PgError) (shared.Kind, string) {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return shared.KindUniqueViolation, withConstraint("duplicate value violates unique constraint", pgErr)
	case pgerrcode.ForeignKeyViolation:
		return shared.KindForeignKeyViolation, withConstraint("referenced record does not exist", pgErr)
	case pgerrcode.NotNullViolation:
		msg := "required column is null"
		if pgErr.ColumnName != "" {
			msg = "column " + pgErr.ColumnName + " must not be null"
		}
		return shared.KindNotNullViolation, msg
	case pgerrcode.CheckViolation:
		return shared.KindCheckViolation, withConstraint("check constraint violated", pgErr)
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return shared.KindSerializationFailure, "concurrent update detected, retry the operation"
	default:
		return shared.KindInternalDatabase, "internal database error"
	}
}

func withConstraint(msg string, pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName == "" {
		return msg
	}
	return msg + " (" + pgErr.ConstraintName + ")"
}

// storageFailure wraps infrastructure failures without a SQLSTATE, such as
// acquire or begin errors.
func storageFailure(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return MapError(err)
	}
	return shared.Storage(shared.KindInternalDatabase, "internal database error", err)
}
