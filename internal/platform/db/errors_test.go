package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestMapErrorBySQLState(t *testing.T) {
	cases := []struct {
		code   string
		kind   shared.Kind
		status int
	}{
		{pgerrcode.UniqueViolation, shared.KindUniqueViolation, 409},
		{pgerrcode.ForeignKeyViolation, shared.KindForeignKeyViolation, 404},
		{pgerrcode.NotNullViolation, shared.KindNotNullViolation, 400},
		{pgerrcode.CheckViolation, shared.KindCheckViolation, 400},
		{pgerrcode.SerializationFailure, shared.KindSerializationFailure, 409},
		{pgerrcode.DeadlockDetected, shared.KindSerializationFailure, 409},
		{pgerrcode.UndefinedTable, shared.KindInternalDatabase, 500},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := db.MapError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: tc.code}))
			var appErr *shared.Error
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, tc.kind, appErr.Kind)
				assert.Equal(t, tc.status, appErr.Status())
			}
		})
	}
}

func TestMapErrorIncludesConstraint(t *testing.T) {
	err := db.MapError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_users_email"})
	assert.Contains(t, err.Error(), "uq_users_email")
}

func TestMapErrorPassThrough(t *testing.T) {
	assert.NoError(t, db.MapError(nil))

	domain := shared.NotArchived("Holiday")
	assert.Same(t, domain, db.MapError(domain))

	assert.ErrorIs(t, db.MapError(context.Canceled), context.Canceled)

	plain := errors.New("plain")
	assert.Same(t, plain, db.MapError(plain))
}

func TestInternalDatabaseMessageIsNotLeaked(t *testing.T) {
	err := db.MapError(&pgconn.PgError{Code: pgerrcode.UndefinedColumn, Message: `column "secret" does not exist`})
	assert.Equal(t, "internal database error", shared.UserSafeMessage(err))
}
