package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/db/dbtest"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveTx(label, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, label+":"+outcome)
}

func TestExecuteTransactionCommits(t *testing.T) {
	obs := &recordingObserver{}
	uow, acq := dbtest.NewUnitOfWork(db.WithObserver(obs))

	got, err := db.ExecuteTransaction(context.Background(), uow, "roles.create", func(ctx context.Context, tx pgx.Tx) (int64, error) {
		_, err := tx.Exec(ctx, "INSERT INTO roles (name) VALUES ($1)", "Auditor")
		return 42, err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	conn := acq.Last()
	require.NotNil(t, conn)
	assert.True(t, conn.Tx.Committed())
	assert.False(t, conn.Tx.RolledBack())
	assert.Equal(t, 1, conn.Releases())
	assert.Equal(t, pgx.RepeatableRead, conn.Options().IsoLevel)
	assert.Equal(t, []string{"roles.create:committed"}, obs.outcomes)
}

func TestExecuteTransactionMapsStorageErrorAndRollsBack(t *testing.T) {
	obs := &recordingObserver{}
	uow, acq := dbtest.NewUnitOfWork(db.WithObserver(obs))

	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_roles_name"}
	_, err := db.ExecuteTransaction(context.Background(), uow, "roles.create", func(context.Context, pgx.Tx) (struct{}, error) {
		return struct{}{}, pgErr
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindUniqueViolation, shared.KindOf(err))
	assert.ErrorIs(t, err, pgErr)

	conn := acq.Last()
	assert.True(t, conn.Tx.RolledBack())
	assert.False(t, conn.Tx.Committed())
	assert.Equal(t, 1, conn.Releases())
	assert.Equal(t, []string{"roles.create:rolled_back"}, obs.outcomes)
}

func TestExecuteTransactionKeepsOriginalErrorWhenRollbackFails(t *testing.T) {
	uow := db.NewUnitOfWorkWithAcquirer(&dbtest.Acquirer{NewTx: func() *dbtest.Tx {
		return &dbtest.Tx{RollbackErr: errors.New("connection reset")}
	}}, nil)

	domainErr := shared.AlreadyArchived("Role")
	_, err := db.ExecuteTransaction(context.Background(), uow, "roles.archive", func(context.Context, pgx.Tx) (int, error) {
		return 0, domainErr
	})
	require.Error(t, err)
	assert.Same(t, domainErr, err)
	assert.Equal(t, "Role is already archived", err.Error())
}

func TestExecuteTransactionPassesDomainErrorsThrough(t *testing.T) {
	uow, _ := dbtest.NewUnitOfWork()
	_, err := db.ExecuteTransaction(context.Background(), uow, "users.update", func(context.Context, pgx.Tx) (int, error) {
		return 0, shared.NotFound("User")
	})
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Equal(t, "User not found", err.Error())
}

func TestExecuteTransactionMapsCommitFailure(t *testing.T) {
	commitErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	uow := db.NewUnitOfWorkWithAcquirer(&dbtest.Acquirer{NewTx: func() *dbtest.Tx {
		return &dbtest.Tx{CommitErr: commitErr}
	}}, nil)

	_, err := db.ExecuteTransaction(context.Background(), uow, "holidays.update", func(context.Context, pgx.Tx) (int, error) {
		return 1, nil
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindSerializationFailure, shared.KindOf(err))
	assert.True(t, shared.KindOf(err).Retryable())
}

func TestExecuteTransactionBeginFailureReleasesConnection(t *testing.T) {
	conn := &dbtest.Conn{BeginErr: errors.New("begin refused")}
	uow := db.NewUnitOfWorkWithAcquirer(&singleConn{conn: conn}, nil)

	called := false
	err := uow.Run(context.Background(), "roles.create", func(context.Context, pgx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, shared.KindInternalDatabase, shared.KindOf(err))
	assert.Equal(t, 1, conn.Releases())
}

func TestExecuteTransactionAcquireFailure(t *testing.T) {
	uow := db.NewUnitOfWorkWithAcquirer(&dbtest.Acquirer{AcquireErr: errors.New("pool exhausted")}, nil)
	err := uow.Run(context.Background(), "roles.create", func(context.Context, pgx.Tx) error { return nil })
	assert.Equal(t, shared.KindInternalDatabase, shared.KindOf(err))
}

func TestExecuteTransactionCancelledBeforeCommit(t *testing.T) {
	uow, acq := dbtest.NewUnitOfWork()
	ctx, cancel := context.WithCancel(context.Background())

	err := uow.Run(ctx, "users.create", func(context.Context, pgx.Tx) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	conn := acq.Last()
	assert.True(t, conn.Tx.RolledBack())
	assert.False(t, conn.Tx.Committed())
	assert.Equal(t, 1, conn.Releases())
}

func TestExecuteTransactionRollsBackOnPanic(t *testing.T) {
	uow, acq := dbtest.NewUnitOfWork()

	assert.Panics(t, func() {
		_ = uow.Run(context.Background(), "roles.update", func(context.Context, pgx.Tx) error {
			panic("boom")
		})
	})

	conn := acq.Last()
	assert.True(t, conn.Tx.RolledBack())
	assert.Equal(t, 1, conn.Releases())
}

func TestExecuteTransactionRunsEachCallOnItsOwnConnection(t *testing.T) {
	uow, acq := dbtest.NewUnitOfWork()
	for i := 0; i < 3; i++ {
		require.NoError(t, uow.Run(context.Background(), "noop", func(context.Context, pgx.Tx) error { return nil }))
	}
	conns := acq.Conns()
	require.Len(t, conns, 3)
	for _, c := range conns {
		assert.Equal(t, 1, c.Releases())
		assert.True(t, c.Tx.Committed())
	}
}

func TestWithIsolation(t *testing.T) {
	uow, acq := dbtest.NewUnitOfWork(db.WithIsolation(pgx.Serializable))
	require.NoError(t, uow.Run(context.Background(), "noop", func(context.Context, pgx.Tx) error { return nil }))
	assert.Equal(t, pgx.Serializable, acq.Last().Options().IsoLevel)
}

type singleConn struct {
	conn *dbtest.Conn
}

func (s *singleConn) Acquire(context.Context) (db.Conn, error) { return s.conn, nil }
