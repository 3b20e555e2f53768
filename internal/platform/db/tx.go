package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rollbackTimeout = 5 * time.Second

// Transaction outcomes reported to a TxObserver.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// Conn is a dedicated connection checked out of the pool.
type Conn interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Release()
}

// Acquirer hands out dedicated connections.
type Acquirer interface {
	Acquire(ctx context.Context) (Conn, error)
}

// TxObserver receives one observation per unit of work.
type TxObserver interface {
	ObserveTx(label, outcome string, elapsed time.Duration)
}

// Work is the business logic run inside a transaction.
type Work func(ctx context.Context, tx pgx.Tx) error

// UnitOfWork runs business commands atomically on a dedicated connection.
type UnitOfWork struct {
	acquirer Acquirer
	logger   *slog.Logger
	opts     pgx.TxOptions
	observer TxObserver
}

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithIsolation overrides the default RepeatableRead isolation level.
func WithIsolation(level pgx.TxIsoLevel) Option {
	return func(u *UnitOfWork) { u.opts.IsoLevel = level }
}

// WithObserver reports transaction outcomes, typically to metrics.
func WithObserver(o TxObserver) Option {
	return func(u *UnitOfWork) { u.observer = o }
}

type poolAcquirer struct {
	pool *pgxpool.Pool
}

func (p poolAcquirer) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewUnitOfWork builds a UnitOfWork over a pgx pool.
func NewUnitOfWork(pool *pgxpool.Pool, logger *slog.Logger, opts ...Option) *UnitOfWork {
	return NewUnitOfWorkWithAcquirer(poolAcquirer{pool: pool}, logger, opts...)
}

// NewUnitOfWorkWithAcquirer builds a UnitOfWork over any connection source.
func NewUnitOfWorkWithAcquirer(acquirer Acquirer, logger *slog.Logger, opts ...Option) *UnitOfWork {
	if logger == nil {
		logger = slog.Default()
	}
	u := &UnitOfWork{
		acquirer: acquirer,
		logger:   logger,
		opts:     pgx.TxOptions{IsoLevel: pgx.RepeatableRead},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run executes work in a single transaction. On failure the transaction is
// rolled back and the work error, mapped through MapError, is returned; a
// rollback failure is logged and never replaces it. The connection is released
// exactly once on every path.
func (u *UnitOfWork) Run(ctx context.Context, label string, work Work) error {
	start := time.Now()
	outcome := OutcomeFailed
	defer func() {
		if u.observer != nil {
			u.observer.ObserveTx(label, outcome, time.Since(start))
		}
	}()

	conn, err := u.acquirer.Acquire(ctx)
	if err != nil {
		return storageFailure(fmt.Errorf("platform/db: acquire %s: %w", label, err))
	}
	rel := &releaser{conn: conn, logger: u.logger, label: label}
	defer rel.release()

	tx, err := conn.BeginTx(ctx, u.opts)
	if err != nil {
		return storageFailure(fmt.Errorf("platform/db: begin %s: %w", label, err))
	}

	defer func() {
		if p := recover(); p != nil {
			u.rollback(ctx, label, tx)
			panic(p)
		}
	}()

	if err := work(ctx, tx); err != nil {
		u.rollback(ctx, label, tx)
		outcome = OutcomeRolledBack
		return MapError(err)
	}

	if err := ctx.Err(); err != nil {
		u.rollback(ctx, label, tx)
		outcome = OutcomeRolledBack
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		// pgx closes the transaction when commit fails; nothing is left to roll back.
		u.logger.Error("commit failed", slog.String("tx", label), slog.Any("error", err))
		return MapError(fmt.Errorf("platform/db: commit %s: %w", label, err))
	}

	outcome = OutcomeCommitted
	u.logger.Debug("transaction committed", slog.String("tx", label), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// rollback never reports; the original failure is authoritative.
func (u *UnitOfWork) rollback(ctx context.Context, label string, tx pgx.Tx) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		u.logger.Warn("rollback failed", slog.String("tx", label), slog.Any("error", err))
	}
}

// ExecuteTransaction runs work in a unit of work and returns its result.
func ExecuteTransaction[T any](ctx context.Context, u *UnitOfWork, label string, work func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var result T
	err := u.Run(ctx, label, func(ctx context.Context, tx pgx.Tx) error {
		out, err := work(ctx, tx)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

type releaser struct {
	conn     Conn
	logger   *slog.Logger
	label    string
	released atomic.Bool
}

// release returns the connection to the pool; repeated calls only log.
func (r *releaser) release() {
	if !r.released.CompareAndSwap(false, true) {
		r.logger.Warn("connection already released", slog.String("tx", r.label))
		return
	}
	r.conn.Release()
}
