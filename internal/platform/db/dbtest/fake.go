// Package dbtest provides transaction fakes and a disposable Postgres for tests.
package dbtest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// ExecCall records one statement sent through Tx.Exec.
type ExecCall struct {
	SQL  string
	Args []any
}

// Tx is an in-memory pgx.Tx. Only Commit, Rollback and Exec are implemented;
// other methods panic through the nil embedded interface.
type Tx struct {
	pgx.Tx

	CommitErr   error
	RollbackErr error
	ExecErr     error

	mu         sync.Mutex
	committed  bool
	rolledBack bool
	closed     bool
	hooks      []func()
	execs      []ExecCall
}

// Commit marks the transaction committed unless CommitErr is set.
func (t *Tx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.committed = true
	return nil
}

// Rollback runs the registered hooks in reverse order and reports RollbackErr.
func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.rolledBack = true
	hooks := t.hooks
	t.hooks = nil
	t.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	return t.RollbackErr
}

// OnRollback registers fn to undo in-memory writes when the transaction aborts.
func (t *Tx) OnRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

func (t *Tx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execs = append(t.execs, ExecCall{SQL: sql, Args: args})
	if t.ExecErr != nil {
		return pgconn.CommandTag{}, t.ExecErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// Committed reports whether Commit succeeded.
func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether Rollback was called on an open transaction.
func (t *Tx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// Execs returns the statements executed so far.
func (t *Tx) Execs() []ExecCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ExecCall(nil), t.execs...)
}

// Conn hands out Tx and counts releases.
type Conn struct {
	Tx       *Tx
	BeginErr error

	mu       sync.Mutex
	opts     pgx.TxOptions
	releases int
}

func (c *Conn) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
	if c.BeginErr != nil {
		return nil, c.BeginErr
	}
	if c.Tx == nil {
		c.Tx = &Tx{}
	}
	return c.Tx, nil
}

func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

// Releases returns how many times the connection was released.
func (c *Conn) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// Options returns the options of the last BeginTx call.
func (c *Conn) Options() pgx.TxOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Acquirer returns a fresh Conn per Acquire unless AcquireErr is set.
type Acquirer struct {
	AcquireErr error
	// NewTx customises the transaction handed to each connection.
	NewTx func() *Tx

	mu    sync.Mutex
	conns []*Conn
}

func (a *Acquirer) Acquire(context.Context) (db.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AcquireErr != nil {
		return nil, a.AcquireErr
	}
	tx := &Tx{}
	if a.NewTx != nil {
		tx = a.NewTx()
	}
	conn := &Conn{Tx: tx}
	a.conns = append(a.conns, conn)
	return conn, nil
}

// Conns returns every connection handed out.
func (a *Acquirer) Conns() []*Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Conn(nil), a.conns...)
}

// Last returns the most recent connection, or nil.
func (a *Acquirer) Last() *Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conns) == 0 {
		return nil
	}
	return a.conns[len(a.conns)-1]
}

// NewUnitOfWork builds a UnitOfWork over a fresh Acquirer.
func NewUnitOfWork(opts ...db.Option) (*db.UnitOfWork, *Acquirer) {
	acq := &Acquirer{}
	return db.NewUnitOfWorkWithAcquirer(acq, nil, opts...), acq
}

var (
	_ pgx.Tx      = (*Tx)(nil)
	_ db.Conn     = (*Conn)(nil)
	_ db.Acquirer = (*Acquirer)(nil)
)
