package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Provider hands out scoped database sessions. Repositories depend on
// Provider rather than on *DB so the same repository code runs against the
// pool or inside a caller's transaction.
type Provider interface {
	// WithConn runs fn on a single connection that is released when fn
	// returns, whether it returns an error or panics.
	WithConn(ctx context.Context, fn func(Querier) error) error

	// WithTx runs fn inside a transaction: commit on nil, rollback otherwise.
	WithTx(ctx context.Context, fn func(Querier) error, opts ...TxOptions) error

	// Dialect reports the SQL dialect of the sessions handed out.
	Dialect() Dialect
}

var (
	_ Provider = (*DB)(nil)
	_ Provider = (*Tx)(nil)
)

// Conn is one dedicated pool connection, valid only inside WithConn.
type Conn struct {
	runner
	sqlconn *sql.Conn
}

// Raw returns the underlying *sql.Conn.
func (c *Conn) Raw() *sql.Conn { return c.sqlconn }

// WithConn acquires a connection from the pool, runs fn on it and returns it
// to the pool on every exit path.
func (d *DB) WithConn(ctx context.Context, fn func(Querier) error) (err error) {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	defer cancel()

	sqlconn, err := d.sqldb.Conn(ctx)
	if err != nil {
		return d.mapErr(err)
	}
	defer func() {
		if cerr := sqlconn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("blogstore/db: release conn: %w", d.mapErr(cerr))
		}
	}()

	c := &Conn{
		runner: runner{
			r:       sqlconn,
			hooks:   d.hooks,
			errMap:  d.errMap,
			dialect: d.dialect,
		},
		sqlconn: sqlconn,
	}
	return fn(c)
}

// WithTx adapts ExecTx to the Provider interface.
func (d *DB) WithTx(ctx context.Context, fn func(Querier) error, opts ...TxOptions) error {
	return d.ExecTx(ctx, func(tx *Tx) error { return fn(tx) }, opts...)
}

// WithConn runs fn on the transaction itself; the transaction already owns
// its connection.
func (t *Tx) WithConn(_ context.Context, fn func(Querier) error) error {
	return fn(t)
}

// WithTx runs fn on the enclosing transaction. Nested transactions are not
// started; commit and rollback stay with the outermost ExecTx.
func (t *Tx) WithTx(_ context.Context, fn func(Querier) error, _ ...TxOptions) error {
	return fn(t)
}
