// Package db is the connection provider behind the blogstore repositories.
// It wraps database/sql with scoped connection acquisition, transactions,
// per-dialect placeholder handling, statement hooks and a unified error
// mapping. All SQL stays explicit; there is no query builder here.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds all options for opening and managing the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "postgres", "pgx", "mysql" or "sqlite3". It also selects
	// the SQL dialect.
	DriverName string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// DefaultTimeout is applied when the caller's context carries no deadline.
	// Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks run around every statement. Nil entries are skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// DB
// ─────────────────────────────────────────────────────────────────────────────

// DB is a concurrency-safe wrapper around *sql.DB. Statements issued directly
// on a DB may land on any pooled connection; use WithConn when several
// statements must share one session.
type DB struct {
	runner
	sqldb *sql.DB
	cfg   Config
}

// Open opens the database described by cfg and verifies connectivity with Ping.
// Callers are responsible for calling Close() when the application shuts down.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("blogstore/db: DSN must not be empty")
	}
	if cfg.DriverName == "" {
		return nil, fmt.Errorf("blogstore/db: DriverName must not be empty")
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("blogstore/db: open: %w", err)
	}

	d := New(sqldb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("blogstore/db: ping: %w", d.mapErr(err))
	}

	return d, nil
}

// New wraps an already opened pool. Pool settings from cfg are applied; the
// connection is not pinged. cfg.DriverName selects the dialect.
func New(sqldb *sql.DB, cfg Config) *DB {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DB{
		runner: runner{
			r:       sqldb,
			hooks:   newHookChain(cfg.Hooks),
			errMap:  DefaultErrorMapper(),
			dialect: DialectFor(cfg.DriverName),
			timeout: cfg.DefaultTimeout,
		},
		sqldb: sqldb,
		cfg:   cfg,
	}
}

// MustOpen is like Open but panics on error. Useful in main() initialisation.
func MustOpen(cfg Config) *DB {
	d, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return d
}

// Raw returns the underlying *sql.DB.
func (d *DB) Raw() *sql.DB { return d.sqldb }

// SetErrorMapper replaces the default error mapper.
func (d *DB) SetErrorMapper(m ErrorMapper) { d.errMap = m }

// Close closes all pooled connections.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	defer cancel()
	return d.mapErr(d.sqldb.PingContext(ctx))
}

// Stats returns pool statistics for monitoring.
func (d *DB) Stats() sql.DBStats { return d.sqldb.Stats() }

// ─────────────────────────────────────────────────────────────────────────────
// runner: statement execution shared by DB, Conn and Tx
// ─────────────────────────────────────────────────────────────────────────────

// sqlRunner is the method set *sql.DB, *sql.Conn and *sql.Tx have in common.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type runner struct {
	r       sqlRunner
	hooks   hookChain
	errMap  ErrorMapper
	dialect Dialect
	timeout time.Duration
}

// Dialect returns the SQL dialect statements are rebound for.
func (r *runner) Dialect() Dialect { return r.dialect }

// Exec executes a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
func (r *runner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := r.applyDefaultTimeout(ctx)
	defer cancel()
	query = r.dialect.Rebind(query)
	start := time.Now()
	r.hooks.Before(ctx, query, args)
	res, err := r.r.ExecContext(ctx, query, args...)
	err = r.mapErr(err)
	r.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query that returns rows.
// The caller MUST close the returned *Rows.
func (r *runner) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := r.applyDefaultTimeout(ctx)
	query = r.dialect.Rebind(query)
	start := time.Now()
	r.hooks.Before(ctx, query, args)
	rows, err := r.r.QueryContext(ctx, query, args...)
	err = r.mapErr(err)
	r.hooks.After(ctx, query, args, time.Since(start), err)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, cancel: cancel, errMap: r.errMap}, nil
}

// QueryRow executes a query expected to return at most one row.
// Row.Scan reports ErrNotFound when nothing matched. Hooks observe the
// statement when Scan returns, so they see its error.
func (r *runner) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := r.applyDefaultTimeout(ctx)
	query = r.dialect.Rebind(query)
	start := time.Now()
	r.hooks.Before(ctx, query, args)
	raw := r.r.QueryRowContext(ctx, query, args...)
	return &Row{
		raw:    raw,
		errMap: r.errMap,
		hooks:  r.hooks,
		ctx:    ctx,
		cancel: cancel,
		query:  query,
		args:   args,
		start:  start,
	}
}

// Prepare creates a prepared statement for repeated use.
// The caller is responsible for calling stmt.Close().
func (r *runner) Prepare(ctx context.Context, query string) (*Stmt, error) {
	ctx, cancel := r.applyDefaultTimeout(ctx)
	defer cancel()
	query = r.dialect.Rebind(query)
	s, err := r.r.PrepareContext(ctx, query)
	if err != nil {
		return nil, r.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, hooks: r.hooks, errMap: r.errMap}, nil
}

// applyDefaultTimeout bounds ctx by the configured timeout unless it already
// has a deadline. The returned cancel func is never nil.
func (r *runner) applyDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *runner) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return r.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Row
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sql.Row
	errMap ErrorMapper

	hooks  hookChain
	ctx    context.Context
	cancel context.CancelFunc
	query  string
	args   []any
	start  time.Time
}

// Scan copies columns from the matched row into dest values.
// ErrNotFound is returned when no row was found.
func (r *Row) Scan(dest ...any) error {
	err := r.errMap.Map(r.raw.Scan(dest...))
	r.hooks.After(r.ctx, r.query, r.args, time.Since(r.start), err)
	r.cancel()
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

// Rows wraps *sql.Rows. Close releases the statement's timeout as well as
// the result set; Err maps iteration errors like every other call.
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
	errMap ErrorMapper
}

// Close closes the result set. It is safe to call more than once.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}

// Err reports the error, if any, encountered during iteration.
func (r *Rows) Err() error {
	if err := r.Rows.Err(); err != nil {
		return r.errMap.Map(err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stmt
// ─────────────────────────────────────────────────────────────────────────────

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt   *sql.Stmt
	query  string
	hooks  hookChain
	errMap ErrorMapper
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	res, err := s.stmt.ExecContext(ctx, args...)
	err = s.errMap.Map(err)
	s.hooks.After(ctx, s.query, args, time.Since(start), err)
	return res, err
}

// QueryRow executes the prepared statement expecting one row. Hooks observe
// it when Scan returns.
func (s *Stmt) QueryRow(ctx context.Context, args ...any) *Row {
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	raw := s.stmt.QueryRowContext(ctx, args...)
	return &Row{
		raw:    raw,
		errMap: s.errMap,
		hooks:  s.hooks,
		ctx:    ctx,
		cancel: func() {},
		query:  s.query,
		args:   args,
		start:  start,
	}
}

// Close releases the prepared statement resources.
func (s *Stmt) Close() error { return s.stmt.Close() }

// ─────────────────────────────────────────────────────────────────────────────
// WithRetry
// ─────────────────────────────────────────────────────────────────────────────

// RetryConfig controls retry behaviour for transient errors.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// RetryOn decides whether a given error should trigger a retry.
	// Defaults to IsTransient when nil.
	RetryOn func(error) bool
}

// WithRetry executes fn, retrying on transient errors per cfg. Repositories
// never retry on their own; retrying is always the caller's decision.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = IsTransient
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryOn(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("blogstore/db: all %d attempts failed, last error: %w", attempts, lastErr)
}
