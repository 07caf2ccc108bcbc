package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a query matches no rows.
	ErrNotFound = errors.New("blogstore/db: record not found")

	// ErrDuplicateKey is returned on unique constraint violations.
	ErrDuplicateKey = errors.New("blogstore/db: duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("blogstore/db: foreign key violation")

	// ErrNotNullViolation is returned when a NOT NULL column receives NULL.
	ErrNotNullViolation = errors.New("blogstore/db: not null violation")

	// ErrCheckViolation is returned when a CHECK constraint is violated.
	ErrCheckViolation = errors.New("blogstore/db: check constraint violation")

	// ErrDeadlock is returned when the database detects a deadlock or the
	// file is locked by another writer.
	ErrDeadlock = errors.New("blogstore/db: deadlock detected")

	// ErrTimeout is returned when a statement exceeds its deadline or is canceled.
	ErrTimeout = errors.New("blogstore/db: query timeout")

	// ErrConnectionFailed is returned when the driver cannot reach the server
	// or the connection was lost mid-statement.
	ErrConnectionFailed = errors.New("blogstore/db: connection failed")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool        { return errors.Is(err, ErrDuplicateKey) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsNotNullViolation(err error) bool    { return errors.Is(err, ErrNotNullViolation) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }
func IsDeadlock(err error) bool            { return errors.Is(err, ErrDeadlock) }
func IsTimeout(err error) bool             { return errors.Is(err, ErrTimeout) }
func IsConnectionFailed(err error) bool    { return errors.Is(err, ErrConnectionFailed) }

// IsTransient reports whether retrying the same statement may succeed.
func IsTransient(err error) bool {
	return IsDeadlock(err) || IsTimeout(err) || IsConnectionFailed(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// DBError
// ─────────────────────────────────────────────────────────────────────────────

// DBError pairs a sentinel with the original driver error, so callers can use
// errors.Is(err, ErrDuplicateKey) or errors.As down to *pq.Error and friends.
type DBError struct {
	// Sentinel is one of the package-level Err* variables.
	Sentinel error
	// Cause is the original driver error.
	Cause error
	// Constraint names the violated constraint when the driver reports it.
	Constraint string
}

func (e *DBError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Sentinel, e.Constraint, e.Cause)
	}
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the package sentinels.
// A mapper that does not recognise err returns it unchanged.
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc is a convenience adapter from a function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper handles database/sql and context errors, then every
// driver this package ships an adapter for.
// Errors that already carry a *DBError are returned untouched.
func DefaultErrorMapper() ErrorMapper {
	chain := ChainMapper(
		ErrorMapperFunc(mapStdlibError),
		ErrorMapperFunc(mapPQError),
		ErrorMapperFunc(mapPGXError),
		ErrorMapperFunc(mapMySQLError),
		ErrorMapperFunc(mapSQLiteError),
	)
	return ErrorMapperFunc(func(err error) error {
		var dbe *DBError
		if err == nil || errors.As(err, &dbe) {
			return err
		}
		return chain.Map(err)
	})
}

func mapStdlibError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return err
}

// ChainMapper returns an ErrorMapper that tries each mapper in order and
// returns the first result that differs from the input.
func ChainMapper(mappers ...ErrorMapper) ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		if err == nil {
			return nil
		}
		for _, m := range mappers {
			if mapped := m.Map(err); mapped != err {
				return mapped
			}
		}
		return err
	})
}

// PostgreSQL SQLSTATE codes, shared by lib/pq and pgx:
// https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapByPGCode(code, constraint string, cause error) error {
	var sentinel error
	switch code {
	case "23505": // unique_violation
		sentinel = ErrDuplicateKey
	case "23503": // foreign_key_violation
		sentinel = ErrForeignKeyViolation
	case "23502": // not_null_violation
		sentinel = ErrNotNullViolation
	case "23514": // check_violation
		sentinel = ErrCheckViolation
	case "40P01": // deadlock_detected
		sentinel = ErrDeadlock
	case "57014": // query_canceled (statement_timeout)
		sentinel = ErrTimeout
	case "08000", "08003", "08006", "08001", "08004", "08007", "08P01", "57P01":
		sentinel = ErrConnectionFailed
	default:
		return cause
	}
	return &DBError{Sentinel: sentinel, Cause: cause, Constraint: constraint}
}
