package db

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Dialect captures the SQL differences the repositories care about.
type Dialect interface {
	// Name is "postgres", "sqlite3" or "mysql".
	Name() string

	// Rebind rewrites $N placeholders into the dialect's native form.
	Rebind(query string) string

	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool

	// ResetStatements empties the given tables and restarts their identity
	// columns. The statements must run on one connection, in order.
	ResetStatements(tables ...string) []string

	// SnapshotIsolation is the isolation level that gives consecutive reads in
	// one transaction a single snapshot.
	SnapshotIsolation() sql.IsolationLevel
}

// DialectFor returns the dialect for a database/sql driver name. Unknown
// names fall back to Postgres, whose placeholder style the repositories use.
func DialectFor(driverName string) Dialect {
	switch driverName {
	case "sqlite3", "sqlite":
		return sqliteDialect{}
	case "mysql":
		return mysqlDialect{}
	default:
		return postgresDialect{}
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string            { return "postgres" }
func (postgresDialect) Rebind(q string) string  { return q }
func (postgresDialect) SupportsReturning() bool { return true }
func (postgresDialect) SnapshotIsolation() sql.IsolationLevel {
	return sql.LevelRepeatableRead
}

func (postgresDialect) ResetStatements(tables ...string) []string {
	if len(tables) == 0 {
		return nil
	}
	return []string{
		fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", ")),
	}
}

// SQLite understands $N natively and has had RETURNING since 3.35.
type sqliteDialect struct{}

func (sqliteDialect) Name() string            { return "sqlite3" }
func (sqliteDialect) Rebind(q string) string  { return q }
func (sqliteDialect) SupportsReturning() bool { return true }

// SQLite transactions are serializable; the default level already gives a
// single snapshot.
func (sqliteDialect) SnapshotIsolation() sql.IsolationLevel { return sql.LevelDefault }

func (sqliteDialect) ResetStatements(tables ...string) []string {
	if len(tables) == 0 {
		return nil
	}
	stmts := make([]string, 0, len(tables)+1)
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, "DELETE FROM "+t)
		quoted = append(quoted, "'"+t+"'")
	}
	return append(stmts,
		fmt.Sprintf("DELETE FROM sqlite_sequence WHERE name IN (%s)", strings.Join(quoted, ", ")))
}

type mysqlDialect struct{}

var pgPlaceholder = regexp.MustCompile(`\$\d+`)

func (mysqlDialect) Name() string            { return "mysql" }
func (mysqlDialect) Rebind(q string) string  { return pgPlaceholder.ReplaceAllString(q, "?") }
func (mysqlDialect) SupportsReturning() bool { return false }
func (mysqlDialect) SnapshotIsolation() sql.IsolationLevel {
	return sql.LevelRepeatableRead
}

// TRUNCATE refuses FK-referenced tables in MySQL, so checks are switched off
// for the session while the tables are emptied.
func (mysqlDialect) ResetStatements(tables ...string) []string {
	if len(tables) == 0 {
		return nil
	}
	stmts := make([]string, 0, len(tables)+2)
	stmts = append(stmts, "SET FOREIGN_KEY_CHECKS = 0")
	for _, t := range tables {
		stmts = append(stmts, "TRUNCATE TABLE "+t)
	}
	return append(stmts, "SET FOREIGN_KEY_CHECKS = 1")
}
