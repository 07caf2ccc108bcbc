// Package schema owns the blog tables: embedded per-dialect migrations run
// through golang-migrate, and the full reset used to isolate tests.
package schema

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Skryldev/blogstore/db"
)

//go:embed migrations
var migrationsFS embed.FS

// Tables lists the blog tables, dependents first.
var Tables = []string{"comments", "posts", "users"}

// migrationDirs maps a golang-migrate URL scheme to its migrations directory.
var migrationDirs = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"pgx5":       "postgres",
	"sqlite3":    "sqlite3",
	"mysql":      "mysql",
}

// Migrator wraps a golang-migrate instance bound to the embedded migrations.
type Migrator struct {
	m *migrate.Migrate
}

// Open prepares a Migrator for databaseURL, e.g. "postgres://...",
// "sqlite3:///var/lib/blog.db" or "mysql://user:pw@tcp(host:3306)/blog?multiStatements=true".
// A nil logger silences golang-migrate.
func Open(databaseURL string, logger *slog.Logger) (*Migrator, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("schema: parse database url: %w", err)
	}
	dir, ok := migrationDirs[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("schema: no migrations for scheme %q", u.Scheme)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dir)
	if err != nil {
		return nil, fmt.Errorf("schema: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("schema: init migrate: %w", err)
	}
	if logger != nil {
		m.Log = &migrateLogger{l: logger}
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. Being up to date is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema: up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations.
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("schema: down: steps must be positive, got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema: down: %w", err)
	}
	return nil
}

// Version reports the applied version. A database without migrations
// reports version 0.
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force sets the version without running migrations, clearing a dirty state.
func (mg *Migrator) Force(version int) error { return mg.m.Force(version) }

// Drop removes every table in the database.
func (mg *Migrator) Drop() error { return mg.m.Drop() }

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Migrate brings the database at databaseURL up to date.
func Migrate(databaseURL string) (err error) {
	mg, err := Open(databaseURL, nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, mg.Close()) }()
	return mg.Up()
}

// Reset empties every blog table and restarts the identity columns, on one
// connection, using the statements of the provider's dialect.
func Reset(ctx context.Context, p db.Provider) error {
	return p.WithConn(ctx, func(q db.Querier) error {
		for _, stmt := range q.Dialect().ResetStatements(Tables...) {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema: reset: %w", err)
			}
		}
		return nil
	})
}

// DriverDSN turns a golang-migrate database URL into the database/sql driver
// name and DSN that address the same database.
func DriverDSN(migrateURL string) (driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(migrateURL, "://")
	if !ok {
		return "", "", fmt.Errorf("schema: database url %q has no scheme", migrateURL)
	}
	switch scheme {
	case "postgres", "postgresql":
		return "pgx", migrateURL, nil
	case "pgx5":
		return "pgx", "postgres://" + rest, nil
	case "mysql":
		return "mysql", rest, nil
	case "sqlite3":
		path, rawQuery, _ := strings.Cut(rest, "?")
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return "", "", fmt.Errorf("schema: parse sqlite3 options: %w", err)
		}
		for k := range q {
			if strings.HasPrefix(k, "x-") {
				q.Del(k) // golang-migrate options
			}
		}
		// The schema relies on ON DELETE CASCADE.
		if q.Get("_foreign_keys") == "" && q.Get("_fk") == "" {
			q.Set("_foreign_keys", "on")
		}
		return "sqlite3", "file:" + path + "?" + q.Encode(), nil
	default:
		return "", "", fmt.Errorf("schema: unsupported database url scheme %q", scheme)
	}
}

type migrateLogger struct {
	l *slog.Logger
}

func (ml *migrateLogger) Printf(format string, v ...any) {
	ml.l.Info(fmt.Sprintf(format, v...))
}

func (ml *migrateLogger) Verbose() bool { return false }
