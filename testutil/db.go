// Package testutil provides the database harness shared by package tests.
//
// By default every test gets a fresh, migrated SQLite file under t.TempDir().
// Setting TEST_DATABASE_URL (a golang-migrate URL such as
// "pgx5://user:pw@localhost:5432/blog_test?sslmode=disable" or
// "mysql://user:pw@tcp(localhost:3306)/blog_test?multiStatements=true")
// runs the same tests against a real server; the tables are migrated once and
// reset before each test.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/schema"
)

// EnvDatabaseURL names the variable that selects an external test database.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// OpenDB returns a migrated, empty database that is closed when the test ends.
func OpenDB(t testing.TB, hooks ...db.Hook) *db.DB {
	t.Helper()

	migrateURL := os.Getenv(EnvDatabaseURL)
	if migrateURL == "" {
		migrateURL = "sqlite3://" + filepath.Join(t.TempDir(), "blog.db")
	}

	driver, dsn, err := schema.DriverDSN(migrateURL)
	if err != nil {
		t.Fatalf("testutil: %v", err)
	}
	if err := schema.Migrate(migrateURL); err != nil {
		t.Fatalf("testutil: migrate: %v", err)
	}

	d, err := db.Open(db.Config{
		DSN:            dsn,
		DriverName:     driver,
		MaxOpenConns:   4,
		DefaultTimeout: 10 * time.Second,
		Hooks:          hooks,
	})
	if err != nil {
		t.Fatalf("testutil: open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	Reset(t, d)
	return d
}

// Reset empties all blog tables and restarts their identity sequences.
func Reset(t testing.TB, p db.Provider) {
	t.Helper()
	if err := schema.Reset(context.Background(), p); err != nil {
		t.Fatalf("testutil: reset: %v", err)
	}
}

// InsertComment writes a comment with direct SQL; the repositories do not
// create comments.
func InsertComment(t testing.TB, q db.Querier, text string, userID, postID int64) int64 {
	t.Helper()
	ctx := context.Background()

	const insert = `INSERT INTO comments (text, user_id, post_id) VALUES ($1, $2, $3)`
	if q.Dialect().SupportsReturning() {
		var id int64
		if err := q.QueryRow(ctx, insert+" RETURNING id", text, userID, postID).Scan(&id); err != nil {
			t.Fatalf("testutil: insert comment: %v", err)
		}
		return id
	}
	res, err := q.Exec(ctx, insert, text, userID, postID)
	if err != nil {
		t.Fatalf("testutil: insert comment: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("testutil: insert comment: %v", err)
	}
	return id
}
