// main.go: blogstore walkthrough
// ============================================================
// Runs every repository operation once against the configured database:
//
//  1. Configuration (env, .env, config.yaml) and structured logging
//  2. DB initialisation with log and Prometheus metrics hooks
//  3. Embedded migrations
//  4. Users: Save, FindByID (two-step load), Update, ExistsByID
//  5. Posts: Save with owner resolution, FindByUserID, Update
//  6. Comments written with direct SQL, then read back on the user
//  7. Repositories inside a caller's transaction
//  8. Type-safe error handling
//  9. SaveAll / FindAll / Count
// 10. Retry
// 11. Delete, health check, pool stats
// ============================================================
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/blogstore/config"
	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/metrics"
	"github.com/Skryldev/blogstore/models"
	"github.com/Skryldev/blogstore/repo"
	"github.com/Skryldev/blogstore/schema"
)

func main() {
	// ── 0. Configuration and logger ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	level, _ := cfg.SlogLevel() // validated by Load

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── 1. Migrations ─────────────────────────────────────────────────────
	if cfg.MigrationsAuto {
		if err := schema.Migrate(cfg.DatabaseURL); err != nil {
			fatalf("migrate: %v", err)
		}
		slog.Info("migrations applied")
	}

	// ── 2. DB initialisation ─────────────────────────────────────────────
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		fatalf("metrics: %v", err)
	}

	dbCfg, err := cfg.DB(
		db.NewLogHook(db.LogHookConfig{
			Logger:             logger,
			SlowQueryThreshold: cfg.SlowQueryThreshold,
		}),
		db.NewMetricsHook(collector),
	)
	if err != nil {
		fatalf("database config: %v", err)
	}
	database := db.MustOpen(dbCfg)
	defer database.Close()

	slog.Info("database connected", "driver", dbCfg.DriverName, "dialect", database.Dialect().Name())

	ctx := context.Background()
	repos := repo.NewRepositories(database)

	// ── 3. Users ──────────────────────────────────────────────────────────
	alice, err := repos.Users.Save(ctx, &models.User{Name: "Alice Smith"})
	if err != nil {
		fatalf("save user: %v", err)
	}
	slog.Info("saved user", "id", alice.ID)

	alice.Name = "Alice Johnson"
	if err := repos.Users.Update(ctx, alice); err != nil {
		fatalf("update user: %v", err)
	}

	// ── 4. Posts ──────────────────────────────────────────────────────────
	post, err := repos.Posts.Save(ctx, &models.Post{
		Title:   "Hello",
		Content: "First post",
		User:    alice,
	})
	if err != nil {
		fatalf("save post: %v", err)
	}
	slog.Info("saved post", "id", post.ID, "owner", post.User.Name)

	post.Content = "First post, edited"
	if err := repos.Posts.Update(ctx, post); err != nil {
		fatalf("update post: %v", err)
	}

	posts, err := repos.Posts.FindByUserID(ctx, alice.ID)
	if err != nil {
		fatalf("posts by user: %v", err)
	}
	slog.Info("posts by user", "user", alice.ID, "count", len(posts))

	// ── 5. Comments (direct SQL) and the aggregate read ───────────────────
	if err := addComment(ctx, database, "Nice to meet you", alice.ID, post.ID); err != nil {
		fatalf("insert comment: %v", err)
	}

	loaded, ok, err := repos.Users.FindByID(ctx, alice.ID)
	switch {
	case err != nil:
		fatalf("find user: %v", err)
	case !ok:
		fatalf("user %d vanished", alice.ID)
	}
	slog.Info("loaded user", "name", loaded.Name, "comments", len(loaded.Comments))

	onPost, err := repos.Comments.FindByPostID(ctx, post.ID)
	if err != nil {
		fatalf("comments by post: %v", err)
	}
	slog.Info("comments on post", "post", post.ID, "count", len(onPost))

	// ── 6. Transaction usage ──────────────────────────────────────────────
	//
	// A *db.Tx is a db.Provider too, so repositories built on it join the
	// transaction. ExecTx commits on nil and rolls back on error or panic.
	err = database.ExecTx(ctx, func(tx *db.Tx) error {
		txRepos := repo.NewRepositories(tx)

		bob, err := txRepos.Users.Save(ctx, &models.User{Name: "Bob Builder"})
		if err != nil {
			return fmt.Errorf("save bob: %w", err)
		}
		if _, err := txRepos.Posts.Save(ctx, &models.Post{Title: "Tools", Content: "Hammer", User: bob}); err != nil {
			return fmt.Errorf("save bob's post: %w", err)
		}
		slog.Info("tx: saved user and post", "bob", bob.ID)
		return nil
	})
	if err != nil {
		fatalf("transaction failed: %v", err)
	}

	// ── 7. Type-safe error handling ───────────────────────────────────────
	if _, ok, err := repos.Users.FindByID(ctx, 999_999); err == nil && !ok {
		slog.Info("absent user reported without error")
	}

	err = repos.Users.Update(ctx, &models.User{ID: 999_999, Name: "Ghost"})
	if errors.Is(err, repo.ErrNotFound) {
		slog.Info("update of missing user rejected")
	}

	_, err = repos.Posts.Save(ctx, &models.Post{Title: "t", Content: "c", User: &models.User{ID: 999_999}})
	var pe *repo.PersistenceError
	if errors.As(err, &pe) && errors.Is(err, repo.ErrOwnerNotFound) {
		slog.Info("post without owner rejected", "op", pe.Op, "entity", pe.Entity)
	}

	if _, err := repos.Users.Save(ctx, &models.User{Name: ""}); errors.Is(err, models.ErrInvalid) {
		slog.Info("invalid user rejected before reaching the database")
	}

	// ── 8. Batch save and listing ─────────────────────────────────────────
	batch, err := repos.Users.SaveAll(ctx, []*models.User{{Name: "Dave"}, {Name: "Eve"}, {Name: "Frank"}})
	if err != nil {
		slog.Error("batch save failed", "err", err)
	} else {
		slog.Info("batch save", "saved", len(batch))
	}

	page, err := repos.Users.FindAll(ctx, 10, 0)
	if err != nil {
		fatalf("list users: %v", err)
	}
	total, err := repos.Users.Count(ctx)
	if err != nil {
		fatalf("count users: %v", err)
	}
	slog.Info("users", "page", len(page), "total", total)

	// ── 9. Retry ──────────────────────────────────────────────────────────
	//
	// WithRetry retries transient failures (deadlock, timeout, lost
	// connection) by default.
	retryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = db.WithRetry(retryCtx, db.RetryConfig{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
	}, func() error {
		_, err := repos.Users.Save(retryCtx, &models.User{Name: "Retry User"})
		return err
	})
	if err != nil {
		slog.Error("retry operation failed", "err", err)
	} else {
		slog.Info("retry operation succeeded")
	}

	// ── 10. Delete ────────────────────────────────────────────────────────
	if err := repos.Posts.Delete(ctx, post.ID); err != nil {
		fatalf("delete post: %v", err)
	}
	if err := repos.Users.Delete(ctx, alice.ID); err != nil {
		fatalf("delete user: %v", err)
	}
	if exists, err := repos.Users.ExistsByID(ctx, alice.ID); err == nil {
		slog.Info("deleted user", "id", alice.ID, "exists", exists)
	}

	// ── 11. Health check / pool stats ─────────────────────────────────────
	if err := database.Ping(ctx); err != nil {
		slog.Error("health check failed", "err", err)
	} else {
		stats := database.Stats()
		slog.Info("pool stats",
			"open", stats.OpenConnections,
			"idle", stats.Idle,
			"in_use", stats.InUse,
			"wait_count", stats.WaitCount,
		)
	}

	if families, err := prometheus.DefaultGatherer.Gather(); err == nil {
		slog.Info("metrics collected", "families", len(families))
	}

	slog.Info("all examples completed")
}

// addComment stands in for whatever writes comments; the repositories only
// read them.
func addComment(ctx context.Context, q db.Querier, text string, userID, postID int64) error {
	_, err := q.Exec(ctx, `INSERT INTO comments (text, user_id, post_id) VALUES ($1, $2, $3)`, text, userID, postID)
	return err
}

func fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
