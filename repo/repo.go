// Package repo holds the blog repositories. All SQL is explicit and lives
// next to the method that runs it; every method acquires a scoped session
// from a db.Provider and releases it before returning.
package repo

import (
	"context"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
)

// Options tunes the repositories built by NewRepositories.
type Options struct {
	// ConsistentReads runs the two reads of an aggregate load (the user row,
	// then its comments) in one snapshot transaction instead of as two
	// statements on one connection.
	ConsistentReads bool
}

// Repositories bundles the repositories that share one provider.
type Repositories struct {
	Users    UserRepository
	Posts    PostRepository
	Comments CommentRepository
}

// NewRepositories wires all repositories against p. Posts resolve their
// owner through Users, and Users attach comments through the comment loader,
// so there is nothing to set after construction.
//
// p may be a *db.DB or a *db.Tx; with a Tx every repository call joins the
// caller's transaction.
func NewRepositories(p db.Provider, opts ...Options) *Repositories {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	users := newUserRepo(p, o)
	return &Repositories{
		Users:    users,
		Posts:    NewPostRepo(p, users),
		Comments: NewCommentRepo(p),
	}
}

// UserResolver is the part of the user repository the post repository
// depends on.
type UserResolver interface {
	FindByID(ctx context.Context, id int64) (*models.User, bool, error)
}

// insertID runs an INSERT and returns the generated id, through RETURNING
// where the dialect has it and LastInsertId otherwise.
func insertID(ctx context.Context, q db.Querier, insertSQL string, args ...any) (int64, error) {
	if q.Dialect().SupportsReturning() {
		var id int64
		if err := q.QueryRow(ctx, insertSQL+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.Exec(ctx, insertSQL, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// exists runs a SELECT EXISTS query for one id.
func exists(ctx context.Context, q db.Querier, existsSQL string, id int64) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, existsSQL, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// updateOne runs an UPDATE that targets one id and reports ErrNotFound when
// the row is missing. A zero row count alone is not trusted: MySQL reports
// zero for rows whose values did not change.
func updateOne(ctx context.Context, q db.Querier, updateSQL, existsSQL string, id int64, args ...any) error {
	res, err := q.Exec(ctx, updateSQL, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, q, existsSQL, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
