package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// UserRepository interface
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository persists users and loads them as aggregates together with
// their comments.
type UserRepository interface {
	// Save inserts a transient user and assigns the generated id to it.
	Save(ctx context.Context, u *models.User) (*models.User, error)

	// FindByID loads the user and its comments. A missing id is reported as
	// (nil, false, nil).
	FindByID(ctx context.Context, id int64) (*models.User, bool, error)

	// Update overwrites every mutable column. A missing id fails with a
	// PersistenceError wrapping ErrNotFound.
	Update(ctx context.Context, u *models.User) error

	// Delete removes the user. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error

	ExistsByID(ctx context.Context, id int64) (bool, error)

	// FindAll returns a page of users ordered by id, comments attached.
	FindAll(ctx context.Context, limit, offset int) ([]*models.User, error)

	Count(ctx context.Context) (int64, error)

	// SaveAll inserts all users in one transaction; either every user gets
	// an id or none does.
	SaveAll(ctx context.Context, users []*models.User) ([]*models.User, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// userRepo
// ─────────────────────────────────────────────────────────────────────────────

type userRepo struct {
	p          db.Provider
	consistent bool
}

// NewUserRepo returns a UserRepository backed by p.
func NewUserRepo(p db.Provider, opts ...Options) UserRepository {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return newUserRepo(p, o)
}

func newUserRepo(p db.Provider, o Options) *userRepo {
	return &userRepo{p: p, consistent: o.ConsistentReads}
}

const (
	sqlInsertUser = `
		INSERT INTO users (name)
		VALUES ($1)`

	sqlGetUserByID = `
		SELECT id, name
		FROM   users
		WHERE  id = $1`

	sqlListUsers = `
		SELECT id, name
		FROM   users
		ORDER  BY id
		LIMIT  $1 OFFSET $2`

	sqlUpdateUser = `
		UPDATE users
		SET    name = $1
		WHERE  id = $2`

	sqlDeleteUser = `
		DELETE FROM users WHERE id = $1`

	sqlUserExists = `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	sqlCountUsers = `
		SELECT COUNT(*) FROM users`
)

// ─────────────────────────────────────────────────────────────────────────────
// Save
// ─────────────────────────────────────────────────────────────────────────────

func (r *userRepo) Save(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, nilEntity("user")
	}
	if !u.Transient() {
		return nil, alreadyPersisted("user", u.ID)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		id, err = insertID(ctx, q, sqlInsertUser, u.Name)
		return err
	})
	if err != nil {
		return nil, persistErr("save", "user", 0, err)
	}
	u.ID = id
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindByID: two-step aggregate load
// ─────────────────────────────────────────────────────────────────────────────

func (r *userRepo) FindByID(ctx context.Context, id int64) (*models.User, bool, error) {
	var u *models.User
	load := func(q db.Querier) error {
		found, err := scanUser(q.QueryRow(ctx, sqlGetUserByID, id))
		if err != nil {
			return err
		}
		if found.Comments, err = commentsByUser(ctx, q, found.ID); err != nil {
			return err
		}
		u = found
		return nil
	}

	var err error
	if r.consistent {
		err = r.p.WithTx(ctx, load, db.TxOptions{
			Isolation: r.p.Dialect().SnapshotIsolation(),
			ReadOnly:  true,
		})
	} else {
		err = r.p.WithConn(ctx, load)
	}

	switch {
	case db.IsNotFound(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("repo/user: find %d: %w", id, err)
	}
	return u, true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update / Delete / ExistsByID
// ─────────────────────────────────────────────────────────────────────────────

func (r *userRepo) Update(ctx context.Context, u *models.User) error {
	if u == nil {
		return nilEntity("user")
	}
	if u.Transient() {
		return notPersisted("user")
	}
	if err := u.Validate(); err != nil {
		return err
	}

	err := r.p.WithConn(ctx, func(q db.Querier) error {
		return updateOne(ctx, q, sqlUpdateUser, sqlUserExists, u.ID, u.Name, u.ID)
	})
	return persistErr("update", "user", u.ID, err)
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, sqlDeleteUser, id)
		return err
	})
	return persistErr("delete", "user", id, err)
}

func (r *userRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		ok, err = exists(ctx, q, sqlUserExists, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("repo/user: exists %d: %w", id, err)
	}
	return ok, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindAll / Count
// ─────────────────────────────────────────────────────────────────────────────

// FindAll loads one page of users and then the comments of the whole page
// in a single query.
func (r *userRepo) FindAll(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, sqlListUsers, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		users = []*models.User{}
		ids := []int64{}
		for rows.Next() {
			u := &models.User{}
			if err := rows.Scan(&u.ID, &u.Name); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			users = append(users, u)
			ids = append(ids, u.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		// Release the result set before the second statement on this conn.
		rows.Close()

		grouped, err := commentsByUsers(ctx, q, ids)
		if err != nil {
			return err
		}
		for _, u := range users {
			u.Comments = grouped[u.ID]
			if u.Comments == nil {
				u.Comments = []models.Comment{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	return users, nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		return q.QueryRow(ctx, sqlCountUsers).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("repo/user: count: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveAll
// ─────────────────────────────────────────────────────────────────────────────

// SaveAll prepares the insert once and runs it per user inside a single
// transaction. Ids are assigned to the entities only after commit.
func (r *userRepo) SaveAll(ctx context.Context, users []*models.User) ([]*models.User, error) {
	if len(users) == 0 {
		return nil, nil
	}
	seen := make(map[*models.User]struct{}, len(users))
	for _, u := range users {
		if u == nil {
			return nil, nilEntity("user")
		}
		if !u.Transient() {
			return nil, alreadyPersisted("user", u.ID)
		}
		if _, dup := seen[u]; dup {
			return nil, fmt.Errorf("%w: user %q appears twice in the batch", models.ErrInvalid, u.Name)
		}
		seen[u] = struct{}{}
		if err := u.Validate(); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(users))
	err := r.p.WithTx(ctx, func(q db.Querier) error {
		returning := q.Dialect().SupportsReturning()
		insertSQL := sqlInsertUser
		if returning {
			insertSQL += " RETURNING id"
		}
		stmt, err := q.Prepare(ctx, insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, u := range users {
			var id int64
			if returning {
				err = stmt.QueryRow(ctx, u.Name).Scan(&id)
			} else {
				var res sql.Result
				if res, err = stmt.Exec(ctx, u.Name); err == nil {
					id, err = res.LastInsertId()
				}
			}
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("save", "user", 0, err)
	}

	for i, u := range users {
		u.ID = ids[i]
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanUser
// ─────────────────────────────────────────────────────────────────────────────

// scanUser scans the base user row; comments are attached by the caller.
func scanUser(row *db.Row) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Name); err != nil {
		return nil, err
	}
	return u, nil
}

var (
	_ UserRepository = (*userRepo)(nil)
	_ UserResolver   = (*userRepo)(nil)
)
