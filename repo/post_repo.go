package repo

import (
	"context"
	"fmt"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
)

// PostRepository persists posts. Every post has an owning user that is
// resolved through a UserResolver on save and on load.
type PostRepository interface {
	// Save inserts a transient post. The owner must exist; otherwise a
	// PersistenceError wrapping ErrOwnerNotFound is returned.
	Save(ctx context.Context, p *models.Post) (*models.Post, error)

	FindByID(ctx context.Context, id int64) (*models.Post, bool, error)

	// FindByUserID returns the posts of one user ordered by id. All posts in
	// the result share the same *models.User.
	FindByUserID(ctx context.Context, userID int64) ([]*models.Post, error)

	// Update overwrites title, content and owner.
	Update(ctx context.Context, p *models.Post) error

	Delete(ctx context.Context, id int64) error
	ExistsByID(ctx context.Context, id int64) (bool, error)
}

type postRepo struct {
	p     db.Provider
	users UserResolver
}

// NewPostRepo returns a PostRepository backed by p. Owners are loaded
// through users.
func NewPostRepo(p db.Provider, users UserResolver) PostRepository {
	return &postRepo{p: p, users: users}
}

const (
	sqlInsertPost = `
		INSERT INTO posts (title, content, user_id)
		VALUES ($1, $2, $3)`

	sqlGetPostByID = `
		SELECT id, title, content, user_id
		FROM   posts
		WHERE  id = $1`

	sqlPostsByUser = `
		SELECT id, title, content, user_id
		FROM   posts
		WHERE  user_id = $1
		ORDER  BY id`

	sqlUpdatePost = `
		UPDATE posts
		SET    title = $1, content = $2, user_id = $3
		WHERE  id = $4`

	sqlDeletePost = `
		DELETE FROM posts WHERE id = $1`

	sqlPostExists = `
		SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`
)

// resolveOwner loads the owner of a post. It never holds a connection of its
// own while the user repository runs.
func (r *postRepo) resolveOwner(ctx context.Context, userID int64) (*models.User, error) {
	owner, ok, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrOwnerNotFound, userID)
	}
	return owner, nil
}

func (r *postRepo) Save(ctx context.Context, p *models.Post) (*models.Post, error) {
	if p == nil {
		return nil, nilEntity("post")
	}
	if !p.Transient() {
		return nil, alreadyPersisted("post", p.ID)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	owner, err := r.resolveOwner(ctx, p.UserID())
	if err != nil {
		return nil, persistErr("save", "post", 0, err)
	}

	var id int64
	err = r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		id, err = insertID(ctx, q, sqlInsertPost, p.Title, p.Content, owner.ID)
		return err
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			err = fmt.Errorf("%w: %w", ErrOwnerNotFound, err)
		}
		return nil, persistErr("save", "post", 0, err)
	}
	p.ID = id
	p.User = owner
	return p, nil
}

func (r *postRepo) FindByID(ctx context.Context, id int64) (*models.Post, bool, error) {
	var (
		p       *models.Post
		ownerID int64
	)
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		p, ownerID, err = scanPost(q.QueryRow(ctx, sqlGetPostByID, id))
		return err
	})
	switch {
	case db.IsNotFound(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("repo/post: find %d: %w", id, err)
	}

	if p.User, err = r.resolveOwner(ctx, ownerID); err != nil {
		return nil, false, fmt.Errorf("repo/post: find %d: %w", id, err)
	}
	return p, true, nil
}

func (r *postRepo) FindByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	owner, ok, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("repo/post: by user %d: %w", userID, err)
	}
	if !ok {
		return []*models.Post{}, nil
	}

	posts := []*models.Post{}
	err = r.p.WithConn(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, sqlPostsByUser, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p := &models.Post{User: owner}
			var ownerID int64
			if err := rows.Scan(&p.ID, &p.Title, &p.Content, &ownerID); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			posts = append(posts, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("repo/post: by user %d: %w", userID, err)
	}
	return posts, nil
}

func (r *postRepo) Update(ctx context.Context, p *models.Post) error {
	if p == nil {
		return nilEntity("post")
	}
	if p.Transient() {
		return notPersisted("post")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	owner, err := r.resolveOwner(ctx, p.UserID())
	if err != nil {
		return persistErr("update", "post", p.ID, err)
	}

	err = r.p.WithConn(ctx, func(q db.Querier) error {
		return updateOne(ctx, q, sqlUpdatePost, sqlPostExists, p.ID,
			p.Title, p.Content, owner.ID, p.ID)
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			err = fmt.Errorf("%w: %w", ErrOwnerNotFound, err)
		}
		return persistErr("update", "post", p.ID, err)
	}
	p.User = owner
	return nil
}

func (r *postRepo) Delete(ctx context.Context, id int64) error {
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, sqlDeletePost, id)
		return err
	})
	return persistErr("delete", "post", id, err)
}

func (r *postRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		ok, err = exists(ctx, q, sqlPostExists, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("repo/post: exists %d: %w", id, err)
	}
	return ok, nil
}

// scanPost scans a post row and returns the owner id separately; the owner
// itself is resolved by the caller once the connection is released.
func scanPost(row *db.Row) (*models.Post, int64, error) {
	p := &models.Post{}
	var ownerID int64
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &ownerID); err != nil {
		return nil, 0, err
	}
	return p, ownerID, nil
}

var _ PostRepository = (*postRepo)(nil)
