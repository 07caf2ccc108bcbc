package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
)

// CommentRepository reads comments. Comments are written outside this
// layer; the repository only loads them.
type CommentRepository interface {
	FindByUserID(ctx context.Context, userID int64) ([]models.Comment, error)
	FindByPostID(ctx context.Context, postID int64) ([]models.Comment, error)
}

type commentRepo struct {
	p db.Provider
}

// NewCommentRepo returns a CommentRepository backed by p.
func NewCommentRepo(p db.Provider) CommentRepository {
	return &commentRepo{p: p}
}

const (
	sqlCommentsByUser = `
		SELECT id, text, user_id, post_id
		FROM   comments
		WHERE  user_id = $1
		ORDER  BY id`

	sqlCommentsByPost = `
		SELECT id, text, user_id, post_id
		FROM   comments
		WHERE  post_id = $1
		ORDER  BY id`
)

// FindByUserID returns the comments written by one user, across all posts.
func (r *commentRepo) FindByUserID(ctx context.Context, userID int64) ([]models.Comment, error) {
	var out []models.Comment
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		out, err = commentsByUser(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo/comment: by user %d: %w", userID, err)
	}
	return out, nil
}

// FindByPostID returns the comments on one post.
func (r *commentRepo) FindByPostID(ctx context.Context, postID int64) ([]models.Comment, error) {
	var out []models.Comment
	err := r.p.WithConn(ctx, func(q db.Querier) error {
		var err error
		out, err = queryComments(ctx, q, sqlCommentsByPost, postID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo/comment: by post %d: %w", postID, err)
	}
	return out, nil
}

// commentsByUser is the second step of the user aggregate load. It runs on
// the caller's session so both reads share a connection.
func commentsByUser(ctx context.Context, q db.Querier, userID int64) ([]models.Comment, error) {
	return queryComments(ctx, q, sqlCommentsByUser, userID)
}

// commentBatchSize caps the ids bound into one IN list. SQLite accepts 32766
// bind parameters and Postgres 65535; a page of users may be larger.
const commentBatchSize = 1000

// commentsByUsers loads the comments of several users and groups them by
// user id, issuing one query per commentBatchSize ids. Users without
// comments are absent from the map. Each group is ordered by comment id.
func commentsByUsers(ctx context.Context, q db.Querier, userIDs []int64) (map[int64][]models.Comment, error) {
	grouped := make(map[int64][]models.Comment, len(userIDs))
	for start := 0; start < len(userIDs); start += commentBatchSize {
		end := min(start+commentBatchSize, len(userIDs))
		batch := userIDs[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query := fmt.Sprintf(`
		SELECT id, text, user_id, post_id
		FROM   comments
		WHERE  user_id IN (%s)
		ORDER  BY id`, strings.Join(placeholders, ", "))

		comments, err := queryComments(ctx, q, query, args...)
		if err != nil {
			return nil, err
		}
		for _, c := range comments {
			grouped[c.UserID] = append(grouped[c.UserID], c)
		}
	}
	return grouped, nil
}

// queryComments never returns a nil slice on success.
func queryComments(ctx context.Context, q db.Querier, query string, args ...any) ([]models.Comment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.UserID, &c.PostID); err != nil {
			return nil, fmt.Errorf("repo/comment: scan: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
