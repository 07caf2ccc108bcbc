package models

// Comment represents a row in the "comments" table. Every comment belongs to
// exactly one user and one post.
type Comment struct {
	ID     int64
	Text   string
	UserID int64
	PostID int64
}
