package models

import (
	"fmt"
	"strings"
)

// Post represents a row in the "posts" table. User is the owning user; the
// post references it by foreign key and does not own its lifetime.
type Post struct {
	ID      int64
	Title   string
	Content string
	User    *User
}

// Transient reports whether the post has not been saved yet.
func (p *Post) Transient() bool { return p.ID == 0 }

// UserID returns the owner's id, or zero when no owner is set.
func (p *Post) UserID() int64 {
	if p.User == nil {
		return 0
	}
	return p.User.ID
}

// Validate checks required fields and that the owner has been persisted.
func (p *Post) Validate() error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: post title is required", ErrInvalid)
	case strings.TrimSpace(p.Content) == "":
		return fmt.Errorf("%w: post content is required", ErrInvalid)
	case p.User == nil:
		return fmt.Errorf("%w: post owner is required", ErrInvalid)
	case p.User.Transient():
		return fmt.Errorf("%w: post owner must be saved first", ErrInvalid)
	}
	return nil
}
