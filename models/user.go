// Package models holds the blog entities. Fields map 1-to-1 with columns;
// associations are filled in by the repositories, never lazily.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("models: invalid entity")

// User represents a row in the "users" table.
//
// ID is zero while the user is transient and is assigned by the identity
// column on save. Comments is only populated by a read, in primary-key order,
// and is never written back.
type User struct {
	ID       int64
	Name     string
	Comments []Comment
}

// Transient reports whether the user has not been saved yet.
func (u *User) Transient() bool { return u.ID == 0 }

// Validate checks the fields a save or update writes.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalid)
	}
	return nil
}
