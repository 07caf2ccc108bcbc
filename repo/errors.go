package repo

import (
	"errors"
	"fmt"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/models"
)

var (
	// ErrNotFound is returned by Update when the id does not exist. It is the
	// db sentinel, so db.IsNotFound matches it as well.
	ErrNotFound = db.ErrNotFound

	// ErrOwnerNotFound is returned when a post references a user that does
	// not exist.
	ErrOwnerNotFound = errors.New("repo: post owner not found")
)

// PersistenceError reports a failed write. Err is the mapped storage error
// (db.ErrDuplicateKey, db.ErrConnectionFailed, ...) or one of ErrNotFound and
// ErrOwnerNotFound, and is reachable through errors.Is.
type PersistenceError struct {
	Op     string // "save", "update", "delete"
	Entity string // "user", "post"
	ID     int64  // zero for saves
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("repo: %s %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("repo: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err carries a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func persistErr(op, entity string, id int64, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Entity: entity, ID: id, Err: err}
}

func alreadyPersisted(entity string, id int64) error {
	return fmt.Errorf("%w: %s already has id %d", models.ErrInvalid, entity, id)
}

func notPersisted(entity string) error {
	return fmt.Errorf("%w: %s has no id", models.ErrInvalid, entity)
}

func nilEntity(entity string) error {
	return fmt.Errorf("%w: nil %s", models.ErrInvalid, entity)
}
