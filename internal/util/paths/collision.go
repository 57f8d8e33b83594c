// Package paths decides whether a download name is free at a destination and
// derives file names from descriptor titles.
package paths

import (
	"context"
	"errors"
	"fmt"

	"github.com/mixtape/mixtape/internal/storage"
)

// Store is the part of a storage backend collision checks need.
type Store interface {
	ResolvePath(fileName string) (storage.Locator, error)
	Exists(ctx context.Context, loc storage.Locator) (bool, error)
	Delete(ctx context.Context, loc storage.Locator) error
}

// Result is the outcome of a collision check.
type Result int

const (
	// Clear means nothing is stored under the name.
	Clear Result = iota
	// Conflict means an artifact already exists and the caller must decide.
	Conflict
)

func (r Result) String() string {
	if r == Conflict {
		return "conflict"
	}
	return "clear"
}

// Decision is the caller's answer to a Conflict.
type Decision int

const (
	// Undecided is the zero value. A conflict left undecided never proceeds.
	Undecided Decision = iota
	// Overwrite deletes the existing artifact and proceeds.
	Overwrite
	// Abort stops before anything is written.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Overwrite:
		return "overwrite"
	case Abort:
		return "abort"
	default:
		return "undecided"
	}
}

// ErrCollisionAbort is returned when the caller chose Abort. It records a
// decision rather than a failure.
var ErrCollisionAbort = errors.New("download aborted: file already exists")

// ConflictError reports a conflict that still needs a decision.
type ConflictError struct {
	FileName string
	Locator  storage.Locator
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists at %s", e.FileName, e.Locator)
}

// Check is a resolved name together with its collision result.
type Check struct {
	FileName string
	Locator  storage.Locator
	Result   Result
}

// CheckCollision resolves fileName against store and reports whether an
// artifact already occupies it.
func CheckCollision(ctx context.Context, store Store, fileName string) (Check, error) {
	loc, err := store.ResolvePath(fileName)
	if err != nil {
		return Check{}, err
	}
	exists, err := store.Exists(ctx, loc)
	if err != nil {
		return Check{}, err
	}
	c := Check{FileName: fileName, Locator: loc, Result: Clear}
	if exists {
		c.Result = Conflict
	}
	return c, nil
}

// Apply carries out decision for a checked name. A Clear check proceeds
// regardless of decision. A Conflict proceeds only on Overwrite, after the
// existing artifact is deleted; Abort yields ErrCollisionAbort and Undecided
// yields a *ConflictError. Nothing is touched unless the result is nil.
func Apply(ctx context.Context, store Store, c Check, decision Decision) error {
	if c.Result == Clear {
		return nil
	}
	switch decision {
	case Overwrite:
		if err := store.Delete(ctx, c.Locator); err != nil {
			return fmt.Errorf("failed to remove existing %s: %w", c.FileName, err)
		}
		return nil
	case Abort:
		return ErrCollisionAbort
	default:
		return &ConflictError{FileName: c.FileName, Locator: c.Locator}
	}
}

// IsConflict reports whether err is an undecided conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
