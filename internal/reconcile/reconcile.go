// Package reconcile merges task records that diverge across branches into a
// single board: remote snapshots are folded into the local records by a
// conflict strategy, and tasks whose newest sighting is outside the active
// directory are dropped.
package reconcile

import (
	"context"
	"errors"
	"time"

	"boardsync/internal/store"
)

// ErrCancelled is returned when a load is stopped by Cache.Cancel. Callers
// should treat it as a shutdown signal rather than a failure.
var ErrCancelled = errors.New("reconcile: cancelled")

// VCS is the read surface of the version control backend.
type VCS interface {
	Fetch(ctx context.Context) error
	ListRemoteBranches(ctx context.Context) ([]string, error)
	ListBranches(ctx context.Context) ([]store.BranchRef, error)
	ListFiles(ctx context.Context, ref, dir string) ([]string, error)
	ReadFile(ctx context.Context, ref, filePath string) (string, error)
	LastModified(ctx context.Context, ref, filePath string) (time.Time, bool, error)
}

// LocalStore lists the active records of the working tree.
type LocalStore interface {
	ListActive(ctx context.Context) ([]store.Task, error)
}

// Publisher receives every board produced by a successful load.
type Publisher interface {
	Publish(ctx context.Context, board store.Board) error
}

// ProgressFunc receives human readable progress messages.
type ProgressFunc func(message string)

func (fn ProgressFunc) emit(message string) {
	if fn != nil {
		fn(message)
	}
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}
