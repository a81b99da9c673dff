// Package store persists pipeline state snapshots.
//
// The controller saves a snapshot of the accumulated state after every
// stage attempt, so an aborted run can be inspected after the fact.
// MemStore keeps snapshots for the life of the process; SQLiteStore writes
// them to a single-file database.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no snapshot exists for the requested run.
var ErrNotFound = errors.New("snapshot not found")

// RunStore persists per-step state snapshots for pipeline runs.
//
// Type parameter S is the state type; it must be JSON-serializable for
// database-backed implementations.
type RunStore[S any] interface {
	// SaveStep records the state after one stage attempt. Saving the same
	// (runID, step) twice overwrites the earlier snapshot.
	SaveStep(ctx context.Context, runID string, step int, stageID string, state S) error

	// LoadLatest returns the most recent snapshot for the run along with
	// its step number. Returns ErrNotFound if the run has no snapshots.
	LoadLatest(ctx context.Context, runID string) (S, int, error)

	// Close releases any resources held by the store.
	Close() error
}
