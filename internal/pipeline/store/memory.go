package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory RunStore. Snapshots live for the life of the
// process. Safe for concurrent use.
type MemStore[S any] struct {
	mu   sync.RWMutex
	runs map[string][]snapshot[S]
}

type snapshot[S any] struct {
	step    int
	stageID string
	state   S
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{runs: make(map[string][]snapshot[S])}
}

// SaveStep records the state after one stage attempt.
func (m *MemStore[S]) SaveStep(ctx context.Context, runID string, step int, stageID string, state S) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.runs[runID]
	for i := range snaps {
		if snaps[i].step == step {
			snaps[i] = snapshot[S]{step: step, stageID: stageID, state: state}
			return nil
		}
	}
	m.runs[runID] = append(snaps, snapshot[S]{step: step, stageID: stageID, state: state})
	return nil
}

// LoadLatest returns the snapshot with the highest step number.
func (m *MemStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return zero, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps, ok := m.runs[runID]
	if !ok || len(snaps) == 0 {
		return zero, 0, ErrNotFound
	}

	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.step > latest.step {
			latest = s
		}
	}
	return latest.state, latest.step, nil
}

// Steps returns how many snapshots exist for the run. Used in tests.
func (m *MemStore[S]) Steps(runID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs[runID])
}

// Close is a no-op for the in-memory store.
func (m *MemStore[S]) Close() error { return nil }
