// Package pipeline implements a linear, quality-gated stage pipeline.
//
// A pipeline is an ordered list of stages. Each stage transforms a state
// value; an optional gate evaluates the result and either admits it to the
// next stage or sends the stage back for another attempt with the gate's
// feedback attached. The Controller drives the state machine, persists a
// snapshot after every attempt, and reports transitions to the configured
// emitter and metrics.
package pipeline

import (
	"context"
	"time"
)

// Stage transforms the pipeline state. Implementations must be usable for
// repeated attempts: a rejected stage is re-run with feedback available in
// the state.
type Stage[S any] interface {
	// ID returns the stage identifier used in transitions, events, and
	// metrics labels.
	ID() string

	// Run executes the stage against the current state and returns the
	// updated state. Errors implementing IsRetryable() bool are retried
	// within the stage's attempt budget; other errors abort the run.
	Run(ctx context.Context, state S) (S, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc[S any] struct {
	StageID string
	Fn      func(ctx context.Context, state S) (S, error)
}

// ID returns the stage identifier.
func (s StageFunc[S]) ID() string { return s.StageID }

// Run invokes the wrapped function.
func (s StageFunc[S]) Run(ctx context.Context, state S) (S, error) {
	return s.Fn(ctx, state)
}

// Gate evaluates a stage's output. Structural gates are pure functions of
// the state and must be deterministic; judgment gates may consult an
// external reviewer and should fail closed on malformed responses.
type Gate[S any] interface {
	// ID returns the gate identifier used in transitions and metrics labels.
	ID() string

	// Evaluate judges the state produced by the stage.
	Evaluate(ctx context.Context, state S) Verdict
}

// GateFunc adapts a function to the Gate interface.
type GateFunc[S any] struct {
	GateID string
	Fn     func(ctx context.Context, state S) Verdict
}

// ID returns the gate identifier.
func (g GateFunc[S]) ID() string { return g.GateID }

// Evaluate invokes the wrapped function.
func (g GateFunc[S]) Evaluate(ctx context.Context, state S) Verdict {
	return g.Fn(ctx, state)
}

// Verdict is a gate's judgment of a stage's output.
type Verdict struct {
	// Passed reports whether the state may proceed to the next stage.
	Passed bool

	// Score is an optional numeric quality score in [0, 1].
	Score float64

	// Feedback carries the gate's full review text. On rejection it is
	// made available to the stage's next attempt.
	Feedback string

	// CheckedAt records when the gate evaluated the state.
	CheckedAt time.Time
}

// Descriptor binds a stage to its gate and retry budget.
type Descriptor[S any] struct {
	// Stage is the stage to execute. Required.
	Stage Stage[S]

	// Gate evaluates the stage's output. Nil means the stage always
	// advances.
	Gate Gate[S]

	// MaxRetries is the number of re-attempts allowed after rejections or
	// retryable errors. Zero means the controller default applies.
	MaxRetries int

	// ApplyVerdict folds a gate verdict into the state so the stage's next
	// attempt (and the final report) can see the review. Nil means
	// verdicts are not recorded in the state.
	ApplyVerdict func(state S, v Verdict) S
}

// Status is a pipeline state-machine status.
type Status string

const (
	// StatusPending means the stage has not started.
	StatusPending Status = "PENDING"

	// StatusRunning means the stage is executing.
	StatusRunning Status = "RUNNING"

	// StatusGated means the stage finished and its gate is evaluating.
	StatusGated Status = "GATED"

	// StatusRetrying means the gate rejected the output or the stage hit a
	// retryable error, and the stage will re-run.
	StatusRetrying Status = "RETRYING"

	// StatusComplete means every stage passed its gate.
	StatusComplete Status = "COMPLETE"

	// StatusAborted means the retry budget was exhausted or a
	// non-retryable error occurred.
	StatusAborted Status = "ABORTED"
)

// Transition records a single state-machine move for diagnostics and tests.
type Transition struct {
	StageID string
	From    Status
	To      Status
	Attempt int
	At      time.Time
}

// Result is the outcome of a pipeline run.
type Result[S any] struct {
	// State is the final accumulated state, valid even on abort.
	State S

	// Status is StatusComplete or StatusAborted.
	Status Status

	// Transitions is the full state-machine history in order.
	Transitions []Transition

	// Err is the error that aborted the run, nil on completion.
	Err error
}
