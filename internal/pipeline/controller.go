package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/repoatlas/repoatlas/internal/pipeline/emit"
	"github.com/repoatlas/repoatlas/internal/pipeline/store"
)

// DefaultMaxRetries is the per-stage re-attempt budget when the descriptor
// does not set one.
const DefaultMaxRetries = 2

// Controller drives the stage pipeline state machine.
//
// For each stage it runs the PENDING -> RUNNING -> GATED cycle, re-running
// rejected stages as RETRYING until the attempt budget is spent. A state
// snapshot is persisted after every attempt so an aborted run can be
// inspected. All transitions are reported to the emitter and metrics.
type Controller[S any] struct {
	stages  []Descriptor[S]
	st      store.RunStore[S]
	emitter emit.Emitter
	metrics *Metrics

	stageTimeout time.Duration
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	rng          *rand.Rand

	// onRetryable runs before each retry caused by a retryable stage
	// error (not a gate rejection). Callers use it to mark a failing
	// backend unavailable so the retry falls back to the next one.
	onRetryable func(stageID string, attempt int, err error)
}

// Option configures a Controller.
type Option[S any] func(*Controller[S])

// WithStore sets the snapshot store. Defaults to an in-memory store.
func WithStore[S any](st store.RunStore[S]) Option[S] {
	return func(c *Controller[S]) { c.st = st }
}

// WithEmitter sets the observability emitter. Defaults to NullEmitter.
func WithEmitter[S any](e emit.Emitter) Option[S] {
	return func(c *Controller[S]) { c.emitter = e }
}

// WithMetrics sets the Prometheus metrics collector. Nil disables metrics.
func WithMetrics[S any](m *Metrics) Option[S] {
	return func(c *Controller[S]) { c.metrics = m }
}

// WithStageTimeout sets the per-attempt execution deadline.
// Zero means no deadline.
func WithStageTimeout[S any](d time.Duration) Option[S] {
	return func(c *Controller[S]) { c.stageTimeout = d }
}

// WithMaxRetries sets the default per-stage re-attempt budget for
// descriptors that do not set their own.
func WithMaxRetries[S any](n int) Option[S] {
	return func(c *Controller[S]) { c.maxRetries = n }
}

// WithBackoff sets the retry backoff window. Defaults to 500ms base with a
// 10s cap.
func WithBackoff[S any](base, max time.Duration) Option[S] {
	return func(c *Controller[S]) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// WithRetryHook registers a callback invoked before each retry caused by a
// retryable stage error.
func WithRetryHook[S any](fn func(stageID string, attempt int, err error)) Option[S] {
	return func(c *Controller[S]) { c.onRetryable = fn }
}

// NewController creates a Controller over the ordered stage descriptors.
// Returns an error if the descriptor list is empty or malformed.
func NewController[S any](stages []Descriptor[S], opts ...Option[S]) (*Controller[S], error) {
	if len(stages) == 0 {
		return nil, &PipelineError{Code: "INVALID_PIPELINE", Message: "pipeline needs at least one stage"}
	}
	seen := make(map[string]bool, len(stages))
	for i, d := range stages {
		if d.Stage == nil {
			return nil, &PipelineError{Code: "INVALID_PIPELINE", Message: fmt.Sprintf("stage %d is nil", i)}
		}
		if seen[d.Stage.ID()] {
			return nil, &PipelineError{Code: "INVALID_PIPELINE", Message: fmt.Sprintf("duplicate stage id %q", d.Stage.ID())}
		}
		seen[d.Stage.ID()] = true
	}

	c := &Controller[S]{
		stages:     stages,
		st:         store.NewMemStore[S](),
		emitter:    emit.NewNullEmitter(),
		maxRetries: DefaultMaxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- retry jitter, not security
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes the pipeline against the initial state. The returned Result
// carries the final state, terminal status, and full transition history.
// The error matches Result.Err and is non-nil only on abort.
func (c *Controller[S]) Run(ctx context.Context, runID string, initial S) (Result[S], error) {
	res := Result[S]{State: initial}
	step := 0

	for _, desc := range c.stages {
		// Cancellation is honored between stages at minimum.
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, runID, res, desc.Stage.ID(), StatusPending, 0, err)
		}

		budget := desc.MaxRetries
		if budget <= 0 {
			budget = c.maxRetries
		}

		stageID := desc.Stage.ID()
		rejections := 0

		for attempt := 1; ; attempt++ {
			from := StatusPending
			if attempt > 1 {
				from = StatusRetrying
			}
			c.transition(&res, runID, stageID, from, StatusRunning, attempt, step, nil)

			start := time.Now()
			state, err := c.runWithTimeout(ctx, desc.Stage, res.State)
			latency := time.Since(start)

			if err != nil {
				c.recordLatency(stageID, latency, "error")
				if ctxErr := ctx.Err(); ctxErr != nil {
					return c.abort(ctx, runID, res, stageID, StatusRunning, attempt, ctxErr)
				}
				if !retryable(err) {
					return c.abort(ctx, runID, res, stageID, StatusRunning, attempt, &PipelineError{
						Code: "STAGE_FAILED", StageID: stageID,
						Message: err.Error(), Err: err,
					})
				}
				if attempt > budget {
					return c.abort(ctx, runID, res, stageID, StatusRunning, attempt, &PipelineError{
						Code: "RETRIES_EXHAUSTED", StageID: stageID,
						Message: fmt.Sprintf("stage failed after %d attempts: %v", attempt, err),
						Err:     err,
					})
				}
				c.recordRetry(stageID, "error")
				if c.onRetryable != nil {
					c.onRetryable(stageID, attempt, err)
				}
				c.transition(&res, runID, stageID, StatusRunning, StatusRetrying, attempt, step, map[string]interface{}{
					"error": err.Error(),
				})
				if err := c.sleep(ctx, attempt-1); err != nil {
					return c.abort(ctx, runID, res, stageID, StatusRetrying, attempt, err)
				}
				continue
			}

			res.State = state
			c.recordLatency(stageID, latency, "success")
			step++
			c.saveStep(ctx, runID, step, stageID, res.State)

			if desc.Gate == nil {
				c.transition(&res, runID, stageID, StatusRunning, StatusPending, attempt, step, nil)
				break
			}

			c.transition(&res, runID, stageID, StatusRunning, StatusGated, attempt, step, nil)
			verdict := desc.Gate.Evaluate(ctx, res.State)
			if verdict.CheckedAt.IsZero() {
				verdict.CheckedAt = time.Now()
			}
			if desc.ApplyVerdict != nil {
				res.State = desc.ApplyVerdict(res.State, verdict)
			}

			if verdict.Passed {
				c.transition(&res, runID, stageID, StatusGated, StatusPending, attempt, step, map[string]interface{}{
					"gate": desc.Gate.ID(), "score": verdict.Score,
				})
				break
			}

			rejections++
			c.recordGateRejection(desc.Gate.ID())
			if rejections > budget {
				return c.abort(ctx, runID, res, stageID, StatusGated, attempt, &PipelineError{
					Code: "RETRIES_EXHAUSTED", StageID: stageID,
					Message: fmt.Sprintf("gate %s rejected output %d times", desc.Gate.ID(), rejections),
				})
			}
			c.recordRetry(stageID, "gate_rejected")
			c.transition(&res, runID, stageID, StatusGated, StatusRetrying, attempt, step, map[string]interface{}{
				"gate": desc.Gate.ID(), "feedback": verdict.Feedback,
			})
			if err := c.sleep(ctx, rejections-1); err != nil {
				return c.abort(ctx, runID, res, stageID, StatusRetrying, attempt, err)
			}
		}
	}

	res.Status = StatusComplete
	last := c.stages[len(c.stages)-1].Stage.ID()
	c.transition(&res, runID, last, StatusPending, StatusComplete, 0, step, nil)
	return res, nil
}

// runWithTimeout executes one stage attempt under the configured deadline.
// A deadline hit is surfaced as a retryable STAGE_TIMEOUT error.
func (c *Controller[S]) runWithTimeout(ctx context.Context, stage Stage[S], state S) (S, error) {
	if c.stageTimeout <= 0 {
		return stage.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()

	out, err := stage.Run(timeoutCtx, state)
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, &PipelineError{
			Code: "STAGE_TIMEOUT", StageID: stage.ID(),
			Message: fmt.Sprintf("stage %s exceeded timeout of %v", stage.ID(), c.stageTimeout),
			Err:     err,
		}
	}
	return out, err
}

// abort finalizes the run in the ABORTED status, persisting the last state
// for diagnostics.
func (c *Controller[S]) abort(ctx context.Context, runID string, res Result[S], stageID string, from Status, attempt int, err error) (Result[S], error) {
	res.Status = StatusAborted
	res.Err = err
	c.transition(&res, runID, stageID, from, StatusAborted, attempt, len(res.Transitions), map[string]interface{}{
		"error": err.Error(),
	})
	// Best effort: the snapshot matters more on failure than on success.
	c.saveStep(context.WithoutCancel(ctx), runID, len(res.Transitions), stageID, res.State)
	return res, err
}

// transition records a state-machine move and emits it.
func (c *Controller[S]) transition(res *Result[S], runID, stageID string, from, to Status, attempt, step int, meta map[string]interface{}) {
	res.Transitions = append(res.Transitions, Transition{
		StageID: stageID,
		From:    from,
		To:      to,
		Attempt: attempt,
		At:      time.Now(),
	})
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["from"] = string(from)
	meta["attempt"] = attempt
	c.emitter.Emit(emit.Event{
		RunID:   runID,
		Step:    step,
		StageID: stageID,
		Msg:     transitionMsg(to),
		Meta:    meta,
	})
}

func transitionMsg(to Status) string {
	switch to {
	case StatusRunning:
		return "stage_start"
	case StatusGated:
		return "gate_check"
	case StatusRetrying:
		return "stage_retry"
	case StatusPending:
		return "stage_pass"
	case StatusComplete:
		return "pipeline_complete"
	case StatusAborted:
		return "pipeline_abort"
	default:
		return string(to)
	}
}

func (c *Controller[S]) saveStep(ctx context.Context, runID string, step int, stageID string, state S) {
	if err := c.st.SaveStep(ctx, runID, step, stageID, state); err != nil {
		c.emitter.Emit(emit.Event{
			RunID: runID, Step: step, StageID: stageID,
			Msg:  "snapshot_error",
			Meta: map[string]interface{}{"error": err.Error()},
		})
	}
}

// sleep waits out the exponential backoff for the given zero-based retry
// attempt, returning early if the context is cancelled.
func (c *Controller[S]) sleep(ctx context.Context, attempt int) error {
	delay := computeBackoff(attempt, c.baseDelay, c.maxDelay, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// computeBackoff calculates the retry delay using exponential backoff with
// jitter: min(base * 2^attempt, maxDelay) + jitter(0, base).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	jitter := time.Duration(rng.Int63n(int64(base)))
	return delay + jitter
}

func (c *Controller[S]) recordLatency(stageID string, d time.Duration, status string) {
	if c.metrics != nil {
		c.metrics.RecordStageLatency(stageID, d, status)
	}
}

func (c *Controller[S]) recordRetry(stageID, reason string) {
	if c.metrics != nil {
		c.metrics.IncrementRetries(stageID, reason)
	}
}

func (c *Controller[S]) recordGateRejection(gateID string) {
	if c.metrics != nil {
		c.metrics.IncrementGateRejections(gateID)
	}
}
