package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/repoatlas/repoatlas/internal/pipeline/store"
)

type testState struct {
	Values   []string `json:"values"`
	Feedback string   `json:"feedback"`
}

func appendStage(id, value string) Descriptor[testState] {
	return Descriptor[testState]{
		Stage: StageFunc[testState]{
			StageID: id,
			Fn: func(ctx context.Context, s testState) (testState, error) {
				s.Values = append(s.Values, value)
				return s, nil
			},
		},
	}
}

func passGate(id string) Gate[testState] {
	return GateFunc[testState]{
		GateID: id,
		Fn: func(ctx context.Context, s testState) Verdict {
			return Verdict{Passed: true, Score: 1}
		},
	}
}

// fastBackoff keeps retry sleeps negligible in tests.
func fastBackoff() Option[testState] {
	return WithBackoff[testState](time.Millisecond, 2*time.Millisecond)
}

func countTransitions(trs []Transition, to Status) int {
	n := 0
	for _, tr := range trs {
		if tr.To == to {
			n++
		}
	}
	return n
}

func TestControllerHappyPath(t *testing.T) {
	stages := []Descriptor[testState]{
		appendStage("fetch", "f"),
		appendStage("analyze", "a"),
		appendStage("synthesize", "s"),
	}
	stages[0].Gate = passGate("data-quality")
	stages[2].Gate = passGate("final-quality")

	ctrl, err := NewController(stages, fastBackoff())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != StatusComplete {
		t.Errorf("Status = %s, want COMPLETE", res.Status)
	}
	if len(res.State.Values) != 3 {
		t.Errorf("Values = %v, want 3 entries in order", res.State.Values)
	}
	if got := countTransitions(res.Transitions, StatusRetrying); got != 0 {
		t.Errorf("unexpected RETRYING transitions: %d", got)
	}
}

func TestControllerGateRejectionRetriesThenPasses(t *testing.T) {
	// The gate rejects twice and passes on the third attempt, within the
	// default budget of two re-attempts.
	attempts := 0
	rejections := 0
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "analyze",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					attempts++
					return s, nil
				},
			},
			Gate: GateFunc[testState]{
				GateID: "analysis-quality",
				Fn: func(ctx context.Context, s testState) Verdict {
					if rejections < 2 {
						rejections++
						return Verdict{Passed: false, Feedback: "unparseable review"}
					}
					return Verdict{Passed: true}
				},
			},
			ApplyVerdict: func(s testState, v Verdict) testState {
				s.Feedback = v.Feedback
				return s
			},
		},
		appendStage("synthesize", "s"),
	}

	ctrl, err := NewController(stages, fastBackoff())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != StatusComplete {
		t.Fatalf("Status = %s, want COMPLETE", res.Status)
	}
	if attempts != 3 {
		t.Errorf("stage invocations = %d, want 3", attempts)
	}
	if got := countTransitions(res.Transitions, StatusRetrying); got != 2 {
		t.Errorf("RETRYING transitions = %d, want 2", got)
	}
}

func TestControllerAbortsAfterBudgetExhausted(t *testing.T) {
	attempts := 0
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "analyze",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					attempts++
					return s, nil
				},
			},
			Gate: GateFunc[testState]{
				GateID: "analysis-quality",
				Fn: func(ctx context.Context, s testState) Verdict {
					return Verdict{Passed: false, Feedback: "not good enough"}
				},
			},
			MaxRetries: 2,
		},
	}

	ctrl, err := NewController(stages, fastBackoff())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if res.Status != StatusAborted {
		t.Errorf("Status = %s, want ABORTED", res.Status)
	}
	// Initial attempt plus two re-attempts, aborted on the third rejection.
	if attempts != 3 {
		t.Errorf("stage invocations = %d, want 3", attempts)
	}

	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Code != "RETRIES_EXHAUSTED" {
		t.Errorf("expected RETRIES_EXHAUSTED, got %v", err)
	}
}

func TestControllerNonRetryableErrorAbortsImmediately(t *testing.T) {
	permanent := &fakeErr{msg: "invalid api key", retry: false}
	attempts := 0
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "analyze",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					attempts++
					return s, permanent
				},
			},
		},
	}

	ctrl, err := NewController(stages, fastBackoff())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if res.Status != StatusAborted {
		t.Errorf("Status = %s, want ABORTED", res.Status)
	}
	if attempts != 1 {
		t.Errorf("stage invocations = %d, want 1 (no retry on permanent error)", attempts)
	}

	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Code != "STAGE_FAILED" {
		t.Errorf("expected STAGE_FAILED, got %v", err)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestControllerRetryableErrorUsesBudgetAndHook(t *testing.T) {
	transient := &fakeErr{msg: "503 service unavailable", retry: true}
	attempts := 0
	var hookCalls []int
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "analyze",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					attempts++
					if attempts < 3 {
						return s, transient
					}
					return s, nil
				},
			},
			MaxRetries: 2,
		},
	}

	ctrl, err := NewController(stages, fastBackoff(),
		WithRetryHook[testState](func(stageID string, attempt int, err error) {
			hookCalls = append(hookCalls, attempt)
		}))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != StatusComplete {
		t.Errorf("Status = %s, want COMPLETE", res.Status)
	}
	if attempts != 3 {
		t.Errorf("stage invocations = %d, want 3", attempts)
	}
	if len(hookCalls) != 2 {
		t.Errorf("retry hook calls = %d, want 2", len(hookCalls))
	}
}

func TestControllerStageTimeout(t *testing.T) {
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "analyze",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					<-ctx.Done()
					return s, ctx.Err()
				},
			},
			MaxRetries: 1,
		},
	}

	ctrl, err := NewController(stages, fastBackoff(),
		WithStageTimeout[testState](10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(context.Background(), "run-1", testState{})
	if err == nil {
		t.Fatal("expected timeout abort, got nil error")
	}
	if res.Status != StatusAborted {
		t.Errorf("Status = %s, want ABORTED", res.Status)
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PipelineError, got %T", err)
	}
	if perr.Code != "RETRIES_EXHAUSTED" {
		t.Errorf("Code = %s, want RETRIES_EXHAUSTED (timeouts are retryable)", perr.Code)
	}
}

func TestControllerCancellationBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stages := []Descriptor[testState]{
		{
			Stage: StageFunc[testState]{
				StageID: "fetch",
				Fn: func(ctx context.Context, s testState) (testState, error) {
					cancel()
					return s, nil
				},
			},
		},
		appendStage("analyze", "a"),
	}

	ctrl, err := NewController(stages, fastBackoff())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	res, err := ctrl.Run(ctx, "run-1", testState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Status != StatusAborted {
		t.Errorf("Status = %s, want ABORTED", res.Status)
	}
}

func TestControllerSavesSnapshotPerAttempt(t *testing.T) {
	mem := store.NewMemStore[testState]()
	stages := []Descriptor[testState]{
		appendStage("fetch", "f"),
		appendStage("analyze", "a"),
	}

	ctrl, err := NewController(stages, fastBackoff(), WithStore[testState](mem))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	if _, err := ctrl.Run(context.Background(), "run-1", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	state, step, err := mem.LoadLatest(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if step != 2 {
		t.Errorf("latest step = %d, want 2", step)
	}
	if len(state.Values) != 2 {
		t.Errorf("snapshot values = %v, want 2 entries", state.Values)
	}
}

func TestNewControllerValidation(t *testing.T) {
	tests := []struct {
		name   string
		stages []Descriptor[testState]
	}{
		{name: "empty pipeline", stages: nil},
		{name: "nil stage", stages: []Descriptor[testState]{{}}},
		{
			name: "duplicate ids",
			stages: []Descriptor[testState]{
				appendStage("fetch", "a"),
				appendStage("fetch", "b"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.stages)
			var perr *PipelineError
			if !errors.As(err, &perr) || perr.Code != "INVALID_PIPELINE" {
				t.Errorf("expected INVALID_PIPELINE, got %v", err)
			}
		})
	}
}

type fakeErr struct {
	msg   string
	retry bool
}

func (e *fakeErr) Error() string     { return e.msg }
func (e *fakeErr) IsRetryable() bool { return e.retry }
