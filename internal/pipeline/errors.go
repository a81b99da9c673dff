package pipeline

import "fmt"

// PipelineError represents a pipeline execution failure with a
// machine-readable code.
type PipelineError struct {
	// Message is the human-readable error message.
	Message string

	// Code identifies the failure mode:
	//   - STAGE_TIMEOUT: stage exceeded its execution deadline
	//   - RETRIES_EXHAUSTED: gate rejections or retryable errors used up
	//     the stage's attempt budget
	//   - STAGE_FAILED: stage returned a non-retryable error
	//   - INVALID_PIPELINE: descriptor list failed validation
	Code string

	// StageID is the stage where the failure occurred, if any.
	StageID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.StageID != "" {
		return fmt.Sprintf("pipeline error [%s] at stage %s: %s", e.Code, e.StageID, e.Message)
	}
	return fmt.Sprintf("pipeline error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient. Stage timeouts are
// retryable within the attempt budget; the remaining codes are terminal.
func (e *PipelineError) IsRetryable() bool {
	return e.Code == "STAGE_TIMEOUT"
}

// retryable reports whether err advertises itself as transient via an
// IsRetryable method. Unknown errors are treated as permanent.
func retryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if ok := asRetryable(err, &r); ok {
		return r.IsRetryable()
	}
	return false
}

// asRetryable walks the error chain looking for an IsRetryable method.
func asRetryable(err error, target *interface{ IsRetryable() bool }) bool {
	for err != nil {
		if r, ok := err.(interface{ IsRetryable() bool }); ok {
			*target = r
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
