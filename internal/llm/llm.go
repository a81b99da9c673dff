// Package llm provides text generation backends for the analysis pipeline.
//
// Each backend wraps an official provider SDK (OpenAI, Anthropic, Google,
// xAI) behind the Generator interface so the pipeline stages stay
// provider-agnostic. Errors are mapped into ProviderError values that
// distinguish retryable transient failures from permanent ones.
package llm

import "context"

// Generator produces a completion for a single prompt.
//
// Implementations must respect context cancellation and timeouts, returning
// promptly when ctx.Done() is signaled. Failures should be returned as
// *ProviderError so callers can decide whether to retry or fall back to
// another backend.
type Generator interface {
	// Generate sends the prompt to the backend and returns the completion.
	Generate(ctx context.Context, prompt string) (Response, error)

	// Name returns the backend identifier ("openai", "anthropic", "google",
	// "grok"). Used for selection, logging, and metrics labels.
	Name() string

	// Model returns the concrete model identifier in use.
	Model() string
}

// Response is the result of a single generation call.
type Response struct {
	// Text is the completion text.
	Text string

	// TokensUsed is the total token count reported by the provider
	// (input plus output). Zero when the provider omits usage data.
	TokensUsed int
}

// Role identifies the pipeline function a backend is selected for.
// Different roles prefer different providers.
type Role string

const (
	// RoleAnalyzer produces per-repository technical analyses.
	RoleAnalyzer Role = "analyzer"

	// RoleReviewer judges stage output quality at the gates.
	RoleReviewer Role = "reviewer"

	// RoleSynthesizer combines analyses into the final report.
	RoleSynthesizer Role = "synthesizer"
)

// ProviderError represents a failure from a generation backend.
// It distinguishes retryable transient failures from permanent failures.
type ProviderError struct {
	// Code is the machine-readable error code for programmatic handling.
	Code string

	// Message is the human-readable error message for logging and display.
	Message string

	// Retryable indicates whether the operation can be retried with backoff.
	// True for transient failures (rate limits, timeouts, 5xx).
	// False for permanent failures (invalid credentials, quota exceeded).
	Retryable bool
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Message
}

// IsRetryable reports whether the failure is transient and worth retrying.
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// Common error sentinels for generation backends.
var (
	// ErrRateLimited indicates the API rate limit was exceeded (retryable).
	ErrRateLimited = &ProviderError{Code: "rate_limited", Message: "API rate limit exceeded", Retryable: true}

	// ErrTimeout indicates the request exceeded the timeout (retryable).
	ErrTimeout = &ProviderError{Code: "timeout", Message: "request timed out", Retryable: true}

	// ErrInvalidAPIKey indicates the API key is invalid or expired (permanent).
	ErrInvalidAPIKey = &ProviderError{Code: "invalid_api_key", Message: "API key is invalid or expired"}

	// ErrQuotaExceeded indicates the API quota has been exceeded (permanent).
	ErrQuotaExceeded = &ProviderError{Code: "quota_exceeded", Message: "API quota exceeded"}
)
