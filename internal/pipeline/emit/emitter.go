// Package emit provides pluggable observability for pipeline runs.
//
// The pipeline controller reports every state-machine transition as an
// Event. Backends implement Emitter: LogEmitter writes text or JSONL to a
// writer, OTelEmitter converts events to OpenTelemetry spans, and
// NullEmitter discards everything.
package emit

// Emitter receives observability events from pipeline execution.
//
// Implementations should be non-blocking, safe for concurrent use, and
// resilient: a failing backend must not crash the run. Emit should not
// panic; errors are handled internally.
type Emitter interface {
	// Emit sends an event to the configured backend.
	Emit(event Event)
}

// NullEmitter discards all events. It is the controller default when no
// emitter is configured.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops every event.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards the event.
func (*NullEmitter) Emit(Event) {}
