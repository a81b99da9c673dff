package emit

// Event is a single observability record from a pipeline run.
type Event struct {
	// RunID identifies the pipeline run.
	RunID string

	// Step is the snapshot counter at the time of the event.
	Step int

	// StageID identifies the stage the event concerns.
	StageID string

	// Msg names the event ("stage_start", "gate_check", "stage_retry",
	// "stage_pass", "pipeline_complete", "pipeline_abort").
	Msg string

	// Meta carries event-specific fields such as attempt numbers, gate
	// feedback, and error strings.
	Meta map[string]interface{}
}
