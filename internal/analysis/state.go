// Package analysis defines the repository analysis pipeline: fetch,
// per-repository analysis, and synthesis, each followed by a quality gate.
//
// The stages accumulate into State, a typed snapshot of everything the
// run has produced. Gates judge the state with a reviewer backend and
// record their verdicts back into it so the final report can show them.
package analysis

import (
	"time"

	"github.com/repoatlas/repoatlas/internal/githubrepo"
)

// Stage and gate identifiers.
const (
	StageFetch      = "fetch"
	StageAnalyze    = "analyze"
	StageSynthesize = "synthesize"

	GateDataQuality     = "data-quality"
	GateAnalysisQuality = "analysis-quality"
	GateFinalQuality    = "final-quality"
)

// QualityReview is a recorded gate verdict.
type QualityReview struct {
	// Review is the reviewer's full response text.
	Review string `json:"review"`

	// Approved reports whether the reviewer approved the output.
	Approved bool `json:"approved"`

	// Reviewer names the gate that produced the review.
	Reviewer string `json:"reviewer"`

	// CheckedAt records when the review happened.
	CheckedAt time.Time `json:"checked_at"`
}

// RepoFailure records a repository that could not be fetched.
type RepoFailure struct {
	// Name is the repository name as requested.
	Name string `json:"name"`

	// Reason is the human-readable failure cause.
	Reason string `json:"reason"`
}

// State is the accumulated pipeline state. Each stage reads the fields of
// its predecessors and writes its own; gates record their verdicts in the
// review fields.
type State struct {
	// Username is the GitHub account under analysis.
	Username string `json:"username"`

	// RepoFilter is "all" or a comma-separated repository list.
	RepoFilter string `json:"repo_filter"`

	// Repos holds the fetched repositories.
	Repos []githubrepo.Repository `json:"repos"`

	// FailedRepos lists repositories that could not be fetched. The run
	// continues as long as at least one repository succeeded.
	FailedRepos []RepoFailure `json:"failed_repos"`

	// Analyses holds one analysis per fetched repository, in Repos order.
	Analyses []string `json:"analyses"`

	// FinalReport is the synthesized multi-repository report.
	FinalReport string `json:"final_report"`

	// Gate verdicts, recorded after each gate evaluation.
	DataReview     QualityReview `json:"data_review"`
	AnalysisReview QualityReview `json:"analysis_review"`
	FinalReview    QualityReview `json:"final_review"`

	// GateFeedback maps a stage ID to the most recent rejection feedback,
	// injected into the stage's next attempt.
	GateFeedback map[string]string `json:"gate_feedback,omitempty"`

	// TokensUsed accumulates provider token usage across the run.
	TokensUsed int `json:"tokens_used"`
}

// NewState creates the initial state for a run.
func NewState(username, repoFilter string) State {
	return State{
		Username:   username,
		RepoFilter: repoFilter,
	}
}

// TotalFilesProcessed sums the processed file counts across fetched
// repositories.
func (s State) TotalFilesProcessed() int {
	total := 0
	for _, r := range s.Repos {
		total += r.ProcessedFiles
	}
	return total
}

// feedbackFor returns the recorded rejection feedback for a stage, or ""
// when the stage has not been rejected.
func (s State) feedbackFor(stageID string) string {
	return s.GateFeedback[stageID]
}

// withFeedback returns a copy of the state with the stage's rejection
// feedback recorded.
func (s State) withFeedback(stageID, feedback string) State {
	fb := make(map[string]string, len(s.GateFeedback)+1)
	for k, v := range s.GateFeedback {
		fb[k] = v
	}
	fb[stageID] = feedback
	s.GateFeedback = fb
	return s
}
