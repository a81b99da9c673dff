// Package report renders the final analysis state into a PDF document,
// degrading to plain text when PDF generation fails.
package report

import "github.com/repoatlas/repoatlas/internal/analysis"

// QualitySummary condenses the quality gate outcomes of a finished run.
type QualitySummary struct {
	// OverallApproved is true only when every quality gate approved.
	OverallApproved bool

	// RepositoriesAnalyzed counts the repositories that were fetched and
	// analyzed.
	RepositoriesAnalyzed int

	// TotalFilesProcessed counts files across all analyzed repositories.
	TotalFilesProcessed int

	DataQuality     analysis.QualityReview
	AnalysisQuality analysis.QualityReview
	FinalQuality    analysis.QualityReview
}

// Summarize derives the quality summary from the final pipeline state.
func Summarize(state analysis.State) QualitySummary {
	return QualitySummary{
		OverallApproved: state.DataReview.Approved &&
			state.AnalysisReview.Approved &&
			state.FinalReview.Approved,
		RepositoriesAnalyzed: len(state.Repos),
		TotalFilesProcessed:  state.TotalFilesProcessed(),
		DataQuality:          state.DataReview,
		AnalysisQuality:      state.AnalysisReview,
		FinalQuality:         state.FinalReview,
	}
}

// status renders an approval flag for the summary table.
func status(approved bool) string {
	if approved {
		return "Approved"
	}
	return "Issues Found"
}
