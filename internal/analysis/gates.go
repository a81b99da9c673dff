package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/repoatlas/repoatlas/internal/llm"
	"github.com/repoatlas/repoatlas/internal/pipeline"
)

// unparseableFeedback is the fail-closed verdict feedback used when a
// judgment review errors out or cannot be interpreted.
const unparseableFeedback = "unparseable review"

// reviewJudgment asks the reviewer backend to judge the prompt and parses
// the APPROVED/NEEDS_IMPROVEMENT convention from the response. Any failure
// or malformed review fails closed.
func reviewJudgment(ctx context.Context, selector *llm.Selector, prompt string) pipeline.Verdict {
	now := time.Now()

	gen, err := selector.Select(llm.RoleReviewer)
	if err != nil {
		return pipeline.Verdict{Passed: false, Feedback: unparseableFeedback, CheckedAt: now}
	}

	resp, err := gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return pipeline.Verdict{Passed: false, Feedback: unparseableFeedback, CheckedAt: now}
	}

	approved := strings.Contains(strings.ToUpper(resp.Text), "APPROVED")
	score := 0.0
	if approved {
		score = 1.0
	}
	return pipeline.Verdict{
		Passed:    approved,
		Score:     score,
		Feedback:  resp.Text,
		CheckedAt: now,
	}
}

// dataQualityGate admits fetched data that passes a structural check and a
// reviewer judgment.
type dataQualityGate struct {
	selector *llm.Selector
}

// ID returns "data-quality".
func (g *dataQualityGate) ID() string { return GateDataQuality }

// Evaluate checks structure first (deterministic, no network), then asks
// the reviewer.
func (g *dataQualityGate) Evaluate(ctx context.Context, s State) pipeline.Verdict {
	if v, ok := checkDataStructure(s); !ok {
		return v
	}
	return reviewJudgment(ctx, g.selector, dataQualityPrompt(s))
}

// checkDataStructure verifies at least one repository was fetched with
// usable metadata and files. Pure function of the state.
func checkDataStructure(s State) (pipeline.Verdict, bool) {
	now := time.Now()

	if len(s.Repos) == 0 {
		return pipeline.Verdict{Passed: false, Feedback: "no repositories fetched", CheckedAt: now}, false
	}
	for _, repo := range s.Repos {
		if repo.Name == "" {
			return pipeline.Verdict{Passed: false, Feedback: "repository with empty metadata", CheckedAt: now}, false
		}
	}
	for _, repo := range s.Repos {
		if len(repo.Files) > 0 {
			return pipeline.Verdict{}, true
		}
	}
	return pipeline.Verdict{Passed: false, Feedback: "no repository contains files", CheckedAt: now}, false
}

// analysisQualityGate judges the per-repository analyses.
type analysisQualityGate struct {
	selector *llm.Selector
}

// ID returns "analysis-quality".
func (g *analysisQualityGate) ID() string { return GateAnalysisQuality }

// Evaluate requires one analysis per fetched repository, then asks the
// reviewer.
func (g *analysisQualityGate) Evaluate(ctx context.Context, s State) pipeline.Verdict {
	if len(s.Analyses) == 0 || len(s.Analyses) != len(s.Repos) {
		return pipeline.Verdict{
			Passed:    false,
			Feedback:  "analysis count does not match repository count",
			CheckedAt: time.Now(),
		}
	}
	return reviewJudgment(ctx, g.selector, analysisQualityPrompt(s.Analyses))
}

// finalQualityGate judges the synthesized report.
type finalQualityGate struct {
	selector *llm.Selector
}

// ID returns "final-quality".
func (g *finalQualityGate) ID() string { return GateFinalQuality }

// Evaluate requires a non-empty report, then asks the reviewer.
func (g *finalQualityGate) Evaluate(ctx context.Context, s State) pipeline.Verdict {
	if strings.TrimSpace(s.FinalReport) == "" {
		return pipeline.Verdict{
			Passed:    false,
			Feedback:  "final report is empty",
			CheckedAt: time.Now(),
		}
	}
	return reviewJudgment(ctx, g.selector, finalQualityPrompt(s.FinalReport))
}
