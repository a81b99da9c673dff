package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/repoatlas/repoatlas/internal/githubrepo"
	"github.com/repoatlas/repoatlas/internal/llm"
)

func TestReviewJudgmentApprovalParsing(t *testing.T) {
	tests := []struct {
		name   string
		review string
		want   bool
	}{
		{"plain approved", "Overall assessment: APPROVED", true},
		{"lowercase approved", "the work is approved without reservation", true},
		{"needs improvement", "Overall assessment: NEEDS_IMPROVEMENT", false},
		{"rejection prose", "This analysis is shallow and must be redone.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviewer := &llm.MockGenerator{
				NameVal:   "anthropic",
				Responses: []llm.Response{{Text: tt.review}},
			}
			v := reviewJudgment(context.Background(), selectorWith(reviewer), "judge this")
			if v.Passed != tt.want {
				t.Errorf("Passed = %v, want %v for %q", v.Passed, tt.want, tt.review)
			}
			if v.Passed && v.Score != 1.0 {
				t.Errorf("Score = %v, want 1.0 on approval", v.Score)
			}
			if v.Feedback != tt.review {
				t.Errorf("Feedback = %q, want review text preserved", v.Feedback)
			}
		})
	}
}

func TestReviewJudgmentFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		reviewer llm.Generator
	}{
		{
			"generation error",
			&llm.MockGenerator{NameVal: "anthropic", Errors: []error{llm.ErrRateLimited}},
		},
		{
			"empty review",
			&llm.MockGenerator{NameVal: "anthropic", Responses: []llm.Response{{Text: "   "}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := reviewJudgment(context.Background(), selectorWith(tt.reviewer), "judge this")
			if v.Passed {
				t.Error("judgment must fail closed")
			}
			if v.Feedback != unparseableFeedback {
				t.Errorf("Feedback = %q, want %q", v.Feedback, unparseableFeedback)
			}
		})
	}
}

func TestReviewJudgmentNoReviewerConfigured(t *testing.T) {
	sel := llm.NewSelector(nil, nil)
	v := reviewJudgment(context.Background(), sel, "judge this")
	if v.Passed {
		t.Error("judgment must fail closed when no reviewer is available")
	}
}

// Structural checks run before any reviewer call, so a malformed state must
// produce the same rejection every time without touching the backend.
func TestDataQualityGateStructuralChecks(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		feedback string
	}{
		{
			"no repositories",
			State{},
			"no repositories fetched",
		},
		{
			"empty repo name",
			State{Repos: []githubrepo.Repository{{Name: ""}}},
			"repository with empty metadata",
		},
		{
			"no files anywhere",
			State{Repos: []githubrepo.Repository{{Name: "empty"}}},
			"no repository contains files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviewer := &llm.MockGenerator{
				NameVal:   "anthropic",
				Responses: []llm.Response{{Text: "APPROVED"}},
			}
			gate := &dataQualityGate{selector: selectorWith(reviewer)}

			for i := 0; i < 3; i++ {
				v := gate.Evaluate(context.Background(), tt.state)
				if v.Passed {
					t.Fatal("structural defect must reject")
				}
				if !strings.Contains(v.Feedback, tt.feedback) {
					t.Fatalf("Feedback = %q, want substring %q", v.Feedback, tt.feedback)
				}
			}
			if reviewer.Calls() != 0 {
				t.Errorf("reviewer called %d times, want 0 for structural rejection", reviewer.Calls())
			}
		})
	}
}

func TestDataQualityGateDelegatesToReviewer(t *testing.T) {
	reviewer := &llm.MockGenerator{
		NameVal:   "anthropic",
		Responses: []llm.Response{{Text: "Overall assessment: APPROVED"}},
	}
	gate := &dataQualityGate{selector: selectorWith(reviewer)}

	state := State{Repos: []githubrepo.Repository{testRepo("alpha", 1)}}
	v := gate.Evaluate(context.Background(), state)
	if !v.Passed {
		t.Errorf("expected pass, got feedback %q", v.Feedback)
	}
	if reviewer.Calls() != 1 {
		t.Errorf("reviewer calls = %d, want 1", reviewer.Calls())
	}
	prompts := reviewer.Prompts()
	if !strings.Contains(prompts[0], "Repository: alpha") {
		t.Error("review prompt missing repository data")
	}
}

func TestAnalysisQualityGateCountMismatch(t *testing.T) {
	reviewer := &llm.MockGenerator{
		NameVal:   "anthropic",
		Responses: []llm.Response{{Text: "APPROVED"}},
	}
	gate := &analysisQualityGate{selector: selectorWith(reviewer)}

	state := State{
		Repos:    []githubrepo.Repository{testRepo("a", 1), testRepo("b", 1)},
		Analyses: []string{"only one"},
	}
	v := gate.Evaluate(context.Background(), state)
	if v.Passed {
		t.Error("count mismatch must reject")
	}
	if reviewer.Calls() != 0 {
		t.Errorf("reviewer calls = %d, want 0", reviewer.Calls())
	}
}

func TestFinalQualityGateEmptyReport(t *testing.T) {
	reviewer := &llm.MockGenerator{
		NameVal:   "anthropic",
		Responses: []llm.Response{{Text: "APPROVED"}},
	}
	gate := &finalQualityGate{selector: selectorWith(reviewer)}

	v := gate.Evaluate(context.Background(), State{FinalReport: "  \n "})
	if v.Passed {
		t.Error("empty report must reject")
	}
	if reviewer.Calls() != 0 {
		t.Errorf("reviewer calls = %d, want 0", reviewer.Calls())
	}
}

func TestFinalQualityGateJudgesReport(t *testing.T) {
	reviewer := &llm.MockGenerator{
		NameVal:   "anthropic",
		Responses: []llm.Response{{Text: "NEEDS_IMPROVEMENT: summary is vague"}},
	}
	gate := &finalQualityGate{selector: selectorWith(reviewer)}

	v := gate.Evaluate(context.Background(), State{FinalReport: "portfolio report"})
	if v.Passed {
		t.Error("NEEDS_IMPROVEMENT must reject")
	}
	if !strings.Contains(v.Feedback, "summary is vague") {
		t.Errorf("Feedback = %q, want reviewer text", v.Feedback)
	}
}
