package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/repoatlas/repoatlas/internal/githubrepo"
	"github.com/repoatlas/repoatlas/internal/llm"
	"github.com/repoatlas/repoatlas/internal/pipeline"
)

// RepoFetcher is the repository access the fetch stage needs.
// *githubrepo.Fetcher implements it; tests use a stub.
type RepoFetcher interface {
	Fetch(ctx context.Context, owner, name string) (githubrepo.Repository, error)
	ListRepos(ctx context.Context, owner string) ([]string, error)
}

// ExtendedAnalyzer is an optional remote analysis service consulted during
// the analyze stage. *CloudRunClient implements it.
type ExtendedAnalyzer interface {
	Analyze(ctx context.Context, repoName string, files []githubrepo.FileRecord) (string, error)
}

// Stages builds the analysis pipeline from its collaborators.
type Stages struct {
	// Selector resolves roles to generation backends. Required.
	Selector *llm.Selector

	// Fetcher retrieves repositories. Required.
	Fetcher RepoFetcher

	// Extended is the optional remote analysis service. Nil disables it;
	// failures are ignored either way.
	Extended ExtendedAnalyzer

	// MaxRetries overrides the per-stage retry budget when positive.
	MaxRetries int
}

// Descriptors returns the ordered pipeline: fetch, analyze, synthesize,
// each bound to its quality gate.
func (a *Stages) Descriptors() []pipeline.Descriptor[State] {
	return []pipeline.Descriptor[State]{
		{
			Stage:        pipeline.StageFunc[State]{StageID: StageFetch, Fn: a.fetch},
			Gate:         &dataQualityGate{selector: a.Selector},
			MaxRetries:   a.MaxRetries,
			ApplyVerdict: applyVerdict(StageFetch, func(s *State) *QualityReview { return &s.DataReview }, "Data Quality Reviewer"),
		},
		{
			Stage:        pipeline.StageFunc[State]{StageID: StageAnalyze, Fn: a.analyze},
			Gate:         &analysisQualityGate{selector: a.Selector},
			MaxRetries:   a.MaxRetries,
			ApplyVerdict: applyVerdict(StageAnalyze, func(s *State) *QualityReview { return &s.AnalysisReview }, "Analysis Quality Reviewer"),
		},
		{
			Stage:        pipeline.StageFunc[State]{StageID: StageSynthesize, Fn: a.synthesize},
			Gate:         &finalQualityGate{selector: a.Selector},
			MaxRetries:   a.MaxRetries,
			ApplyVerdict: applyVerdict(StageSynthesize, func(s *State) *QualityReview { return &s.FinalReview }, "Final Quality Reviewer"),
		},
	}
}

// applyVerdict records a gate verdict into the matching review field and,
// on rejection, stores the feedback for the stage's next attempt.
func applyVerdict(stageID string, field func(*State) *QualityReview, reviewer string) func(State, pipeline.Verdict) State {
	return func(s State, v pipeline.Verdict) State {
		*field(&s) = QualityReview{
			Review:    v.Feedback,
			Approved:  v.Passed,
			Reviewer:  reviewer,
			CheckedAt: v.CheckedAt,
		}
		if !v.Passed {
			s = s.withFeedback(stageID, v.Feedback)
		}
		return s
	}
}

// fetch resolves the repository list and pulls each repository in order.
// Per-repository access failures are recorded and skipped; the stage fails
// only when nothing could be fetched.
func (a *Stages) fetch(ctx context.Context, s State) (State, error) {
	names, err := a.resolveRepoNames(ctx, s)
	if err != nil {
		return s, err
	}
	if len(names) == 0 {
		return s, fmt.Errorf("no repositories found for user %s: %w", s.Username, githubrepo.ErrRepoNotFound)
	}

	// Reset fetch results so a retried attempt starts clean.
	s.Repos = nil
	s.FailedRepos = nil

	for _, name := range names {
		repo, err := a.Fetcher.Fetch(ctx, s.Username, name)
		if err != nil {
			if errors.Is(err, githubrepo.ErrRepoNotFound) || errors.Is(err, githubrepo.ErrAccessDenied) {
				s.FailedRepos = append(s.FailedRepos, RepoFailure{Name: name, Reason: err.Error()})
				continue
			}
			return s, err
		}
		s.Repos = append(s.Repos, repo)
	}

	if len(s.Repos) == 0 {
		return s, fmt.Errorf("all %d repositories failed to fetch: %s: %w",
			len(s.FailedRepos), s.FailedRepos[0].Reason, githubrepo.ErrAccessDenied)
	}
	return s, nil
}

// resolveRepoNames turns the repo filter into a concrete name list.
func (a *Stages) resolveRepoNames(ctx context.Context, s State) ([]string, error) {
	if s.RepoFilter == "all" {
		return a.Fetcher.ListRepos(ctx, s.Username)
	}

	var names []string
	for _, part := range strings.Split(s.RepoFilter, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// analyze produces one analysis per fetched repository, consulting the
// optional extended analyzer when configured.
func (a *Stages) analyze(ctx context.Context, s State) (State, error) {
	gen, err := a.Selector.Select(llm.RoleAnalyzer)
	if err != nil {
		return s, err
	}

	feedback := s.feedbackFor(StageAnalyze)

	// Reset so a retried attempt does not duplicate analyses.
	s.Analyses = nil

	for _, repo := range s.Repos {
		resp, err := gen.Generate(ctx, analyzerPrompt(repo, feedback))
		if err != nil {
			return s, err
		}
		s.TokensUsed += resp.TokensUsed

		analysis := resp.Text
		if a.Extended != nil {
			// The remote service is optional; failures never block the run.
			if insight, err := a.Extended.Analyze(ctx, repo.Name, repo.Files); err == nil && insight != "" {
				analysis += "\n\nCloud Analysis: " + insight
			}
		}
		s.Analyses = append(s.Analyses, analysis)
	}

	return s, nil
}

// synthesize combines the analyses into the final report.
func (a *Stages) synthesize(ctx context.Context, s State) (State, error) {
	gen, err := a.Selector.Select(llm.RoleSynthesizer)
	if err != nil {
		return s, err
	}

	resp, err := gen.Generate(ctx, synthesizerPrompt(s.Analyses, s.feedbackFor(StageSynthesize)))
	if err != nil {
		return s, err
	}

	s.TokensUsed += resp.TokensUsed
	s.FinalReport = resp.Text
	return s, nil
}
