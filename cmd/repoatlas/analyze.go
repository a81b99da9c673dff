package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/repoatlas/repoatlas/internal/analysis"
	"github.com/repoatlas/repoatlas/internal/config"
	"github.com/repoatlas/repoatlas/internal/githubrepo"
	"github.com/repoatlas/repoatlas/internal/llm"
	"github.com/repoatlas/repoatlas/internal/pipeline"
	"github.com/repoatlas/repoatlas/internal/pipeline/emit"
	"github.com/repoatlas/repoatlas/internal/pipeline/store"
	"github.com/repoatlas/repoatlas/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a GitHub user's repositories",
	Long: `Fetch a GitHub user's repositories, analyze each one through the
quality-gated generation pipeline, and render the combined result as a
PDF report.

Examples:
  repoatlas analyze --user octocat
  repoatlas analyze --user microsoft --repos vscode,TypeScript
  repoatlas analyze --user octocat --repos demo --out custom_report.pdf
  repoatlas analyze --user octocat --enhanced --trace-db runs.db`,
	RunE: runAnalyze,
}

var (
	analyzeUser         string
	analyzeRepos        string
	analyzeOut          string
	analyzeEnhanced     bool
	analyzeQuiet        bool
	analyzeValidateOnly bool
	analyzeMetricsAddr  string
	analyzeTraceDB      string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "GitHub username to analyze")
	analyzeCmd.Flags().StringVar(&analyzeRepos, "repos", "all", "Repository selection: 'all' or a comma-separated list")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "reports/repo_report.pdf", "Output PDF file path")
	analyzeCmd.Flags().BoolVar(&analyzeEnhanced, "enhanced", false, "Add quality-review appendix and metadata page to the report")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "quiet", false, "Suppress progress output")
	analyzeCmd.Flags().BoolVar(&analyzeValidateOnly, "validate-only", false, "Validate configuration and exit without analyzing")
	analyzeCmd.Flags().StringVar(&analyzeMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")
	analyzeCmd.Flags().StringVar(&analyzeTraceDB, "trace-db", "", "Persist state snapshots to this SQLite file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return exitErr(exitConfig, err)
	}

	if analyzeValidateOnly {
		if !analyzeQuiet {
			fmt.Println("Configuration valid. System ready for analysis.")
		}
		return nil
	}

	if analyzeUser == "" {
		return exitErr(exitConfig, errors.New("--user is required"))
	}
	if analyzeRepos == "" {
		return exitErr(exitConfig, errors.New("--repos cannot be empty (use 'all' for all repositories)"))
	}

	selector, cleanup, err := buildSelector(ctx, cfg)
	if err != nil {
		return exitErr(exitConfig, err)
	}
	defer cleanup()

	fetcher := githubrepo.NewFetcher(cfg.GitHubToken, githubrepo.Limits{
		MaxFiles:     cfg.MaxFiles,
		MaxFileBytes: cfg.MaxFileBytes,
		MaxRepos:     cfg.MaxRepos,
	})

	stages := &analysis.Stages{
		Selector:   selector,
		Fetcher:    fetcher,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.ExtendedAnalysisEnabled() {
		stages.Extended = analysis.NewCloudRunClient(cfg.CloudRunURL, cfg.CloudRunToken)
	}

	opts := []pipeline.Option[analysis.State]{
		pipeline.WithStageTimeout[analysis.State](cfg.StageTimeout),
		pipeline.WithMaxRetries[analysis.State](cfg.MaxRetries),
	}

	var emitter emit.Emitter = emit.NewNullEmitter()
	if !analyzeQuiet {
		emitter = emit.NewLogEmitter(os.Stderr, false)
	}
	opts = append(opts, pipeline.WithEmitter[analysis.State](emitter))

	var metrics *pipeline.Metrics
	if analyzeMetricsAddr != "" {
		metrics = pipeline.NewMetrics(nil)
		opts = append(opts, pipeline.WithMetrics[analysis.State](metrics))
		go serveMetrics(analyzeMetricsAddr)
	}

	if analyzeTraceDB != "" {
		st, err := store.NewSQLiteStore[analysis.State](analyzeTraceDB)
		if err != nil {
			return exitErr(exitConfig, fmt.Errorf("opening trace database: %w", err))
		}
		defer func() { _ = st.Close() }()
		opts = append(opts, pipeline.WithStore[analysis.State](st))
	}

	opts = append(opts, pipeline.WithRetryHook[analysis.State](providerFallbackHook(selector, metrics)))

	ctrl, err := pipeline.NewController(stages.Descriptors(), opts...)
	if err != nil {
		return exitErr(exitConfig, err)
	}

	if !analyzeQuiet {
		fmt.Printf("Target: GitHub user %q\n", analyzeUser)
		fmt.Printf("Scope: %s\n", analyzeRepos)
		fmt.Printf("Output: %s\n", analyzeOut)
		fmt.Printf("Backends: %v\n\n", selector.Names())
	}

	runID := fmt.Sprintf("run-%s", time.Now().Format("20060102-150405"))
	res, err := ctrl.Run(ctx, runID, analysis.NewState(analyzeUser, analyzeRepos))
	if err != nil {
		if !analyzeQuiet {
			fmt.Fprintln(os.Stderr, "\nTroubleshooting tips:")
			fmt.Fprintln(os.Stderr, "  - Verify your GitHub token has proper permissions")
			fmt.Fprintln(os.Stderr, "  - Check that the username and repository names are correct")
			fmt.Fprintln(os.Stderr, "  - Ensure your generation API keys are valid")
			fmt.Fprintln(os.Stderr, "  - Try with a smaller repository first (--repos specific-repo)")
			fmt.Fprintln(os.Stderr, "  - Use --validate-only to check your configuration")
		}
		return exitErr(exitAborted, fmt.Errorf("analysis aborted: %w", err))
	}

	outPath, degraded, err := report.Render(res.State, analyzeOut, analyzeEnhanced)
	if err != nil {
		// The analysis itself succeeded; report the rendering failure but
		// do not discard the run.
		fmt.Fprintf(os.Stderr, "Warning: report rendering failed: %v\n", err)
	} else {
		if degraded {
			fmt.Fprintln(os.Stderr, "Warning: PDF generation failed, wrote plain text instead")
		}
		fmt.Printf("Report saved to: %s\n", outPath)
	}

	printSummary(res.State)

	if len(res.State.FailedRepos) > 0 {
		return exitErr(exitPartial, nil)
	}
	return nil
}

// buildSelector constructs one generation backend per configured API key.
// The returned cleanup releases backend resources.
func buildSelector(ctx context.Context, cfg config.Config) (*llm.Selector, func(), error) {
	var backends []llm.Generator
	cleanup := func() {}

	if cfg.OpenAIAPIKey != "" {
		gen, err := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, "")
		if err != nil {
			return nil, cleanup, err
		}
		backends = append(backends, gen)
	}
	if cfg.AnthropicAPIKey != "" {
		gen, err := llm.NewAnthropicGenerator(cfg.AnthropicAPIKey, "")
		if err != nil {
			return nil, cleanup, err
		}
		backends = append(backends, gen)
	}
	if cfg.GoogleAPIKey != "" {
		gen, err := llm.NewGoogleGenerator(ctx, cfg.GoogleAPIKey, "")
		if err != nil {
			return nil, cleanup, err
		}
		backends = append(backends, gen)
		cleanup = func() { _ = gen.Close() }
	}
	if cfg.GrokAPIKey != "" {
		gen, err := llm.NewGrokGenerator(cfg.GrokAPIKey, "")
		if err != nil {
			return nil, cleanup, err
		}
		backends = append(backends, gen)
	}

	return llm.NewSelector(backends, nil), cleanup, nil
}

// providerFallbackHook marks the backend behind a failing stage unavailable
// so the retried attempt selects the next one in the role's priority list.
func providerFallbackHook(selector *llm.Selector, metrics *pipeline.Metrics) func(stageID string, attempt int, err error) {
	roleFor := map[string]llm.Role{
		analysis.StageAnalyze:    llm.RoleAnalyzer,
		analysis.StageSynthesize: llm.RoleSynthesizer,
	}

	return func(stageID string, attempt int, err error) {
		var perr *llm.ProviderError
		if !errors.As(err, &perr) {
			return
		}
		role, ok := roleFor[stageID]
		if !ok {
			return
		}
		gen, serr := selector.Select(role)
		if serr != nil {
			return
		}
		if metrics != nil {
			metrics.IncrementProviderFailures(gen.Name(), perr.Code)
		}
		selector.MarkUnavailable(gen.Name())
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
	}
}

func printSummary(state analysis.State) {
	summary := report.Summarize(state)

	fmt.Println("\nAnalysis Complete")
	fmt.Printf("Overall Quality: %s\n", approvalText(summary.OverallApproved))
	fmt.Printf("Repositories Analyzed: %d\n", summary.RepositoriesAnalyzed)
	fmt.Printf("Files Processed: %d\n", summary.TotalFilesProcessed)
	fmt.Printf("Tokens Used: %d\n", state.TokensUsed)

	if !summary.OverallApproved {
		fmt.Println("\nQuality issues:")
		if !summary.DataQuality.Approved {
			fmt.Println("  - Data Quality: issues found during data fetching")
		}
		if !summary.AnalysisQuality.Approved {
			fmt.Println("  - Analysis Quality: depth or accuracy concerns")
		}
		if !summary.FinalQuality.Approved {
			fmt.Println("  - Final Quality: report formatting or completeness issues")
		}
	}

	for _, failure := range state.FailedRepos {
		fmt.Printf("Skipped %s: %s\n", failure.Name, failure.Reason)
	}
}

func approvalText(approved bool) string {
	if approved {
		return "Approved"
	}
	return "Issues Found"
}
