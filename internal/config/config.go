// Package config loads and validates the process configuration from the
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrNoGenerationKey is returned by Validate when none of the generation
// backend API keys is set.
var ErrNoGenerationKey = errors.New("at least one generation API key is required (OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY or GROK_API_KEY)")

// Config is the full configuration surface, populated once at startup.
type Config struct {
	// GitHubToken authenticates repository fetches.
	GitHubToken string `env:"GITHUB_TOKEN,required"`

	// Generation backend API keys. At least one must be set.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	GrokAPIKey      string `env:"GROK_API_KEY"`

	// CloudRunURL and CloudRunToken enable the optional extended analysis
	// service. Both must be set for it to be used.
	CloudRunURL   string `env:"CLOUD_RUN_URL"`
	CloudRunToken string `env:"CLOUD_RUN_TOKEN"`

	// MaxRepos caps how many repositories one run analyzes.
	MaxRepos int `env:"REPOATLAS_MAX_REPOS,default=10"`

	// MaxFileBytes caps file content size; larger files are truncated.
	MaxFileBytes int `env:"REPOATLAS_MAX_FILE_BYTES,default=100000"`

	// MaxFiles caps how many files are fetched per repository.
	MaxFiles int `env:"REPOATLAS_MAX_FILES,default=50"`

	// StageTimeout bounds a single stage attempt.
	StageTimeout time.Duration `env:"REPOATLAS_TIMEOUT,default=30s"`

	// MaxRetries is the per-stage retry budget.
	MaxRetries int `env:"REPOATLAS_MAX_RETRIES,default=2"`
}

// Load reads the configuration from the process environment and validates
// it. No network calls are made.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from the given lookuper. Tests use a
// MapLookuper instead of the process environment.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks constraints envconfig tags cannot express.
func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" && c.GoogleAPIKey == "" && c.GrokAPIKey == "" {
		return ErrNoGenerationKey
	}
	if c.MaxRepos <= 0 {
		return fmt.Errorf("REPOATLAS_MAX_REPOS must be positive, got %d", c.MaxRepos)
	}
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("REPOATLAS_MAX_FILE_BYTES must be positive, got %d", c.MaxFileBytes)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("REPOATLAS_MAX_FILES must be positive, got %d", c.MaxFiles)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("REPOATLAS_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// ExtendedAnalysisEnabled reports whether the extended analysis service is
// fully configured.
func (c Config) ExtendedAnalysisEnabled() bool {
	return c.CloudRunURL != "" && c.CloudRunToken != ""
}
