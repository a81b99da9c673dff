package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGoogleModel is the model used when none is configured.
const DefaultGoogleModel = "gemini-1.5-pro"

// GoogleGenerator implements Generator using Google's Gemini API.
//
// Close should be called when the generator is no longer needed to release
// the underlying gRPC connection.
type GoogleGenerator struct {
	client *genai.Client
	model  string
	name   string
}

// NewGoogleGenerator creates a Gemini-backed generator.
// Returns an error if apiKey is empty or the client cannot be constructed.
// An empty model selects DefaultGoogleModel.
func NewGoogleGenerator(ctx context.Context, apiKey, model string) (*GoogleGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &GoogleGenerator{
		client: client,
		model:  model,
		name:   "google",
	}, nil
}

// Close releases the underlying client resources.
func (g *GoogleGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Name returns "google".
func (g *GoogleGenerator) Name() string { return g.name }

// Model returns the configured model identifier.
func (g *GoogleGenerator) Model() string { return g.model }

// Generate sends the prompt to Gemini and concatenates the text parts of
// the first candidate.
func (g *GoogleGenerator) Generate(ctx context.Context, prompt string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, mapContextErr(err, g.name)
	}

	model := g.client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Response{}, mapProviderError(err, g.name)
	}

	return parseGeminiResponse(resp, g.name)
}

// parseGeminiResponse extracts the completion text and token usage from a
// Gemini response. An empty candidate list is treated as a retryable
// failure since it usually indicates safety filtering or truncation.
func parseGeminiResponse(resp *genai.GenerateContentResponse, provider string) (Response, error) {
	if resp == nil {
		return Response{}, &ProviderError{
			Code:      "empty_response",
			Message:   fmt.Sprintf("nil response from %s API", provider),
			Retryable: true,
		}
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	if len(resp.Candidates) == 0 {
		return Response{}, &ProviderError{
			Code:      "empty_response",
			Message:   fmt.Sprintf("no candidates in %s response", provider),
			Retryable: true,
		}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Response{}, &ProviderError{
			Code:      "empty_response",
			Message:   fmt.Sprintf("empty content in %s response", provider),
			Retryable: true,
		}
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	return Response{Text: text, TokensUsed: tokensUsed}, nil
}
