package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel is the model used when none is configured.
const DefaultOpenAIModel = "gpt-4o"

// openaiChatClient is the slice of the OpenAI SDK the generator needs.
// Tests substitute a stub for it.
type openaiChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIGenerator implements Generator using OpenAI's chat completion API.
//
// The generator is safe for concurrent use; the underlying SDK client
// handles thread-safety internally.
type OpenAIGenerator struct {
	chat  openaiChatClient
	model string
	name  string
}

// NewOpenAIGenerator creates an OpenAI-backed generator.
// Returns an error if apiKey is empty. An empty model selects
// DefaultOpenAIModel.
func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIGenerator{
		chat:  &client.Chat.Completions,
		model: model,
		name:  "openai",
	}, nil
}

// Name returns "openai".
func (g *OpenAIGenerator) Name() string { return g.name }

// Model returns the configured model identifier.
func (g *OpenAIGenerator) Model() string { return g.model }

// Generate sends the prompt as a single user message and returns the
// completion text with the total tokens consumed.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Response, error) {
	// Check context before making an expensive API call.
	if err := ctx.Err(); err != nil {
		return Response{}, mapContextErr(err, g.name)
	}

	completion, err := g.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	})
	if err != nil {
		return Response{}, mapProviderError(err, g.name)
	}

	if len(completion.Choices) == 0 {
		return Response{}, &ProviderError{
			Code:      "empty_response",
			Message:   fmt.Sprintf("no response from %s API", g.name),
			Retryable: true,
		}
	}

	return Response{
		Text:       completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

// mapContextErr converts context errors into ProviderError values.
// Cancellation is passed through so callers can stop the run.
func mapContextErr(err error, provider string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{
			Code:      "timeout",
			Message:   fmt.Sprintf("%s API request timed out", provider),
			Retryable: true,
		}
	}
	return err
}

// mapProviderError classifies SDK errors into retryable and permanent
// ProviderError values. The SDKs do not expose stable typed errors for
// every failure mode, so classification falls back to message matching.
func mapProviderError(err error, provider string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return mapContextErr(err, provider)
	}

	lowerErr := strings.ToLower(err.Error())

	// Rate limit errors (retryable).
	if strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "429") ||
		strings.Contains(lowerErr, "too many requests") ||
		strings.Contains(lowerErr, "resource_exhausted") {
		return &ProviderError{
			Code:      "rate_limited",
			Message:   fmt.Sprintf("%s API rate limit exceeded", provider),
			Retryable: true,
		}
	}

	// Authentication errors (permanent).
	if strings.Contains(lowerErr, "invalid api key") ||
		strings.Contains(lowerErr, "incorrect api key") ||
		strings.Contains(lowerErr, "401") ||
		strings.Contains(lowerErr, "403") ||
		strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "authentication") {
		return &ProviderError{
			Code:      "invalid_api_key",
			Message:   fmt.Sprintf("%s API key is invalid or expired", provider),
			Retryable: false,
		}
	}

	// Quota exceeded errors (permanent).
	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "insufficient_quota") ||
		strings.Contains(lowerErr, "billing") {
		return &ProviderError{
			Code:      "quota_exceeded",
			Message:   fmt.Sprintf("%s API quota exceeded", provider),
			Retryable: false,
		}
	}

	// Server errors (retryable).
	if strings.Contains(lowerErr, "500") ||
		strings.Contains(lowerErr, "502") ||
		strings.Contains(lowerErr, "503") ||
		strings.Contains(lowerErr, "504") ||
		strings.Contains(lowerErr, "internal server error") ||
		strings.Contains(lowerErr, "bad gateway") ||
		strings.Contains(lowerErr, "service unavailable") ||
		strings.Contains(lowerErr, "gateway timeout") {
		return &ProviderError{
			Code:      "server_error",
			Message:   fmt.Sprintf("%s API server error: %v", provider, err),
			Retryable: true,
		}
	}

	// Network errors (retryable).
	if strings.Contains(lowerErr, "connection") ||
		strings.Contains(lowerErr, "timeout") ||
		strings.Contains(lowerErr, "network") {
		return &ProviderError{
			Code:      "network_error",
			Message:   fmt.Sprintf("network error calling %s API: %v", provider, err),
			Retryable: true,
		}
	}

	return &ProviderError{
		Code:      "api_error",
		Message:   fmt.Sprintf("%s API error: %v", provider, err),
		Retryable: false,
	}
}
