package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DefaultGrokModel is the model used when none is configured.
	DefaultGrokModel = "grok-beta"

	// grokBaseURL is xAI's OpenAI-compatible API endpoint.
	grokBaseURL = "https://api.x.ai/v1"
)

// GrokGenerator implements Generator using xAI's Grok API.
// The API is OpenAI-compatible, so the generator reuses the OpenAI SDK
// pointed at xAI's endpoint.
type GrokGenerator struct {
	chat  openaiChatClient
	model string
	name  string
}

// NewGrokGenerator creates a Grok-backed generator.
// Returns an error if apiKey is empty. An empty model selects
// DefaultGrokModel.
func NewGrokGenerator(apiKey, model string) (*GrokGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("grok: API key cannot be empty")
	}
	if model == "" {
		model = DefaultGrokModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(grokBaseURL),
	)

	return &GrokGenerator{
		chat:  &client.Chat.Completions,
		model: model,
		name:  "grok",
	}, nil
}

// Name returns "grok".
func (g *GrokGenerator) Name() string { return g.name }

// Model returns the configured model identifier.
func (g *GrokGenerator) Model() string { return g.model }

// Generate sends the prompt as a single user message and returns the
// completion text with the total tokens consumed.
func (g *GrokGenerator) Generate(ctx context.Context, prompt string) (Response, error) {
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
