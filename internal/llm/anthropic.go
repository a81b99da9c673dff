package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is the model used when none is configured.
const DefaultAnthropicModel = "claude-3-5-sonnet-20240620"

// anthropicMessageClient is the slice of the Anthropic SDK the generator
// needs. Tests substitute a stub for it.
type anthropicMessageClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicGenerator implements Generator using Anthropic's Messages API.
type AnthropicGenerator struct {
	messages anthropicMessageClient
	model    string
	name     string
}

// NewAnthropicGenerator creates a Claude-backed generator.
// Returns an error if apiKey is empty. An empty model selects
// DefaultAnthropicModel.
func NewAnthropicGenerator(apiKey, model string) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicGenerator{
		messages: &client.Messages,
		model:    model,
		name:     "anthropic",
	}, nil
}

// Name returns "anthropic".
func (g *AnthropicGenerator) Name() string { return g.name }

// Model returns the configured model identifier.
func (g *AnthropicGenerator) Model() string { return g.model }

// Generate sends the prompt as a single user message and concatenates the
// text blocks of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, mapContextErr(err, g.name)
	}

	message, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{}, mapProviderError(err, g.name)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Text:       text,
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}
