package insights

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is the model that writes the reports.
	DefaultModel = "claude-sonnet-4-20250514"
	// DefaultMaxTokens bounds the length of a report.
	DefaultMaxTokens = 1024
)

// Completer sends a single-turn prompt to a language model and returns the
// text of its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnthropicCompleter is a Completer backed by the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicCompleter creates a completer for apiKey. Extra options (for
// example option.WithBaseURL in tests) are passed to the SDK client.
func NewAnthropicCompleter(apiKey string, opts ...option.RequestOption) *AnthropicCompleter {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(DefaultModel),
		maxTokens: DefaultMaxTokens,
	}
}

// Complete returns the first text block of the reply, or "" when the reply
// has none.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}
