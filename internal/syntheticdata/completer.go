package syntheticdata

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// Completer generates a single fake value for a tag that has no
// deterministic generator. It is an interface so tests can supply a fake
// instead of calling out to a real provider.
type Completer interface {
	Complete(ctx context.Context, tag string) (string, error)
}

// AnthropicCompleter fulfills Completer with a single short completion
// call per tag, used as the fallback path when Generators has no entry.
type AnthropicCompleter struct {
	client anthropic.Client
	model  anthropic.Model
}

// completionModel is pinned to the fast, cheap tier — tag-value
// completion needs no reasoning, just a short plausible string.
const completionModel anthropic.Model = "claude-3-5-haiku-latest"

func NewAnthropicCompleter(apiKey string) *AnthropicCompleter {
	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  completionModel,
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, tag string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 32,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("Generate one plausible, realistic example value for the entity tag %q. Reply with only the value, no punctuation or explanation.", tag),
			)),
		},
	})
	if err != nil {
		return "", apperr.Unavailable("llm completion for tag %s failed: %v", tag, err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", apperr.Internal(nil, "llm completion for tag %s returned no text block", tag)
}
