package adapter

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// sessionClassifier asks a small model whether a truncated first line of
// agent output looks like the start of a session-header envelope worth
// waiting on, versus plain prose the adapter should stop buffering for.
// It exists only as a tie-breaker for StreamingJSON.ExtractSessionID when
// no newline has arrived after a large amount of output has accumulated;
// it is never on the per-chunk hot path and is off unless explicitly
// enabled, since it costs an API round trip.
type sessionClassifier struct {
	client anthropic.Client
	model  anthropic.Model
}

// newSessionClassifier returns nil, false when VC_ADAPTER_AI_CLASSIFY is
// not set to "true", so callers can skip the feature entirely with a
// single nil check.
func newSessionClassifier() (*sessionClassifier, bool) {
	if os.Getenv("VC_ADAPTER_AI_CLASSIFY") != "true" {
		return nil, false
	}
	return &sessionClassifier{
		client: anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))),
		model:  anthropic.Model("claude-3-5-haiku-20241022"),
	}, true
}

// looksLikeSessionHeader asks whether the given truncated first line could
// still grow into a JSON envelope carrying a session id, so the adapter
// knows whether to keep buffering or give up and treat the chunk as plain
// prose. Any API error is treated as "keep buffering" (the safe default).
func (c *sessionClassifier) looksLikeSessionHeader(ctx context.Context, truncatedLine string) bool {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				"Reply with only \"yes\" or \"no\". Does this truncated line of " +
					"program output look like the start of a JSON object (an " +
					"unterminated \"{...\") rather than plain text?\n\n" + truncatedLine,
			)),
		},
	})
	if err != nil {
		return true
	}
	for _, block := range msg.Content {
		if block.Type == "text" && strings.Contains(strings.ToLower(block.Text), "yes") {
			return true
		}
	}
	return false
}
