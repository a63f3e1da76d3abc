package cortex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// ErrClaudeNotConfigured is returned when the engineering model has no
// API key. The engineer responder falls back to the Pro path on it.
var ErrClaudeNotConfigured = errors.New("anthropic API key not configured")

// Claude adapts the Anthropic Messages API to the Chatter capability.
// It backs the engineering responder only.
type Claude struct {
	client sdk.Client
	log    *zap.Logger
}

// NewClaude creates a Claude adapter. An empty API key yields
// ErrClaudeNotConfigured so callers can arrange their fallback.
func NewClaude(apiKey string, log *zap.Logger) (*Claude, error) {
	if apiKey == "" {
		return nil, ErrClaudeNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Claude{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		log:    log.Named("claude"),
	}, nil
}

// Complete runs a non-streaming Messages.New request.
func (c *Claude) Complete(ctx context.Context, model, system string, messages []Message, opts GenOptions) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(opts.MaxOutputTokens),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(float64(opts.Temperature))
	}

	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic returned no text")
	}

	c.log.Debug("generation complete",
		zap.String("model", model),
		zap.Int("response_len", len(text)))
	return text, nil
}
