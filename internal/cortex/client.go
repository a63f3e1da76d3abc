// Package cortex provides the model adapters behind the responder
// nodes: Gemini for classification, chat, embeddings and tool calling,
// and Claude for the engineering responder. The rest of the system
// treats models as the three opaque capabilities defined here.
package cortex

import (
	"context"

	"alex/internal/tools"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history passed to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenOptions tunes a single generation. Zero values fall back to the
// provider defaults; MaxOutputTokens must always be set by callers.
type GenOptions struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// Chatter is the plain "chat(prompt) -> text" capability.
type Chatter interface {
	Complete(ctx context.Context, model, system string, messages []Message, opts GenOptions) (string, error)
}

// Embedder is the "embed(text) -> vector" capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

/// ToolStep is the outcome of one generation inside a tool session:
// either terminal text, or one or more tool calls, or both.
type ToolStep struct {
	Text  string
	Calls []ToolCall
}

// ToolResult carries one executed call's payload back to the model.
type ToolResult struct {
	Name     string
	Response map[string]any
}

// ToolSession is a stateful multi-turn function-calling conversation.
// Next sends the accumulated contents and records the model's reply;
// Push appends executed tool results for the following Next.
type ToolSession interface {
	Next(ctx context.Context) (*ToolStep, error)
	Push(results []ToolResult)
}

// ToolChatter is the "chat_with_tools" capability.
type ToolChatter interface {
	NewToolSession(model, system, userMessage string, catalog []*tools.Tool, opts GenOptions) ToolSession
}
