package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/cortex"
)

const systemPrompt = `You are Alex, an intelligent AI assistant with persistent memory.

You have access to your memory context which includes:
- Today's summary and recent interactions
- Relevant past conversations
- Related concepts and projects you've discussed

Use this context naturally in your responses. Reference past discussions when relevant,
but don't force connections if they're not useful.

Key traits:
- Helpful and thorough, but concise
- Technical expertise, especially in software and AI
- Self-aware of your own architecture and capabilities
- Honest about limitations and uncertainties

Current context:
%s`

const proSuffix = `

For this complex task, take your time to:
1. Analyze the request thoroughly
2. Consider multiple approaches
3. Identify potential issues or ambiguities
4. Provide a well-structured response`

// historyWindow bounds how much conversation is replayed to the model.
const historyWindow = 10

// formatMemoryContext renders the retrieved context for the prompt.
func formatMemoryContext(s *TurnState) string {
	ctx := s.Memory
	if ctx == nil {
		return "No specific context available."
	}

	var parts []string
	if ctx.DailySummary != nil && ctx.DailySummary.Content != "" {
		parts = append(parts, "Today's Summary:\n"+ctx.DailySummary.Content)
	}
	if len(ctx.RelevantInteractions) > 0 {
		lines := []string{"Relevant Past Interactions:"}
		for i, in := range ctx.RelevantInteractions {
			if i == 3 {
				break
			}
			msg := in.UserMessage
			if len(msg) > 200 {
				msg = msg[:200]
			}
			lines = append(lines, fmt.Sprintf("  - User asked: %s...", msg))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if len(ctx.RelatedConcepts) > 0 {
		parts = append(parts, "Related Concepts: "+strings.Join(capStrings(ctx.RelatedConcepts, 5), ", "))
	}
	if len(ctx.RelatedProjects) > 0 {
		parts = append(parts, "Related Projects: "+strings.Join(capStrings(ctx.RelatedProjects, 3), ", "))
	}

	if len(parts) == 0 {
		return "No specific context available."
	}
	return strings.Join(parts, "\n\n")
}

func capStrings(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

// conversationMessages converts the tail of the turn's history into
// model messages.
func conversationMessages(s *TurnState) []cortex.Message {
	msgs := s.Messages
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	out := make([]cortex.Message, 0, len(msgs))
	for _, m := range msgs {
		role := cortex.RoleUser
		if m.Role == RoleAssistant {
			role = cortex.RoleAssistant
		}
		out = append(out, cortex.Message{Role: role, Content: m.Content})
	}
	return out
}

// flashNode answers routine requests with the fast model.
func (a *Agent) flashNode(ctx context.Context, s *TurnState) *Delta {
	start := time.Now()
	system := fmt.Sprintf(systemPrompt, formatMemoryContext(s))

	text, err := a.chat.Complete(ctx, a.cfg.FlashModel, system, conversationMessages(s),
		cortex.GenOptions{Temperature: 0.7, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192})
	if err != nil {
		a.log.Error("flash response failed", zap.Error(err))
		return &Delta{ProcessingStage: "error", Err: fmt.Sprintf("Response generation failed: %v", err)}
	}

	meta := s.Meta
	meta.ModelUsed = a.cfg.FlashModel
	meta.LatencyMs = time.Since(start).Milliseconds()
	meta.TokensOut = len(text) / 4

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: text}},
		CurrentCortex:   CortexFlash,
		ProcessingStage: "generate_response",
		Meta:            &meta,
	}
}

// proNode answers complex requests with the deeper model and degrades
// to flash when the pro call fails.
func (a *Agent) proNode(ctx context.Context, s *TurnState) *Delta {
	start := time.Now()
	system := fmt.Sprintf(systemPrompt, formatMemoryContext(s)) + proSuffix

	text, err := a.chat.Complete(ctx, a.cfg.ProModel, system, conversationMessages(s),
		cortex.GenOptions{Temperature: 0.8, TopP: 0.95, TopK: 40, MaxOutputTokens: 16384})
	if err != nil {
		a.log.Warn("pro response failed, falling back to flash", zap.Error(err))
		return a.flashNode(ctx, s)
	}

	meta := s.Meta
	meta.ModelUsed = a.cfg.ProModel
	meta.LatencyMs = time.Since(start).Milliseconds()
	meta.TokensOut = len(text) / 4

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: text}},
		CurrentCortex:   CortexPro,
		ProcessingStage: "generate_response",
		Meta:            &meta,
	}
}

// errorNode converts an internal error into a user-visible apology.
func (a *Agent) errorNode(_ context.Context, s *TurnState) *Delta {
	a.log.Error("turn failed", zap.String("error", s.Err))
	return &Delta{
		Messages: []Message{{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("I encountered an error: %s. Please try again.", s.Err),
		}},
		ProcessingStage: "error",
	}
}
