package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/cortex"
)

const claudeSystemPrompt = `You are Claude, an expert software engineer working as part of Alex AI Assistant's engineering cortex.

Your role is to handle engineering tasks that require code implementation, refactoring, debugging, or technical deep-dives.

Key guidelines:
1. Provide complete, working code - not pseudocode or partial implementations
2. Follow best practices for the language/framework being used
3. Include error handling and edge cases
4. Write clear comments for complex logic
5. Consider security implications
6. Suggest tests when appropriate

Format your responses clearly with:
- Code blocks for all code (with language specifiers)
- Brief explanations of your approach
- Any caveats or limitations

Remember: You're part of a larger system. Alex (the coordinator) will relay your responses to the user.`

var intentInstructions = map[string]string{
	"code_change": "Implement the requested code changes. Provide complete, working code.",
	"refactor":    "Refactor the code to improve quality, readability, and maintainability. Explain your changes.",
	"debug":       "Analyze the issue and provide a fix. Explain the root cause and your solution.",
	"test":        "Write comprehensive tests for the described functionality. Include edge cases.",
	"deploy":      "Provide deployment instructions and any necessary configuration changes.",
}

// engineerContext renders the memory context for the engineering
// prompt; unlike the chat prompt it includes the weekly summary.
func engineerContext(s *TurnState) string {
	ctx := s.Memory
	if ctx == nil {
		return ""
	}

	var parts []string
	if ctx.DailySummary != nil && ctx.DailySummary.Content != "" {
		parts = append(parts, "Today's context: "+ctx.DailySummary.Content)
	}
	if ctx.WeeklySummary != nil && ctx.WeeklySummary.Content != "" {
		parts = append(parts, "This week: "+ctx.WeeklySummary.Content)
	}
	if len(ctx.RelevantInteractions) > 0 {
		lines := []string{"", "Relevant past discussions:"}
		for i, in := range ctx.RelevantInteractions {
			if i == 3 {
				break
			}
			msg := in.UserMessage
			if len(msg) > 300 {
				msg = msg[:300]
			}
			lines = append(lines, "- User asked: "+msg)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if len(ctx.RelatedConcepts) > 0 {
		parts = append(parts, "\nRelated topics: "+strings.Join(capStrings(ctx.RelatedConcepts, 5), ", "))
	}
	if len(ctx.RelatedProjects) > 0 {
		parts = append(parts, "Related projects: "+strings.Join(capStrings(ctx.RelatedProjects, 3), ", "))
	}
	return strings.Join(parts, "\n")
}

// engineerNode delegates engineering intents to the Claude cortex,
// falling back to the Pro chat model when Claude is unavailable.
func (a *Agent) engineerNode(ctx context.Context, s *TurnState) *Delta {
	start := time.Now()
	intent := s.Meta.Intent
	if intent == "" {
		intent = "code_change"
	}
	userMessage := s.LastUserMessage()
	if userMessage == "" {
		return &Delta{ProcessingStage: "error", Err: "No user message found"}
	}

	instruction, ok := intentInstructions[intent]
	if !ok {
		instruction = intentInstructions["code_change"]
	}

	var sections []string
	if memCtx := engineerContext(s); memCtx != "" {
		sections = append(sections, "## Context from previous conversations:\n"+memCtx+"\n")
	}
	sections = append(sections,
		fmt.Sprintf("## Task (%s):\n%s\n", intent, instruction),
		"## Request:\n"+userMessage)
	prompt := strings.Join(sections, "\n")

	if a.engineer != nil {
		text, err := a.engineer.Complete(ctx, a.cfg.EngineerModel, claudeSystemPrompt,
			[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
			cortex.GenOptions{MaxOutputTokens: 16384})
		if err == nil {
			meta := s.Meta
			meta.ModelUsed = a.cfg.EngineerModel
			meta.LatencyMs = time.Since(start).Milliseconds()
			return &Delta{
				Messages:        []Message{{Role: RoleAssistant, Content: text}},
				CurrentCortex:   CortexEngineer,
				ProcessingStage: "engineer",
				Meta:            &meta,
			}
		}
		a.log.Warn("engineering model failed, falling back to pro", zap.Error(err))
	} else {
		a.log.Warn("engineering model not configured, falling back to pro")
	}

	return a.engineerFallback(ctx, s, userMessage, start)
}

// engineerFallback reroutes the task to the Pro chat model and tags
// the model name so callers can see the degradation.
func (a *Agent) engineerFallback(ctx context.Context, s *TurnState, userMessage string, start time.Time) *Delta {
	prompt := fmt.Sprintf(`You are handling an engineering task. Provide complete, working code with:
- Proper error handling
- Clear comments for complex logic
- Security considerations

Task: %s`, userMessage)

	text, err := a.chat.Complete(ctx, a.cfg.ProModel,
		"You are an expert software engineer. Provide production-ready code.",
		[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
		cortex.GenOptions{Temperature: 0.8, MaxOutputTokens: 16384})
	if err != nil {
		a.log.Error("engineering fallback failed", zap.Error(err))
		return &Delta{
			Messages: []Message{{
				Role: RoleAssistant,
				Content: "I apologize, but I'm unable to process engineering tasks at the moment. " +
					"Neither the engineering model nor the fallback model are available. " +
					"Please check your API key configurations.",
			}},
			CurrentCortex:   CortexFlash,
			ProcessingStage: "error",
			Err:             err.Error(),
		}
	}

	meta := s.Meta
	meta.ModelUsed = a.cfg.ProModel + " (fallback)"
	meta.LatencyMs = time.Since(start).Milliseconds()
	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: text}},
		CurrentCortex:   CortexPro,
		ProcessingStage: "engineer_fallback",
		Meta:            &meta,
	}
}
