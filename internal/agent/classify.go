package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alex/internal/cortex"
)

const classificationPrompt = `Analyze the following user message and classify it.

User message: %s

Respond with a JSON object containing:
{
    "intent": "<one of: chat, question, code_change, refactor, debug, test, memory_query, task_planning, creative, self_modify, trade>",
    "complexity_score": <float between 0.0 and 1.0, where 1.0 is highly complex>,
    "topics": [<list of main topics/concepts mentioned>],
    "entities": [<list of named entities like people, projects, files>],
    "requires_memory": <boolean, true if the query references past conversations or needs context>,
    "is_ambiguous": <boolean, true if the request is vague or needs clarification>
}

Intent guidelines:
- self_modify: User gives a DIRECT COMMAND for Alex to modify its own code, add features to itself, or read its own files. Must be an action request, not a question. NOT for questions like "can you modify yourself?"
- trade: User wants to view positions or balances, or place, confirm, or cancel a stock or option order
- question: User asks ABOUT Alex's capabilities, architecture, or how it works
- code_change: User asks about external code, not Alex's own codebase
- chat: General conversation, greetings, simple questions
- Other intents: memory_query, task_planning, creative, etc.

Guidelines for complexity_score:
- 0.0-0.3: Simple greetings, factual questions, straightforward requests
- 0.4-0.6: Questions requiring some reasoning, multi-step explanations
- 0.7-0.9: Complex planning, architectural decisions, ambiguous requests
- 1.0: Highly complex tasks requiring deep analysis

Only respond with the JSON object, no additional text.`

// classification is the model's structured verdict about one message.
type classification struct {
	Intent          string   `json:"intent"`
	ComplexityScore float64  `json:"complexity_score"`
	Topics          []string `json:"topics"`
	Entities        []string `json:"entities"`
	RequiresMemory  bool     `json:"requires_memory"`
	IsAmbiguous     bool     `json:"is_ambiguous"`
}

// classifyNode produces intent, complexity, and extracted labels for
// the turn. A parse failure degrades to a chat intent; only a missing
// message or a model failure errors the turn.
func (a *Agent) classifyNode(ctx context.Context, s *TurnState) *Delta {
	userMessage := s.LastUserMessage()
	if userMessage == "" {
		return &Delta{ProcessingStage: "error", Err: "No user message to classify"}
	}

	prompt := fmt.Sprintf(classificationPrompt, userMessage)
	raw, err := a.chat.Complete(ctx, a.cfg.FlashModel, "",
		[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
		cortex.GenOptions{Temperature: 0.3, MaxOutputTokens: 1024})
	if err != nil {
		a.log.Error("classification failed", zap.Error(err))
		return &Delta{ProcessingStage: "error", Err: fmt.Sprintf("Classification failed: %v", err)}
	}

	meta := s.Meta
	c, err := parseClassification(raw)
	if err != nil {
		a.log.Warn("unparseable classification, defaulting to chat", zap.Error(err))
		meta.Intent = "chat"
		meta.ComplexityScore = 0.5
		return &Delta{Meta: &meta, ProcessingStage: "classify"}
	}

	a.log.Info("intent classified",
		zap.String("intent", c.Intent),
		zap.Float64("complexity", c.ComplexityScore),
		zap.Strings("topics", c.Topics))

	meta.Intent = c.Intent
	meta.ComplexityScore = c.ComplexityScore
	meta.Topics = c.Topics
	meta.Entities = c.Entities
	if meta.Intent == "" {
		meta.Intent = "chat"
	}
	return &Delta{Meta: &meta, ProcessingStage: "classify"}
}

// parseClassification decodes the model's JSON, tolerating markdown
// code fences around it.
func parseClassification(raw string) (*classification, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		parts := strings.SplitN(text, "```", 3)
		if len(parts) >= 2 {
			text = parts[1]
		}
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}

	var c classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	return &c, nil
}
