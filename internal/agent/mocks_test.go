package agent

import (
	"context"
	"fmt"
	"sync"

	"alex/internal/cortex"
	"alex/internal/memory"
	"alex/internal/tools"
)

// queueChatter replays responses in call order, recording the model
// and system used for each call.
type queueChatter struct {
	responses []string
	errAt     map[int]error

	mu      sync.Mutex
	calls   int
	models  []string
	systems []string
}

func (c *queueChatter) Complete(_ context.Context, model, system string, _ []cortex.Message, _ cortex.GenOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	c.models = append(c.models, model)
	c.systems = append(c.systems, system)

	if err, ok := c.errAt[i]; ok {
		return "", err
	}
	if len(c.responses) == 0 {
		return "", fmt.Errorf("no scripted response for call %d", i)
	}
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

// scriptedSession yields pre-built steps and records pushed results.
type scriptedSession struct {
	steps  []*cortex.ToolStep
	idx    int
	pushed [][]cortex.ToolResult
	err    error
}

func (s *scriptedSession) Next(context.Context) (*cortex.ToolStep, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.idx >= len(s.steps) {
		return &cortex.ToolStep{Text: ""}, nil
	}
	step := s.steps[s.idx]
	s.idx++
	return step, nil
}

func (s *scriptedSession) Push(results []cortex.ToolResult) {
	s.pushed = append(s.pushed, results)
}

// scriptedToolChat hands out one scripted session and remembers how it
// was requested.
type scriptedToolChat struct {
	session    *scriptedSession
	lastModel  string
	lastSystem string
	lastSeed   string
}

func (c *scriptedToolChat) NewToolSession(model, system, userMessage string, _ []*tools.Tool, _ cortex.GenOptions) cortex.ToolSession {
	c.lastModel = model
	c.lastSystem = system
	c.lastSeed = userMessage
	return c.session
}

// recordingStore captures persistence calls.
type recordingStore struct {
	mu           sync.Mutex
	users        []string
	interactions []*memory.Interaction
	codeChanges  []*memory.CodeChange
	failWrites   bool
}

func (r *recordingStore) EnsureUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func (r *recordingStore) StoreInteraction(_ context.Context, in *memory.Interaction, _ []string, _ []float32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return 0, fmt.Errorf("store unavailable")
	}
	r.interactions = append(r.interactions, in)
	return int64(len(r.interactions)), nil
}

func (r *recordingStore) StoreCodeChange(_ context.Context, cc *memory.CodeChange) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return 0, fmt.Errorf("store unavailable")
	}
	r.codeChanges = append(r.codeChanges, cc)
	return int64(len(r.codeChanges)), nil
}

// staticRetriever returns a fixed context.
type staticRetriever struct {
	ctx *memory.Context
}

func (s *staticRetriever) Retrieve(context.Context, string, []string, []string) *memory.Context {
	if s.ctx == nil {
		return &memory.Context{}
	}
	return s.ctx
}

// echoTool builds a tool whose handler returns a fixed output.
func echoTool(name, output string) *tools.Tool {
	return &tools.Tool{
		Name:        name,
		Description: name,
		Category:    tools.CategoryGeneral,
		Execute: func(context.Context, map[string]any) (string, error) {
			return output, nil
		},
		Schema: tools.Schema{Properties: map[string]tools.Property{}},
	}
}

func classifyJSON(intent string, complexity float64, topics ...string) string {
	topicList := ""
	for i, t := range topics {
		if i > 0 {
			topicList += ", "
		}
		topicList += fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf(`{"intent": %q, "complexity_score": %g, "topics": [%s], "entities": [], "requires_memory": false, "is_ambiguous": false}`,
		intent, complexity, topicList)
}
