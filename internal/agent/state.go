// Package agent implements the conversational turn graph: a classify
// node routes each user message to one of five responder cortexes,
// with memory retrieval and interaction storage around them.
package agent

import (
	"time"

	"github.com/google/uuid"

	"alex/internal/memory"
)

// Message roles carried through a turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Cortex names reported in response metadata.
const (
	CortexFlash      = "flash"
	CortexPro        = "pro"
	CortexEngineer   = "engineer"
	CortexSelfModify = "self_modify"
	CortexTrade      = "trade"
)

// Message is one conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata accumulates classification and generation facts for a turn.
type Metadata struct {
	InteractionID   string
	Timestamp       time.Time
	Intent          string
	ComplexityScore float64
	Topics          []string
	Entities        []string
	ModelUsed       string
	LatencyMs       int64
	TokensIn        int
	TokensOut       int
}

// TurnState is the full state flowing through the graph for one turn.
type TurnState struct {
	Messages        []Message
	UserID          string
	SessionID       string
	CurrentCortex   string
	ProcessingStage string
	Memory          *memory.Context
	Meta            Metadata
	ToolOutputs     map[string]any
	Err             string
	RetryCount      int
	MaxRetries      int
}

// Delta is a node's contribution to the state. Messages append; every
// other non-zero field overwrites.
type Delta struct {
	Messages        []Message
	CurrentCortex   string
	ProcessingStage string
	Memory          *memory.Context
	Meta            *Metadata
	ToolOutputs     map[string]any
	Err             string
}

// Apply merges a delta into the state.
func (s *TurnState) Apply(d *Delta) {
	if d == nil {
		return
	}
	s.Messages = append(s.Messages, d.Messages...)
	if d.CurrentCortex != "" {
		s.CurrentCortex = d.CurrentCortex
	}
	if d.ProcessingStage != "" {
		s.ProcessingStage = d.ProcessingStage
	}
	if d.Memory != nil {
		s.Memory = d.Memory
	}
	if d.Meta != nil {
		s.Meta = *d.Meta
	}
	for k, v := range d.ToolOutputs {
		if s.ToolOutputs == nil {
			s.ToolOutputs = make(map[string]any)
		}
		s.ToolOutputs[k] = v
	}
	if d.Err != "" {
		s.Err = d.Err
	}
}

// LastUserMessage returns the most recent user message content.
func (s *TurnState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantMessage returns the most recent assistant message.
func (s *TurnState) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// NewTurnState seeds the state for a new turn. History precedes the
// current user message.
func NewTurnState(userMessage, userID, sessionID string, history []Message) *TurnState {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: userMessage})

	return &TurnState{
		Messages:        messages,
		UserID:          userID,
		SessionID:       sessionID,
		CurrentCortex:   CortexFlash,
		ProcessingStage: "intake",
		Meta: Metadata{
			InteractionID: uuid.NewString(),
			Timestamp:     time.Now().UTC(),
		},
		ToolOutputs: make(map[string]any),
		MaxRetries:  3,
	}
}
