package agent

import (
	"testing"

	"alex/internal/memory"
)

func stateWith(intent string, complexity float64) *TurnState {
	s := NewTurnState("a sufficiently long request", "u1", "s1", nil)
	s.Meta.Intent = intent
	s.Meta.ComplexityScore = complexity
	return s
}

func TestRouteAfterClassify(t *testing.T) {
	route := routeAfterClassify(0.7)

	tests := []struct {
		name       string
		intent     string
		complexity float64
		want       string
	}{
		{"self modify wins", "self_modify", 0.9, nodeRespondSelfMod},
		{"trade wins", "trade", 0.9, nodeRespondTrade},
		{"code change", "code_change", 0.2, nodeRespondEngine},
		{"refactor", "refactor", 0.2, nodeRespondEngine},
		{"debug", "debug", 0.2, nodeRespondEngine},
		{"test intent", "test", 0.2, nodeRespondEngine},
		{"deploy", "deploy", 0.2, nodeRespondEngine},
		{"memory query", "memory_query", 0.1, nodeRetrieveMemory},
		{"question", "question", 0.9, nodeRetrieveMemory},
		{"task planning", "task_planning", 0.85, nodeRetrieveMemory},
		{"complex chat", "chat", 0.7, nodeRespondPro},
		{"simple chat", "chat", 0.1, nodeRespondFlash},
		{"creative", "creative", 0.5, nodeRespondFlash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stateWith(tt.intent, tt.complexity)
			if got := route(s); got != tt.want {
				t.Errorf("route = %q, want %q", got, tt.want)
			}
			// Routing is a pure function of state.
			if again := route(s); again != tt.want {
				t.Errorf("second route = %q, want %q", again, tt.want)
			}
		})
	}
}

func TestRouteAfterClassifyError(t *testing.T) {
	route := routeAfterClassify(0.7)
	s := stateWith("chat", 0.1)
	s.Err = "boom"
	if got := route(s); got != nodeHandleError {
		t.Errorf("route with error = %q, want %q", got, nodeHandleError)
	}
}

func TestRouteAfterMemory(t *testing.T) {
	route := routeAfterMemory(0.7)

	s := stateWith("question", 0.3)
	s.Memory = &memory.Context{}
	if got := route(s); got != nodeRespondFlash {
		t.Errorf("low complexity = %q, want flash", got)
	}

	s = stateWith("question", 0.85)
	s.Memory = &memory.Context{}
	if got := route(s); got != nodeRespondPro {
		t.Errorf("high complexity = %q, want pro", got)
	}

	s = stateWith("question", 0.3)
	s.Memory = &memory.Context{RelevantInteractions: make([]memory.Interaction, 4)}
	if got := route(s); got != nodeRespondPro {
		t.Errorf("dense context = %q, want pro", got)
	}

	s = stateWith("question", 0.3)
	s.Memory = &memory.Context{RelevantInteractions: make([]memory.Interaction, 3)}
	if got := route(s); got != nodeRespondFlash {
		t.Errorf("three interactions = %q, want flash", got)
	}
}

func TestShouldStore(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		assistant string
		err       string
		want      string
	}{
		{"normal", "tell me about go", "Go is a compiled language.", "", nodeStore},
		{"short user", "hi", "Hello! How can I help you?", "", End},
		{"short assistant", "tell me about go", "ok", "", End},
		{"error set", "tell me about go", "Go is a compiled language.", "boom", End},
		{"no assistant", "tell me about go", "", "", End},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTurnState(tt.user, "u1", "s1", nil)
			if tt.assistant != "" {
				s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: tt.assistant})
			}
			s.Err = tt.err
			if got := shouldStore(s); got != tt.want {
				t.Errorf("shouldStore = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyDelta(t *testing.T) {
	s := NewTurnState("hello there friend", "u1", "s1", nil)
	before := len(s.Messages)

	meta := s.Meta
	meta.Intent = "chat"
	s.Apply(&Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: "hi"}},
		CurrentCortex:   CortexPro,
		ProcessingStage: "generate_response",
		Meta:            &meta,
		ToolOutputs:     map[string]any{"k": "v"},
	})

	if len(s.Messages) != before+1 {
		t.Fatalf("messages = %d, want %d", len(s.Messages), before+1)
	}
	if s.CurrentCortex != CortexPro || s.ProcessingStage != "generate_response" {
		t.Errorf("scalar fields not applied: %+v", s)
	}
	if s.Meta.Intent != "chat" {
		t.Errorf("meta not applied")
	}
	if s.ToolOutputs["k"] != "v" {
		t.Errorf("tool outputs not merged")
	}

	// Empty delta fields leave state untouched.
	s.Apply(&Delta{})
	if s.CurrentCortex != CortexPro {
		t.Errorf("empty delta overwrote cortex")
	}
}
