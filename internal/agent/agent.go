package agent

import (
	"context"

	"go.uber.org/zap"

	"alex/internal/brokerage"
	"alex/internal/config"
	"alex/internal/cortex"
	"alex/internal/memory"
	"alex/internal/tools"
)

// Retriever assembles the memory context for a turn.
type Retriever interface {
	Retrieve(ctx context.Context, userMessage string, topics, entities []string) *memory.Context
}

// InteractionStore persists completed turns and code changes.
type InteractionStore interface {
	EnsureUser(ctx context.Context, userID string) error
	StoreInteraction(ctx context.Context, in *memory.Interaction, topics []string, embedding []float32) (int64, error)
	StoreCodeChange(ctx context.Context, cc *memory.CodeChange) (int64, error)
}

// TradeCatalogFunc builds the trade tool catalog for one user. It
// returns the tools, the trading mode ("sandbox" or "live"), or
// brokerage.ErrNotConfigured when credentials are missing.
type TradeCatalogFunc func(userID string) ([]*tools.Tool, string, error)

// Options carries the agent's collaborators. Chat and ToolChat are
// required; everything else degrades gracefully when absent.
type Options struct {
	Models      config.ModelConfig
	Chat        cortex.Chatter
	ToolChat    cortex.ToolChatter
	Engineer    cortex.Chatter
	Embedder    cortex.Embedder
	Retriever   Retriever
	Store       InteractionStore
	FSTools     []*tools.Tool
	ProjectRoot string
	TradeTools  TradeCatalogFunc
	Log         *zap.Logger
}

// Agent owns the turn graph and its collaborators.
type Agent struct {
	cfg          config.ModelConfig
	chat         cortex.Chatter
	toolChat     cortex.ToolChatter
	engineer     cortex.Chatter
	embedder     cortex.Embedder
	retriever    Retriever
	store        InteractionStore
	fsTools      []*tools.Tool
	projectRoot  string
	tradeCatalog TradeCatalogFunc
	graph        *Graph
	log          *zap.Logger
}

// New assembles the agent and wires the turn graph.
func New(opts Options) *Agent {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	tradeCatalog := opts.TradeTools
	if tradeCatalog == nil {
		tradeCatalog = func(string) ([]*tools.Tool, string, error) {
			return nil, "", brokerage.ErrNotConfigured
		}
	}

	a := &Agent{
		cfg:          opts.Models,
		chat:         opts.Chat,
		toolChat:     opts.ToolChat,
		engineer:     opts.Engineer,
		embedder:     opts.Embedder,
		retriever:    opts.Retriever,
		store:        opts.Store,
		fsTools:      opts.FSTools,
		projectRoot:  opts.ProjectRoot,
		tradeCatalog: tradeCatalog,
		log:          log.Named("agent"),
	}
	a.graph = a.buildGraph()
	return a
}

// buildGraph wires the fixed turn topology: classify at the entry,
// conditional routing into the responders, storage before the end.
func (a *Agent) buildGraph() *Graph {
	g := NewGraph(a.log)

	g.AddNode(nodeClassify, a.classifyNode)
	g.AddNode(nodeRetrieveMemory, a.retrieveMemoryNode)
	g.AddNode(nodeRespondFlash, a.flashNode)
	g.AddNode(nodeRespondPro, a.proNode)
	g.AddNode(nodeRespondEngine, a.engineerNode)
	g.AddNode(nodeRespondSelfMod, a.selfModifyNode)
	g.AddNode(nodeRespondTrade, a.tradeNode)
	g.AddNode(nodeStore, a.storeInteractionNode)
	g.AddNode(nodeHandleError, a.errorNode)

	g.SetEntry(nodeClassify)

	threshold := a.cfg.ComplexityThreshold
	g.AddConditionalEdge(nodeClassify, routeAfterClassify(threshold))
	g.AddConditionalEdge(nodeRetrieveMemory, routeAfterMemory(threshold))
	for _, responder := range []string{
		nodeRespondFlash, nodeRespondPro, nodeRespondEngine,
		nodeRespondSelfMod, nodeRespondTrade,
	} {
		g.AddConditionalEdge(responder, shouldStore)
	}
	g.AddEdge(nodeStore, End)
	g.AddEdge(nodeHandleError, End)

	return g
}

// registryFor builds a throwaway registry over one catalog so the
// tool loop can validate and dispatch calls.
func (a *Agent) registryFor(catalog []*tools.Tool) *tools.Registry {
	reg := tools.NewRegistry(a.log)
	for _, tool := range catalog {
		reg.MustRegister(tool)
	}
	return reg
}

// ResultMetadata is the turn summary returned to API callers.
type ResultMetadata struct {
	Intent          string  `json:"intent"`
	ComplexityScore float64 `json:"complexity_score"`
	ModelUsed       string  `json:"model_used"`
	LatencyMs       int64   `json:"latency_ms"`
	Cortex          string  `json:"cortex"`
}

// Result is one completed turn.
type Result struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	Metadata  ResultMetadata `json:"metadata"`
}

// ProcessMessage runs one turn through the graph.
func (a *Agent) ProcessMessage(ctx context.Context, userMessage, userID, sessionID string, history []Message) (*Result, error) {
	if userID == "" {
		userID = "primary_user"
	}
	state := NewTurnState(userMessage, userID, sessionID, history)

	a.log.Info("processing message",
		zap.String("user_id", userID),
		zap.String("session_id", state.SessionID),
		zap.Int("message_length", len(userMessage)))

	if err := a.graph.Run(ctx, state); err != nil {
		return nil, err
	}

	return &Result{
		Response:  state.LastAssistantMessage(),
		SessionID: state.SessionID,
		Metadata: ResultMetadata{
			Intent:          state.Meta.Intent,
			ComplexityScore: state.Meta.ComplexityScore,
			ModelUsed:       state.Meta.ModelUsed,
			LatencyMs:       state.Meta.LatencyMs,
			Cortex:          state.CurrentCortex,
		},
	}, nil
}
