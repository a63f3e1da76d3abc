package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// End terminates graph execution when returned by a router.
const End = "__end__"

// NodeFunc mutates nothing; it inspects the state and returns a delta.
// Nodes report failures by setting Delta.Err, not by returning errors,
// so the graph can route to error handling.
type NodeFunc func(ctx context.Context, s *TurnState) *Delta

// RouteFunc picks the next node name from the merged state.
type RouteFunc func(s *TurnState) string

// Graph is a node map with per-node routing. Topology is fixed after
// construction; only the routers read state.
type Graph struct {
	nodes  map[string]NodeFunc
	routes map[string]RouteFunc
	entry  string
	log    *zap.Logger
}

// NewGraph returns an empty graph.
func NewGraph(log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{
		nodes:  make(map[string]NodeFunc),
		routes: make(map[string]RouteFunc),
		log:    log.Named("graph"),
	}
}

// AddNode registers a node under a name.
func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

// SetEntry names the node executed first.
func (g *Graph) SetEntry(name string) {
	g.entry = name
}

// AddConditionalEdge installs a router for a node's outgoing edge.
func (g *Graph) AddConditionalEdge(from string, route RouteFunc) {
	g.routes[from] = route
}

// AddEdge installs an unconditional edge.
func (g *Graph) AddEdge(from, to string) {
	g.routes[from] = func(*TurnState) string { return to }
}

// Run drives the state through the graph until End. The step bound
// guards against a miswired topology; a correct graph never hits it.
func (g *Graph) Run(ctx context.Context, s *TurnState) error {
	const maxSteps = 32

	current := g.entry
	for step := 0; current != End; step++ {
		if step >= maxSteps {
			return fmt.Errorf("graph exceeded %d steps at node %q", maxSteps, current)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		node, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("graph routed to unknown node %q", current)
		}

		g.log.Debug("running node", zap.String("node", current))
		s.Apply(node(ctx, s))

		route, ok := g.routes[current]
		if !ok {
			return fmt.Errorf("node %q has no outgoing edge", current)
		}
		current = route(s)
	}
	return nil
}
