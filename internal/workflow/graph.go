package workflow

import (
	"fmt"

	"reelsmith/internal/state"
)

// RouteResult is the closed set of outcomes a routing predicate may return.
// Every conditional node must supply an edge for each result its predicate
// can produce; Graph.Validate rejects anything else.
type RouteResult string

const (
	// RouteDefault follows the node's single unconditional edge.
	RouteDefault RouteResult = "default"
	// RouteWithNarration directs rendered scenes into audio synthesis.
	RouteWithNarration RouteResult = "with_narration"
	// RouteSilent skips narration and goes straight to composition.
	RouteSilent RouteResult = "silent"
)

// Predicate inspects the record after a stage completes and picks the route.
type Predicate func(rec *state.Record) RouteResult

// node couples a stage with its outgoing edges. An edge target of
// state.StageNone marks the workflow terminal.
type node struct {
	stage state.StageType
	route Predicate
	edges map[RouteResult]state.StageType
}

// Graph is the static stage topology a job walks. It is built once at wiring
// time and shared read-only across workers.
type Graph struct {
	start state.StageType
	nodes map[state.StageType]node
}

// NewGraph constructs an empty graph rooted at the given stage.
func NewGraph(start state.StageType) *Graph {
	return &Graph{start: start, nodes: make(map[state.StageType]node)}
}

// Start returns the entry stage.
func (g *Graph) Start() state.StageType { return g.start }

// AddNode installs a stage with an unconditional edge to next.
func (g *Graph) AddNode(stageType, next state.StageType) error {
	return g.AddConditionalNode(stageType, nil, map[RouteResult]state.StageType{RouteDefault: next})
}

// AddConditionalNode installs a stage whose successor depends on the routing
// predicate. A nil predicate always routes RouteDefault.
func (g *Graph) AddConditionalNode(stageType state.StageType, route Predicate, edges map[RouteResult]state.StageType) error {
	if stageType == state.StageNone {
		return fmt.Errorf("graph node requires a stage")
	}
	if _, exists := g.nodes[stageType]; exists {
		return fmt.Errorf("graph node %s: already defined", stageType)
	}
	if len(edges) == 0 {
		return fmt.Errorf("graph node %s: no edges", stageType)
	}
	copied := make(map[RouteResult]state.StageType, len(edges))
	for result, target := range edges {
		copied[result] = target
	}
	g.nodes[stageType] = node{stage: stageType, route: route, edges: copied}
	return nil
}

// Validate checks the topology: the start node exists, every edge targets a
// defined node or the terminal, and every node is reachable from the start.
func (g *Graph) Validate() error {
	if _, ok := g.nodes[g.start]; !ok {
		return fmt.Errorf("graph start %s: not defined", g.start)
	}
	for stageType, n := range g.nodes {
		for result, target := range n.edges {
			if target == state.StageNone {
				continue
			}
			if _, ok := g.nodes[target]; !ok {
				return fmt.Errorf("graph node %s: edge %s targets undefined node %s", stageType, result, target)
			}
		}
	}

	reachable := map[state.StageType]bool{}
	frontier := []state.StageType{g.start}
	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if reachable[current] {
			continue
		}
		reachable[current] = true
		for _, target := range g.nodes[current].edges {
			if target != state.StageNone && !reachable[target] {
				frontier = append(frontier, target)
			}
		}
	}
	for stageType := range g.nodes {
		if !reachable[stageType] {
			return fmt.Errorf("graph node %s: unreachable from start", stageType)
		}
	}
	return nil
}

// Contains reports whether the stage is part of the graph.
func (g *Graph) Contains(stageType state.StageType) bool {
	_, ok := g.nodes[stageType]
	return ok
}

// Next resolves the successor of a completed stage. It returns
// state.StageNone when the workflow is finished.
func (g *Graph) Next(stageType state.StageType, rec *state.Record) (state.StageType, error) {
	n, ok := g.nodes[stageType]
	if !ok {
		return state.StageNone, fmt.Errorf("graph node %s: not defined", stageType)
	}
	result := RouteDefault
	if n.route != nil {
		result = n.route(rec)
	}
	target, ok := n.edges[result]
	if !ok {
		return state.StageNone, fmt.Errorf("graph node %s: no edge for route %s", stageType, result)
	}
	return target, nil
}

// Len returns the number of nodes, used for progress fractions.
func (g *Graph) Len() int { return len(g.nodes) }

// DefaultGraph wires the full content pipeline. The conditional edge after
// rendering skips narration synthesis when the job disables audio.
func DefaultGraph() *Graph {
	g := NewGraph(state.StageIngest)
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(g.AddNode(state.StageIngest, state.StageUnderstand))
	must(g.AddNode(state.StageUnderstand, state.StageScript))
	must(g.AddNode(state.StageScript, state.StagePlan))
	must(g.AddNode(state.StagePlan, state.StageRender))
	must(g.AddConditionalNode(state.StageRender, func(rec *state.Record) RouteResult {
		if rec != nil && rec.Options.NarrationEnabled {
			return RouteWithNarration
		}
		return RouteSilent
	}, map[RouteResult]state.StageType{
		RouteWithNarration: state.StageAudio,
		RouteSilent:        state.StageCompose,
	}))
	must(g.AddNode(state.StageAudio, state.StageCompose))
	must(g.AddNode(state.StageCompose, state.StagePublish))
	must(g.AddNode(state.StagePublish, state.StageNone))
	return g
}
