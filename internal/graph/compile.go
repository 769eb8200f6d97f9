package graph

import (
	"fmt"
	"sort"
)

// Plan is the compiled form of a graph: adjacency, dependencies and a
// deterministic execution order.
type Plan struct {
	graph      *Graph
	nodes      map[string]*Node
	order      []string            // Kahn topological order
	roots      []string            // nodes with no incoming edges
	deps       map[string][]string // nodeID → upstream node IDs
	successors map[string][]string // nodeID → downstream node IDs
	incoming   map[string][]Edge
	outgoing   map[string][]Edge
}

// Compile builds the adjacency structure and execution order for a graph.
// Edges whose endpoints are missing from the node set are ignored for
// ordering; Validate reports them. Fails with a *GraphError wrapping
// ErrCycle or ErrNoEntryPoint.
func Compile(g *Graph) (*Plan, error) {
	g = g.Enabled()

	p := &Plan{
		graph:      g,
		nodes:      make(map[string]*Node, len(g.Nodes)),
		deps:       make(map[string][]string),
		successors: make(map[string][]string),
		incoming:   make(map[string][]Edge),
		outgoing:   make(map[string][]Edge),
	}

	declared := make([]string, 0, len(g.Nodes))
	inDegree := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("node at index %d has no id", i)
		}
		if _, exists := p.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node id: %s", n.ID)
		}
		p.nodes[n.ID] = n
		declared = append(declared, n.ID)
		inDegree[n.ID] = 0
	}

	for _, e := range g.Edges {
		if _, ok := p.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := p.nodes[e.Target]; !ok {
			continue
		}
		p.deps[e.Target] = append(p.deps[e.Target], e.Source)
		p.successors[e.Source] = append(p.successors[e.Source], e.Target)
		p.incoming[e.Target] = append(p.incoming[e.Target], e)
		p.outgoing[e.Source] = append(p.outgoing[e.Source], e)
		inDegree[e.Target]++
	}

	// Kahn's algorithm. The queue is seeded and drained in declaration
	// order so the produced order is deterministic for a given graph.
	remaining := make(map[string]int, len(inDegree))
	var queue []string
	for _, id := range declared {
		remaining[id] = inDegree[id]
		if inDegree[id] == 0 {
			queue = append(queue, id)
			p.roots = append(p.roots, id)
		}
	}

	if len(p.roots) == 0 && len(declared) > 0 {
		return nil, &GraphError{Err: ErrNoEntryPoint}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		p.order = append(p.order, current)

		for _, next := range p.successors[current] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(p.order) < len(declared) {
		var cycle []string
		for _, id := range declared {
			if remaining[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, &GraphError{Err: ErrCycle, Nodes: cycle}
	}

	return p, nil
}

// Order returns the deterministic execution order.
func (p *Plan) Order() []string { return p.order }

// Roots returns the entry nodes (no incoming edges), in declaration order.
func (p *Plan) Roots() []string { return p.roots }

// Node returns the node definition for an id, or nil.
func (p *Plan) Node(id string) *Node { return p.nodes[id] }

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return len(p.nodes) }

// Dependencies returns the upstream node IDs for a node.
func (p *Plan) Dependencies(id string) []string { return p.deps[id] }

// Successors returns the downstream node IDs for a node.
func (p *Plan) Successors(id string) []string { return p.successors[id] }

// IncomingEdges returns the edges targeting a node, in declaration order.
func (p *Plan) IncomingEdges(id string) []Edge { return p.incoming[id] }

// OutgoingEdges returns the edges leaving a node, in declaration order.
func (p *Plan) OutgoingEdges(id string) []Edge { return p.outgoing[id] }
