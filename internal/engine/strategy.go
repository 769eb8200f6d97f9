package engine

import (
	"context"
	"fmt"

	"github.com/worqly/orchestrator/internal/graph"
)

// StrategyKind selects a traversal mode.
type StrategyKind string

const (
	// StrategyRecursive is the durable mode: dependency-first traversal
	// where a failure only fails the dependent subtree.
	StrategyRecursive StrategyKind = "recursive"
	// StrategyTopological is the preview mode: strict compiler order with
	// fail-fast abort on the first node failure.
	StrategyTopological StrategyKind = "topological"
)

// Strategy walks a compiled plan, driving node execution through the
// coordinator. Both implementations share the compiler output and the
// runner registry, so the same fixtures exercise both.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, c *Coordinator, plan *graph.Plan, rc *RunContext) error
}

func strategyFor(kind StrategyKind) (Strategy, error) {
	switch kind {
	case StrategyRecursive:
		return recursiveStrategy{}, nil
	case StrategyTopological:
		return topologicalStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown execution strategy: %s", kind)
	}
}


type recursiveStrategy struct{}

func (recursiveStrategy) Name() string { return string(StrategyRecursive) }

func (s recursiveStrategy) Execute(ctx context.Context, c *Coordinator, plan *graph.Plan, rc *RunContext) error {
	// Every node is visited so nothing stays unaccounted for: nodes below
	// a failure resolve as dependency failures, untaken branches as
	// skipped. Visits are memoized, so converging paths run a node once.
	for _, id := range plan.Order() {
		if err := s.visit(ctx, c, plan, rc, id); err != nil {
			return err
		}
	}
	return nil
}

// visit executes a node dependency-first: upstream nodes run (or resolve)
// before the node itself, and traversal continues down the taken outgoing
// edges afterwards. A node already resolved is never re-run, which keeps
// execution at-most-once per node per run even across converging paths.
func (s recursiveStrategy) visit(ctx context.Context, c *Coordinator, plan *graph.Plan, rc *RunContext, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rc.resolved(nodeID) {
		return nil
	}

	node := plan.Node(nodeID)
	if node == nil {
		return nil
	}

	for _, depID := range plan.Dependencies(nodeID) {
		if !rc.resolved(depID) {
			if err := s.visit(ctx, c, plan, rc, depID); err != nil {
				return err
			}
		}
		if _, failed := rc.Failed[depID]; failed {
			c.markDependencyFailed(ctx, rc, node, depID)
			return nil
		}
	}
	if rc.resolved(nodeID) {
		// A dependency chain above may have resolved this node already.
		return nil
	}

	if !hasActiveIncoming(plan, rc, nodeID) {
		c.markSkipped(ctx, rc, node)
		return nil
	}

	input := buildRecursiveInput(plan, rc, node)
	if err := c.executeNode(ctx, rc, node, input); err != nil {
		// Recorded as a node failure; the dependent subtree stays
		// untraversed and resolves as skipped or failed-by-dependency.
		return nil
	}

	for _, e := range plan.OutgoingEdges(nodeID) {
		if !edgeTaken(node, rc.Outputs[nodeID], e) {
			continue
		}
		if err := s.visit(ctx, c, plan, rc, e.Target); err != nil {
			return err
		}
	}
	return nil
}


type topologicalStrategy struct{}

func (topologicalStrategy) Name() string { return string(StrategyTopological) }

func (s topologicalStrategy) Execute(ctx context.Context, c *Coordinator, plan *graph.Plan, rc *RunContext) error {
	aborted := false
	for _, nodeID := range plan.Order() {
		if err := ctx.Err(); err != nil {
			return err
		}
		node := plan.Node(nodeID)

		if aborted || !hasActiveIncoming(plan, rc, nodeID) {
			c.markSkipped(ctx, rc, node)
			continue
		}

		input := buildTopologicalInput(plan, rc, node)
		if err := c.executeNode(ctx, rc, node, input); err != nil {
			// Preview mode is fail-fast: the remainder of the order is
			// skipped instead of executed.
			aborted = true
		}
	}
	return nil
}


// hasActiveIncoming reports whether a node is reachable in this run: roots
// always are; other nodes need at least one incoming edge whose source
// executed and whose branch was taken. Failed or skipped sources never
// activate an edge.
func hasActiveIncoming(plan *graph.Plan, rc *RunContext, nodeID string) bool {
	incoming := plan.IncomingEdges(nodeID)
	if len(incoming) == 0 {
		return true
	}
	for _, e := range incoming {
		if _, ok := rc.Executed[e.Source]; !ok {
			continue
		}
		if edgeTaken(plan.Node(e.Source), rc.Outputs[e.Source], e) {
			return true
		}
	}
	return false
}

// buildRecursiveInput feeds a node from its executed upstream outputs:
// the trigger payload for trigger nodes, the sole upstream's output when
// there is exactly one, and a map keyed by upstream node id otherwise.
func buildRecursiveInput(plan *graph.Plan, rc *RunContext, node *graph.Node) any {
	if node.Type == graph.NodeTrigger {
		return triggerValue(rc)
	}

	var executed []string
	for _, depID := range plan.Dependencies(node.ID) {
		if _, ok := rc.Executed[depID]; ok {
			executed = append(executed, depID)
		}
	}
	switch len(executed) {
	case 0:
		return nil
	case 1:
		return rc.Outputs[executed[0]]
	default:
		merged := make(map[string]any, len(executed))
		for _, depID := range executed {
			merged[depID] = rc.Outputs[depID]
		}
		return merged
	}
}

// buildTopologicalInput feeds a node its first incoming edge's source
// output. Multi-input merge is undefined in this mode; the first declared
// edge wins.
func buildTopologicalInput(plan *graph.Plan, rc *RunContext, node *graph.Node) any {
	if node.Type == graph.NodeTrigger {
		return triggerValue(rc)
	}
	incoming := plan.IncomingEdges(node.ID)
	if len(incoming) == 0 {
		return nil
	}
	return rc.Outputs[incoming[0].Source]
}

func triggerValue(rc *RunContext) any {
	if rc.Trigger == nil {
		return nil
	}
	return rc.Trigger
}
