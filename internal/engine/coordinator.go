package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/event"
	"github.com/worqly/orchestrator/internal/graph"
	"github.com/worqly/orchestrator/internal/runner"
)

// Options tune one coordinator.
type Options struct {
	// NodeTimeout bounds each node execution. Zero means the default.
	NodeTimeout time.Duration
	// Strategy selects the traversal mode; defaults to recursive.
	Strategy StrategyKind
}

// DefaultNodeTimeout bounds a single node execution unless overridden.
const DefaultNodeTimeout = 5 * time.Minute

// Coordinator owns workflow runs: it compiles the graph, walks it
// dependency-first, dispatches each ready node to the registry, merges
// outputs into the run's data map, and decides run-level success.
type Coordinator struct {
	registry *runner.Registry
	records  RecordStore // optional; nil skips persistence
	bus      *event.Bus  // optional; nil skips events
	logger   *zap.SugaredLogger
	opts     Options
}

// NewCoordinator creates a coordinator. records and bus may be nil for
// preview runs that need no durable history.
func NewCoordinator(registry *runner.Registry, records RecordStore, bus *event.Bus, logger *zap.SugaredLogger, opts Options) *Coordinator {
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = DefaultNodeTimeout
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRecursive
	}
	return &Coordinator{
		registry: registry,
		records:  records,
		bus:      bus,
		logger:   logger,
		opts:     opts,
	}
}

// Validate checks a graph structurally, flagging node types the registry
// has no runner for. It never executes anything and is idempotent.
func (c *Coordinator) Validate(g *graph.Graph) graph.Validation {
	return graph.Validate(g, c.registry.Knows)
}

// Run executes a workflow synchronously and returns the aggregate result.
// Graph errors abort before any node runs and before any record is
// produced; node failures are recorded and reflected in the result, which
// always carries the partial outputs.
func (c *Coordinator) Run(ctx context.Context, g *graph.Graph, trigger map[string]any) (*RunResult, error) {
	plan, err := graph.Compile(g)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}

	runID := uuid.New().String()
	rc := newRunContext(runID, trigger)

	strategy, err := strategyFor(c.opts.Strategy)
	if err != nil {
		return nil, err
	}

	c.logger.Infow("Run started",
		"run_id", runID,
		"strategy", strategy.Name(),
		"node_count", plan.Len(),
	)
	c.publish(rc, "", "run.started", map[string]any{
		"node_count": plan.Len(),
		"strategy":   strategy.Name(),
	})

	if err := strategy.Execute(ctx, c, plan, rc); err != nil {
		// Cancellation or deadline while walking the graph: surface the
		// partial result alongside the error.
		result := c.finish(ctx, rc)
		return result, err
	}

	return c.finish(ctx, rc), nil
}

// finish assembles the immutable result, publishes the terminal event and
// hands the result to the record store.
func (c *Coordinator) finish(ctx context.Context, rc *RunContext) *RunResult {
	result := &RunResult{
		RunID:   rc.RunID,
		Success: len(rc.Failed) == 0,
		Outputs: rc.Outputs,
		Records: rc.records,
	}
	if result.Success {
		result.Status = RunCompleted
		c.logger.Infow("Run completed", "run_id", rc.RunID, "nodes_executed", len(rc.Executed))
		c.publish(rc, "", "run.completed", map[string]any{"nodes_executed": len(rc.Executed)})
	} else {
		failed := make([]string, 0, len(rc.Failed))
		for id := range rc.Failed {
			failed = append(failed, id)
		}
		sort.Strings(failed)
		result.Status = RunFailed
		result.Error = fmt.Sprintf("failed nodes: [%s]", strings.Join(failed, ", "))
		c.logger.Warnw("Run failed", "run_id", rc.RunID, "failed_nodes", failed)
		c.publish(rc, "", "run.failed", map[string]any{"error": result.Error})
	}

	if c.records != nil {
		if err := c.records.FinalizeRun(ctx, result); err != nil {
			c.logger.Errorw("Failed to finalize run", "run_id", rc.RunID, "error", err)
		}
	}
	return result
}

// executeNode runs one node's full lifecycle: mark running, build input,
// invoke the runner under the node timeout, then record the outcome and
// fold output and context patch into the run context.
func (c *Coordinator) executeNode(ctx context.Context, rc *RunContext, node *graph.Node, input any) error {
	record := ExecutionRecord{
		RunID:     rc.RunID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		NodeName:  node.Name,
		Status:    StatusRunning,
		Input:     input,
		StartedAt: time.Now(),
	}
	c.publish(rc, node.ID, "node.started", nil)

	res, err := c.invoke(ctx, node, rc, input)

	record.CompletedAt = time.Now()
	record.Duration = record.CompletedAt.Sub(record.StartedAt)

	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		rc.Failed[node.ID] = struct{}{}
		c.append(ctx, rc, record)
		c.logger.Warnw("Node failed",
			"run_id", rc.RunID,
			"node_id", node.ID,
			"node_type", node.Type,
			"error", err,
		)
		c.publish(rc, node.ID, "node.failed", map[string]any{"error": err.Error()})
		return err
	}

	record.Status = StatusCompleted
	record.Output = res.Output
	rc.Executed[node.ID] = struct{}{}
	rc.Outputs[node.ID] = res.Output

	if len(res.ContextPatch) > 0 {
		if mergeErr := mergo.Merge(&rc.Shared, res.ContextPatch, mergo.WithOverride); mergeErr != nil {
			c.logger.Warnw("Failed to merge context patch", "node_id", node.ID, "error", mergeErr)
		}
	}

	c.append(ctx, rc, record)
	c.publish(rc, node.ID, "node.completed", nil)
	return nil
}

// invoke resolves and calls the runner with the per-node timeout applied.
func (c *Coordinator) invoke(ctx context.Context, node *graph.Node, rc *RunContext, input any) (runner.Result, error) {
	r, err := c.registry.Resolve(node)
	if err != nil {
		return runner.Result{}, err
	}

	nodeCtx, cancel := context.WithTimeout(ctx, c.opts.NodeTimeout)
	defer cancel()

	return r.Run(nodeCtx, runner.Input{
		Value:  input,
		Shared: rc.Shared,
		Config: nodeConfig(node),
	})
}

// markDependencyFailed fails a node without running it because one of its
// upstream dependencies failed.
func (c *Coordinator) markDependencyFailed(ctx context.Context, rc *RunContext, node *graph.Node, depID string) {
	now := time.Now()
	rc.Failed[node.ID] = struct{}{}
	record := ExecutionRecord{
		RunID:       rc.RunID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeName:    node.Name,
		Status:      StatusFailed,
		Error:       fmt.Sprintf("dependency failed: %s", depID),
		StartedAt:   now,
		CompletedAt: now,
	}
	c.append(ctx, rc, record)
	c.publish(rc, node.ID, "node.failed", map[string]any{"error": record.Error})
}

// markSkipped records a node left unexecuted (untaken branch, or remainder
// after a fail-fast abort).
func (c *Coordinator) markSkipped(ctx context.Context, rc *RunContext, node *graph.Node) {
	now := time.Now()
	rc.Skipped[node.ID] = struct{}{}
	record := ExecutionRecord{
		RunID:       rc.RunID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeName:    node.Name,
		Status:      StatusSkipped,
		StartedAt:   now,
		CompletedAt: now,
	}
	c.append(ctx, rc, record)
	c.publish(rc, node.ID, "node.skipped", nil)
}

func (c *Coordinator) append(ctx context.Context, rc *RunContext, record ExecutionRecord) {
	rc.records = append(rc.records, record)
	if c.records != nil {
		if err := c.records.AppendExecutionRecord(ctx, &record); err != nil {
			c.logger.Errorw("Failed to append execution record",
				"run_id", rc.RunID,
				"node_id", record.NodeID,
				"error", err,
			)
		}
	}
}

func (c *Coordinator) publish(rc *RunContext, nodeID, eventType string, data map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(&event.Event{
		Type:   eventType,
		RunID:  rc.RunID,
		NodeID: nodeID,
		Data:   data,
	})
}

// nodeConfig builds the config map a runner sees, folding the node's
// provider and credential reference in so action runners can resolve them.
func nodeConfig(node *graph.Node) map[string]any {
	if node.Provider == "" && node.CredentialRef == "" {
		return node.Config
	}
	config := make(map[string]any, len(node.Config)+2)
	for k, v := range node.Config {
		config[k] = v
	}
	if node.Provider != "" {
		if _, ok := config["provider"]; !ok {
			config["provider"] = node.Provider
		}
	}
	if node.CredentialRef != "" {
		if _, ok := config["credential_ref"]; !ok {
			config["credential_ref"] = node.CredentialRef
		}
	}
	return config
}

// edgeTaken reports whether traversal continues down an edge after its
// source node produced output. Condition nodes only take the edge whose
// handle matches the boolean result; unlabeled edges are always taken.
func edgeTaken(source *graph.Node, output any, e graph.Edge) bool {
	if source.Type != graph.NodeCondition || e.SourceHandle == "" {
		return true
	}
	result, ok := runner.BranchResult(output)
	if !ok {
		return true
	}
	if result {
		return e.SourceHandle == "true"
	}
	return e.SourceHandle == "false"
}
