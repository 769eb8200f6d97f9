package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/credential"
	"github.com/worqly/orchestrator/internal/event"
	"github.com/worqly/orchestrator/internal/graph"
	"github.com/worqly/orchestrator/internal/provider"
	"github.com/worqly/orchestrator/internal/runner"
)

// recordingStore captures everything the coordinator persists.
type recordingStore struct {
	mu      sync.Mutex
	records []ExecutionRecord
	finals  []*RunResult
}

func (s *recordingStore) AppendExecutionRecord(_ context.Context, record *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

func (s *recordingStore) FinalizeRun(_ context.Context, result *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, result)
	return nil
}

func (s *recordingStore) recordFor(nodeID string) *ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].NodeID == nodeID {
			return &s.records[i]
		}
	}
	return nil
}

func builtinRegistry(t *testing.T) *runner.Registry {
	t.Helper()
	nop := zap.NewNop().Sugar()
	reg := runner.NewRegistry()
	credentials := credential.NewManager(credential.NewMemoryStore(), nop)
	runner.RegisterBuiltins(reg, provider.NewRegistry(), credentials, nop)
	return reg
}

func newTestCoordinator(t *testing.T, reg *runner.Registry, store RecordStore, opts Options) *Coordinator {
	t.Helper()
	return NewCoordinator(reg, store, nil, zap.NewNop().Sugar(), opts)
}

// branchGraph is a trigger feeding a string-length check with one
// transformer on each branch.
func branchGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: []graph.Node{
			{ID: "start", Type: graph.NodeTrigger},
			{ID: "check", Type: graph.NodeCondition, Config: map[string]any{
				"field":    "message",
				"operator": "length_greater_than",
				"value":    5,
			}},
			{ID: "long_path", Type: graph.NodeTransformer},
			{ID: "short_path", Type: graph.NodeTransformer},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "long_path", SourceHandle: "true"},
			{ID: "e3", Source: "check", Target: "short_path", SourceHandle: "false"},
		},
	}
}

func TestRunConditionFalseBranch(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, builtinRegistry(t), store, Options{})

	result, err := c.Run(context.Background(), branchGraph(), map[string]any{"message": "HI"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, RunCompleted, result.Status)

	assert.Contains(t, result.Outputs, "start")
	assert.Contains(t, result.Outputs, "check")
	assert.Contains(t, result.Outputs, "short_path")
	assert.NotContains(t, result.Outputs, "long_path")

	skipped := store.recordFor("long_path")
	require.NotNil(t, skipped)
	assert.Equal(t, StatusSkipped, skipped.Status)

	check, ok := result.Outputs["check"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, check["condition_result"])
}

func TestRunConditionTrueBranch(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, builtinRegistry(t), store, Options{})

	result, err := c.Run(context.Background(), branchGraph(), map[string]any{"message": "HELLO WORLD"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Outputs, "long_path")
	assert.NotContains(t, result.Outputs, "short_path")

	skipped := store.recordFor("short_path")
	require.NotNil(t, skipped)
	assert.Equal(t, StatusSkipped, skipped.Status)
}

func TestRunCycleFailsBeforeAnyNode(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, builtinRegistry(t), store, Options{})

	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "start", Type: graph.NodeTrigger},
			{ID: "a", Type: graph.NodeTransformer},
			{ID: "b", Type: graph.NodeTransformer},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
			{ID: "e3", Source: "b", Target: "a"},
		},
	}

	result, err := c.Run(context.Background(), g, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, graph.ErrCycle))

	var ge *graph.GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, []string{"a", "b"}, ge.Nodes)

	assert.Empty(t, store.records, "no node may run for an uncompilable workflow")
	assert.Empty(t, store.finals)
}

func TestRunUnknownRunnerFailsNodeNotRun(t *testing.T) {
	store := &recordingStore{}
	reg := builtinRegistry(t)
	c := newTestCoordinator(t, reg, store, Options{})

	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "start", Type: graph.NodeTrigger},
			{ID: "mystery", Type: graph.NodeType("nonexistent")},
			{ID: "after", Type: graph.NodeTransformer},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "mystery"},
			{ID: "e2", Source: "mystery", Target: "after"},
		},
	}

	// Validation flags the unregistered type without executing anything.
	v := c.Validate(g)
	assert.False(t, v.Valid)

	result, err := c.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, RunFailed, result.Status)
	assert.Contains(t, result.Error, "mystery")

	rec := store.recordFor("mystery")
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "no runner found for node type: nonexistent")

	// The trigger's output survives the downstream failure.
	assert.Contains(t, result.Outputs, "start")
}

func TestRunExecutesEachNodeExactlyOnce(t *testing.T) {
	reg := builtinRegistry(t)
	var mu sync.Mutex
	counts := make(map[string]int)
	reg.Register(graph.NodeType("count"), runner.Func(func(_ context.Context, in runner.Input) (runner.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		tag, _ := in.Config["tag"].(string)
		counts[tag]++
		return runner.Result{Output: tag}, nil
	}))

	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "a", Type: graph.NodeType("count"), Config: map[string]any{"tag": "a"}},
			{ID: "b", Type: graph.NodeType("count"), Config: map[string]any{"tag": "b"}},
			{ID: "c", Type: graph.NodeType("count"), Config: map[string]any{"tag": "c"}},
			{ID: "d", Type: graph.NodeType("count"), Config: map[string]any{"tag": "d"}},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}

	for _, kind := range []StrategyKind{StrategyRecursive, StrategyTopological} {
		mu.Lock()
		clear(counts)
		mu.Unlock()

		c := newTestCoordinator(t, reg, nil, Options{Strategy: kind})
		result, err := c.Run(context.Background(), g, nil)
		require.NoError(t, err)
		assert.True(t, result.Success)

		mu.Lock()
		assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, counts, "strategy %s", kind)
		mu.Unlock()
	}
}

// failureGraph: start → boom (always fails) → after, plus an independent
// side branch off start.
func failureGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: []graph.Node{
			{ID: "start", Type: graph.NodeTrigger},
			{ID: "boom", Type: graph.NodeType("explode")},
			{ID: "after", Type: graph.NodeTransformer},
			{ID: "side", Type: graph.NodeTransformer},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "start", Target: "boom"},
			{ID: "e2", Source: "boom", Target: "after"},
			{ID: "e3", Source: "start", Target: "side"},
		},
	}
}

func explodingRegistry(t *testing.T) *runner.Registry {
	reg := builtinRegistry(t)
	reg.Register(graph.NodeType("explode"), runner.Func(func(context.Context, runner.Input) (runner.Result, error) {
		return runner.Result{}, errors.New("kaboom")
	}))
	return reg
}

func TestRunRecursiveFailsDependentSubtree(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, explodingRegistry(t), store, Options{Strategy: StrategyRecursive})

	result, err := c.Run(context.Background(), failureGraph(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed nodes: [after, boom]")

	after := store.recordFor("after")
	require.NotNil(t, after)
	assert.Equal(t, StatusFailed, after.Status)
	assert.Equal(t, "dependency failed: boom", after.Error)

	// The independent branch still ran.
	side := store.recordFor("side")
	require.NotNil(t, side)
	assert.Equal(t, StatusCompleted, side.Status)
	assert.Contains(t, result.Outputs, "side")
}

func TestRunTopologicalAbortsOnFirstFailure(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, explodingRegistry(t), store, Options{Strategy: StrategyTopological})

	result, err := c.Run(context.Background(), failureGraph(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "boom")

	// Everything ordered after the failure is skipped, including the
	// branch that does not depend on it.
	after := store.recordFor("after")
	require.NotNil(t, after)
	assert.Equal(t, StatusSkipped, after.Status)
}

func TestRunContextPatchFlowsDownstream(t *testing.T) {
	reg := builtinRegistry(t)
	reg.Register(graph.NodeType("patcher"), runner.Func(func(context.Context, runner.Input) (runner.Result, error) {
		return runner.Result{
			Output:       "done",
			ContextPatch: map[string]any{"token": "abc123"},
		}, nil
	}))
	var seen any
	reg.Register(graph.NodeType("reader"), runner.Func(func(_ context.Context, in runner.Input) (runner.Result, error) {
		seen = in.Shared["token"]
		return runner.Result{Output: "read"}, nil
	}))

	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "p", Type: graph.NodeType("patcher")},
			{ID: "r", Type: graph.NodeType("reader")},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "p", Target: "r"}},
	}

	c := newTestCoordinator(t, reg, nil, Options{})
	result, err := c.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc123", seen)
}

func TestRunNodeTimeout(t *testing.T) {
	reg := builtinRegistry(t)
	reg.Register(graph.NodeType("sleeper"), runner.Func(func(ctx context.Context, _ runner.Input) (runner.Result, error) {
		select {
		case <-time.After(time.Second):
			return runner.Result{Output: "slept"}, nil
		case <-ctx.Done():
			return runner.Result{}, ctx.Err()
		}
	}))

	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "slow", Type: graph.NodeType("sleeper")}},
	}

	store := &recordingStore{}
	c := newTestCoordinator(t, reg, store, Options{NodeTimeout: 20 * time.Millisecond})
	result, err := c.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)

	rec := store.recordFor("slow")
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "context deadline exceeded")
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	bus := event.NewBus(zap.NewNop().Sugar())
	var mu sync.Mutex
	var types []string
	bus.Subscribe("*", func(evt *event.Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, evt.Type)
	})

	c := NewCoordinator(builtinRegistry(t), nil, bus, zap.NewNop().Sugar(), Options{})
	g := &graph.Graph{Nodes: []graph.Node{{ID: "start", Type: graph.NodeTrigger}}}

	_, err := c.Run(context.Background(), g, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"run.started", "node.started", "node.completed", "run.completed"}, types)
}

func TestRunFinalizesResult(t *testing.T) {
	store := &recordingStore{}
	c := newTestCoordinator(t, builtinRegistry(t), store, Options{})

	g := &graph.Graph{Nodes: []graph.Node{{ID: "start", Type: graph.NodeTrigger}}}
	result, err := c.Run(context.Background(), g, map[string]any{"k": "v"})
	require.NoError(t, err)

	require.Len(t, store.finals, 1)
	assert.Equal(t, result.RunID, store.finals[0].RunID)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, map[string]any{"k": "v"}, result.Outputs["start"])
}
