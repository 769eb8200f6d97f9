package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearGraph() *Graph {
	return &Graph{
		Nodes: []Node{
			{ID: "start", Type: NodeTrigger},
			{ID: "work", Type: NodeAction},
			{ID: "notify", Type: NodeWebhook},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "work"},
			{ID: "e2", Source: "work", Target: "notify"},
		},
	}
}

func TestCompileLinearOrder(t *testing.T) {
	plan, err := Compile(linearGraph())
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "work", "notify"}, plan.Order())
	assert.Equal(t, []string{"start"}, plan.Roots())
	assert.Equal(t, []string{"work"}, plan.Dependencies("notify"))
	assert.Equal(t, []string{"work"}, plan.Successors("start"))
	assert.Equal(t, 3, plan.Len())
}

func TestCompileDiamondRespectsDependencies(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeTrigger},
			{ID: "b", Type: NodeAction},
			{ID: "c", Type: NodeAction},
			{ID: "d", Type: NodeWebhook},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}

	plan, err := Compile(g)
	require.NoError(t, err)

	pos := make(map[string]int, len(plan.Order()))
	for i, id := range plan.Order() {
		pos[id] = i
	}
	for _, e := range g.Edges {
		assert.Less(t, pos[e.Source], pos[e.Target], "edge %s must be respected", e.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Dependencies("d"))
}

func TestCompileIsDeterministic(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "t", Type: NodeTrigger},
			{ID: "z", Type: NodeAction},
			{ID: "m", Type: NodeAction},
			{ID: "a", Type: NodeAction},
		},
		Edges: []Edge{
			{ID: "e1", Source: "t", Target: "z"},
			{ID: "e2", Source: "t", Target: "m"},
			{ID: "e3", Source: "t", Target: "a"},
		},
	}

	first, err := Compile(g)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		plan, err := Compile(g)
		require.NoError(t, err)
		assert.Equal(t, first.Order(), plan.Order())
	}
	// Siblings surface in declaration order, not sorted order.
	assert.Equal(t, []string{"t", "z", "m", "a"}, first.Order())
}

func TestCompileCycleReportsMembers(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Type: NodeTrigger},
			{ID: "a", Type: NodeAction},
			{ID: "b", Type: NodeAction},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
			{ID: "e3", Source: "b", Target: "a"},
		},
	}

	_, err := Compile(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, []string{"a", "b"}, ge.Nodes)
	assert.Contains(t, ge.Error(), "a, b")
}

func TestCompileNoEntryPoint(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeAction},
			{ID: "b", Type: NodeAction},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}

	_, err := Compile(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEntryPoint))
}

func TestCompileEmptyGraph(t *testing.T) {
	plan, err := Compile(&Graph{})
	require.NoError(t, err)
	assert.Empty(t, plan.Order())
	assert.Empty(t, plan.Roots())
}

func TestCompileIgnoresDanglingEdges(t *testing.T) {
	g := linearGraph()
	g.Edges = append(g.Edges, Edge{ID: "bad", Source: "work", Target: "ghost"})

	plan, err := Compile(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "work", "notify"}, plan.Order())
	assert.Empty(t, plan.OutgoingEdges("ghost"))
}

func TestCompileSkipsDisabledNodes(t *testing.T) {
	g := linearGraph()
	g.Nodes[2].Disabled = true

	plan, err := Compile(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "work"}, plan.Order())
	assert.Nil(t, plan.Node("notify"))
}

func TestCompileDuplicateNodeID(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeTrigger},
			{ID: "a", Type: NodeAction},
		},
	}
	_, err := Compile(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}
