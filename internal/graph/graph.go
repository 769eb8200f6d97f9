package graph

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType is the closed set of node kinds the engine can execute.
type NodeType string

const (
	NodeTrigger     NodeType = "trigger"
	NodeAction      NodeType = "action"
	NodeCondition   NodeType = "condition"
	NodeTransformer NodeType = "transformer"
	NodeWebhook     NodeType = "webhook"
	NodeDelay       NodeType = "delay"
	NodeLoop        NodeType = "loop"
)

// KnownType reports whether t is one of the built-in node kinds.
func KnownType(t NodeType) bool {
	switch t {
	case NodeTrigger, NodeAction, NodeCondition, NodeTransformer, NodeWebhook, NodeDelay, NodeLoop:
		return true
	}
	return false
}

// Node is a single step in a workflow. Immutable once a run starts.
type Node struct {
	ID            string         `json:"id"`
	Type          NodeType       `json:"type"`
	Name          string         `json:"name"`
	Config        map[string]any `json:"config"`
	Provider      string         `json:"provider,omitempty"`       // external capability provider, action nodes only
	CredentialRef string         `json:"credential_ref,omitempty"` // provider credential lookup key
	Disabled      bool           `json:"disabled,omitempty"`
}

// Edge is a directed dependency: Target depends on Source's output.
// SourceHandle names the output port; condition nodes use "true"/"false".
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	Disabled     bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Graph is one workflow version: a set of nodes and the edges between them.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Enabled returns the graph restricted to enabled nodes and edges.
func (g *Graph) Enabled() *Graph {
	out := &Graph{}
	for _, n := range g.Nodes {
		if !n.Disabled {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if !e.Disabled {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

var (
	// ErrCycle means the node/edge set does not form a DAG.
	ErrCycle = errors.New("workflow contains a cycle")
	// ErrNoEntryPoint means no node has zero incoming edges.
	ErrNoEntryPoint = errors.New("workflow has no entry point")
)

// GraphError is a structural error that prevents a run from starting.
type GraphError struct {
	Err   error
	Nodes []string // nodes involved, when known (cycle members, sorted)
}

func (e *GraphError) Error() string {
	if len(e.Nodes) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: [%s]", e.Err.Error(), strings.Join(e.Nodes, ", "))
}

func (e *GraphError) Unwrap() error {
	return e.Err
}
