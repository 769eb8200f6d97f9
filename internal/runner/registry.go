package runner

import (
	"sync"

	"github.com/worqly/orchestrator/internal/graph"
)

// Registry maps a node's declared type to a Runner. Action nodes resolve
// through their capability provider name first.
type Registry struct {
	mu      sync.RWMutex
	byType  map[graph.NodeType]Runner
	actions map[string]Runner // provider name → runner
}

// NewRegistry creates an empty runner registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[graph.NodeType]Runner),
		actions: make(map[string]Runner),
	}
}

// Register binds a runner to a node type.
func (r *Registry) Register(t graph.NodeType, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = runner
}

// RegisterAction binds a runner to an action provider name. Action nodes
// naming that provider dispatch here instead of the generic action runner.
func (r *Registry) RegisterAction(provider string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[provider] = runner
}

// Resolve returns the runner for a node, or a *NotFoundError.
func (r *Registry) Resolve(node *graph.Node) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if node.Type == graph.NodeAction && node.Provider != "" {
		if runner, ok := r.actions[node.Provider]; ok {
			return runner, nil
		}
	}
	if runner, ok := r.byType[node.Type]; ok {
		return runner, nil
	}
	return nil, &NotFoundError{Type: string(node.Type), Provider: node.Provider}
}

// Knows reports whether a node type has a registered runner. Used by
// validation to flag unknown node types without executing anything.
func (r *Registry) Knows(t graph.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byType[t]
	return ok
}
