// Package runner maps node types (and, for action nodes, capability
// provider names) to executable behaviors with a uniform contract:
// run(input, sharedContext, config) → (output, contextPatch).
package runner

import (
	"context"
	"fmt"
)

// Input carries everything a runner may read.
type Input struct {
	// Value is the upstream output (or trigger payload) feeding this node.
	Value any
	// Shared is a read-only view of the run's shared context.
	Shared map[string]any
	// Config is the node's opaque configuration map.
	Config map[string]any
}

// Result is what a runner produces.
type Result struct {
	// Output becomes the node's recorded output and downstream input.
	Output any
	// ContextPatch is merged into the run's shared context on success.
	ContextPatch map[string]any
}

// Runner executes one node. Runners never swallow errors: any failure is
// returned to the coordinator, which records it.
type Runner interface {
	Run(ctx context.Context, in Input) (Result, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, in Input) (Result, error)

func (f Func) Run(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}

// NotFoundError means a node declared a type or provider no runner is
// registered for. It fails that node, not necessarily the whole run.
type NotFoundError struct {
	Type     string
	Provider string
}

func (e *NotFoundError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("no runner found for node type: %s (provider %s)", e.Type, e.Provider)
	}
	return fmt.Sprintf("no runner found for node type: %s", e.Type)
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func configMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
