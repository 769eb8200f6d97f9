package runner

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/worqly/orchestrator/internal/graph"
)

// Loop iterates a collection, invoking a nested runner once per element.
// Config:
//
//	source:  dotted path into the input selecting the collection; empty
//	         means the input itself (which must then be a slice).
//	runner:  {"type": <node type>, "config": {...}} names the nested runner
//	         each element is fed through.
//
// Elements run sequentially in order; the first element failure aborts the
// loop. Output is the ordered slice of element outputs; element context
// patches are merged left to right.
type Loop struct {
	registry *Registry
}

// NewLoop creates the loop runner. It resolves its nested runner from the
// same registry the coordinator dispatches through.
func NewLoop(registry *Registry) *Loop {
	return &Loop{registry: registry}
}

func (l *Loop) Run(ctx context.Context, in Input) (Result, error) {
	items, err := loopItems(in)
	if err != nil {
		return Result{}, err
	}

	nested := configMap(in.Config, "runner")
	if nested == nil {
		return Result{}, fmt.Errorf("loop runner not configured")
	}
	nestedType := graph.NodeType(configString(nested, "type"))
	nestedConfig := configMap(nested, "config")

	sub, err := l.registry.Resolve(&graph.Node{Type: nestedType, Provider: configString(nested, "provider")})
	if err != nil {
		return Result{}, err
	}

	outputs := make([]any, 0, len(items))
	patch := make(map[string]any)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := sub.Run(ctx, Input{Value: item, Shared: in.Shared, Config: nestedConfig})
		if err != nil {
			return Result{}, fmt.Errorf("loop element %d: %w", i, err)
		}
		outputs = append(outputs, res.Output)
		if len(res.ContextPatch) > 0 {
			if err := mergo.Merge(&patch, res.ContextPatch, mergo.WithOverride); err != nil {
				return Result{}, fmt.Errorf("merge loop context patch: %w", err)
			}
		}
	}

	return Result{Output: outputs, ContextPatch: patch}, nil
}

func loopItems(in Input) ([]any, error) {
	source := configString(in.Config, "source")
	if source == "" {
		if items, ok := in.Value.([]any); ok {
			return items, nil
		}
		return nil, fmt.Errorf("loop input is not a collection")
	}

	value := extractField(source, asMap(in.Value))
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("loop source %q is not a collection", source)
	}
	return items, nil
}
