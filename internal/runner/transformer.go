package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Transformer reshapes its input deterministically, with no side effects.
// Supported transform_type values: pass_through, to_uppercase, to_lowercase,
// add_prefix, json_path, template, filter.
type Transformer struct{}

// NewTransformer creates the transformer runner.
func NewTransformer() *Transformer { return &Transformer{} }

func (t *Transformer) Run(ctx context.Context, in Input) (Result, error) {
	transformType := configString(in.Config, "transform_type")
	if transformType == "" {
		transformType = configString(in.Config, "type")
	}

	switch transformType {
	case "", "pass_through":
		return Result{Output: in.Value}, nil

	case "to_uppercase":
		if s, ok := in.Value.(string); ok {
			return Result{Output: strings.ToUpper(s)}, nil
		}
		return Result{Output: in.Value}, nil

	case "to_lowercase":
		if s, ok := in.Value.(string); ok {
			return Result{Output: strings.ToLower(s)}, nil
		}
		return Result{Output: in.Value}, nil

	case "add_prefix":
		prefix := configString(in.Config, "prefix")
		return Result{Output: prefix + stringify(in.Value)}, nil

	case "json_path":
		return t.transformJSONPath(in)

	case "template":
		return t.transformTemplate(in)

	case "filter":
		return t.transformFilter(in)

	default:
		return Result{}, fmt.Errorf("unknown transform type: %s", transformType)
	}
}

// transformJSONPath extracts a dotted path from the input.
func (t *Transformer) transformJSONPath(in Input) (Result, error) {
	path := configString(in.Config, "json_path")
	if path == "" {
		return Result{}, fmt.Errorf("json path not configured")
	}
	path = strings.TrimPrefix(path, "$.")

	value := extractField(path, asMap(in.Value))
	return Result{Output: map[string]any{"transformed_data": value}}, nil
}

// transformTemplate renders a template against the input map.
func (t *Transformer) transformTemplate(in Input) (Result, error) {
	tmpl := configString(in.Config, "template")
	if tmpl == "" {
		return Result{}, fmt.Errorf("template not configured")
	}

	tpl, err := pongo2.FromString(tmpl)
	if err != nil {
		return Result{}, fmt.Errorf("parse template: %w", err)
	}

	rendered, err := tpl.Execute(pongo2.Context(asMap(in.Value)))
	if err != nil {
		return Result{}, fmt.Errorf("template transformation failed: %w", err)
	}
	return Result{Output: map[string]any{"transformed_data": rendered}}, nil
}

// transformFilter keeps input items matching a field/operator/value check.
// Items come from input["data"], or the input itself when it is a slice.
func (t *Transformer) transformFilter(in Input) (Result, error) {
	cond := configMap(in.Config, "filter_condition")
	if cond == nil {
		return Result{}, fmt.Errorf("filter condition not configured")
	}

	var items []any
	switch v := in.Value.(type) {
	case []any:
		items = v
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			items = data
		}
	}

	field := configString(cond, "field")
	operator := configString(cond, "operator")
	expected, hasExpected := cond["value"]

	filtered := make([]any, 0, len(items))
	for _, item := range items {
		if field == "" || operator == "" || !hasExpected {
			filtered = append(filtered, item)
			continue
		}
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		match, err := compareValues(extractField(field, itemMap), operator, expected)
		if err != nil {
			return Result{}, fmt.Errorf("filter transformation failed: %w", err)
		}
		if match {
			filtered = append(filtered, item)
		}
	}

	return Result{Output: map[string]any{"transformed_data": filtered}}, nil
}
