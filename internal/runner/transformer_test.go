package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTransform(t *testing.T, value any, config map[string]any) Result {
	t.Helper()
	res, err := NewTransformer().Run(context.Background(), Input{Value: value, Config: config})
	require.NoError(t, err)
	return res
}

func TestTransformerPassThrough(t *testing.T) {
	res := runTransform(t, map[string]any{"k": "v"}, nil)
	assert.Equal(t, map[string]any{"k": "v"}, res.Output)
}

func TestTransformerCase(t *testing.T) {
	res := runTransform(t, "hello", map[string]any{"transform_type": "to_uppercase"})
	assert.Equal(t, "HELLO", res.Output)

	res = runTransform(t, "HELLO", map[string]any{"transform_type": "to_lowercase"})
	assert.Equal(t, "hello", res.Output)

	// Non-string input passes through untouched.
	res = runTransform(t, float64(42), map[string]any{"transform_type": "to_uppercase"})
	assert.Equal(t, float64(42), res.Output)
}

func TestTransformerAddPrefix(t *testing.T) {
	res := runTransform(t, "world", map[string]any{"transform_type": "add_prefix", "prefix": "hello "})
	assert.Equal(t, "hello world", res.Output)
}

func TestTransformerJSONPath(t *testing.T) {
	value := map[string]any{
		"issue": map[string]any{"assignee": map[string]any{"login": "dev1"}},
	}
	res := runTransform(t, value, map[string]any{
		"transform_type": "json_path",
		"json_path":      "$.issue.assignee.login",
	})
	assert.Equal(t, map[string]any{"transformed_data": "dev1"}, res.Output)
}

func TestTransformerJSONPathMissing(t *testing.T) {
	res := runTransform(t, map[string]any{"a": 1}, map[string]any{
		"transform_type": "json_path",
		"json_path":      "a.b.c",
	})
	assert.Equal(t, map[string]any{"transformed_data": nil}, res.Output)
}

func TestTransformerTemplate(t *testing.T) {
	res := runTransform(t, map[string]any{"name": "Ada", "count": 3}, map[string]any{
		"transform_type": "template",
		"template":       "{{ name }} has {{ count }} items",
	})
	assert.Equal(t, map[string]any{"transformed_data": "Ada has 3 items"}, res.Output)
}

func TestTransformerTemplateParseError(t *testing.T) {
	_, err := NewTransformer().Run(context.Background(), Input{
		Value:  map[string]any{},
		Config: map[string]any{"transform_type": "template", "template": "{{ broken"},
	})
	require.Error(t, err)
}

func TestTransformerFilter(t *testing.T) {
	items := []any{
		map[string]any{"name": "a", "score": float64(10)},
		map[string]any{"name": "b", "score": float64(3)},
		map[string]any{"name": "c", "score": float64(8)},
	}

	res := runTransform(t, map[string]any{"data": items}, map[string]any{
		"transform_type": "filter",
		"filter_condition": map[string]any{
			"field":    "score",
			"operator": "greater_than",
			"value":    5,
		},
	})

	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	filtered, ok := out["transformed_data"].([]any)
	require.True(t, ok)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].(map[string]any)["name"])
	assert.Equal(t, "c", filtered[1].(map[string]any)["name"])
}

func TestTransformerUnknownType(t *testing.T) {
	_, err := NewTransformer().Run(context.Background(), Input{
		Value:  "x",
		Config: map[string]any{"transform_type": "reticulate"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transform type")
}
