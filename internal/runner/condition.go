package runner

import (
	"context"
	"fmt"
	"strings"
)

// Condition evaluates a boolean check against the node input and returns
// the boolean (with evaluation detail) as output. Downstream edge selection
// uses the "true"/"false" source handles; the coordinator only continues
// down the branch matching the result.
type Condition struct{}

// NewCondition creates the condition runner.
func NewCondition() *Condition { return &Condition{} }

func (c *Condition) Run(ctx context.Context, in Input) (Result, error) {
	conditionType := configString(in.Config, "condition_type")
	if conditionType == "" {
		conditionType = "simple"
	}

	input := asMap(in.Value)

	switch conditionType {
	case "simple":
		return c.evaluateSimple(in.Config, input)
	case "advanced":
		return c.evaluateAdvanced(in.Config, input)
	default:
		return Result{}, fmt.Errorf("unknown condition type: %s", conditionType)
	}
}

func (c *Condition) evaluateSimple(config, input map[string]any) (Result, error) {
	field := configString(config, "field")
	operator := configString(config, "operator")
	expected, hasExpected := config["value"]

	if field == "" || operator == "" || !hasExpected {
		return Result{}, fmt.Errorf("condition configuration incomplete")
	}

	fieldValue := extractField(field, input)
	result, err := compareValues(fieldValue, operator, expected)
	if err != nil {
		return Result{}, err
	}

	return Result{Output: map[string]any{
		"condition_result": result,
		"field_value":      fieldValue,
		"operator":         operator,
		"expected_value":   expected,
	}}, nil
}

func (c *Condition) evaluateAdvanced(config, input map[string]any) (Result, error) {
	rawRules, ok := config["rules"].([]any)
	if !ok || len(rawRules) == 0 {
		return Result{}, fmt.Errorf("no rules configured for advanced condition")
	}

	logical := strings.ToUpper(configString(config, "logical_operator"))
	if logical == "" {
		logical = "AND"
	}

	var ruleResults []map[string]any
	results := make([]bool, 0, len(rawRules))
	for _, raw := range rawRules {
		rule, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		field := configString(rule, "field")
		operator := configString(rule, "operator")
		expected, hasExpected := rule["value"]
		if field == "" || operator == "" || !hasExpected {
			continue
		}
		fieldValue := extractField(field, input)
		result, err := compareValues(fieldValue, operator, expected)
		if err != nil {
			return Result{}, err
		}
		results = append(results, result)
		ruleResults = append(ruleResults, map[string]any{
			"rule":        rule,
			"result":      result,
			"field_value": fieldValue,
		})
	}

	final := logical == "AND"
	for _, r := range results {
		if logical == "AND" {
			final = final && r
		} else {
			final = final || r
		}
	}

	return Result{Output: map[string]any{
		"condition_result": final,
		"rule_results":     ruleResults,
		"logical_operator": logical,
	}}, nil
}

// BranchResult extracts the boolean a condition node produced. It accepts
// a bare bool or the detail map shape.
func BranchResult(output any) (result, ok bool) {
	switch v := output.(type) {
	case bool:
		return v, true
	case map[string]any:
		if b, found := v["condition_result"].(bool); found {
			return b, true
		}
	}
	return false, false
}

// extractField resolves a dotted path ("issue.status") in nested maps.
// Missing segments yield nil.
func extractField(field string, data map[string]any) any {
	var value any = data
	for _, key := range strings.Split(field, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value, ok = m[key]
		if !ok {
			return nil
		}
	}
	return value
}

func compareValues(fieldValue any, operator string, expected any) (bool, error) {
	switch operator {
	case "equals":
		return equalValues(fieldValue, expected), nil
	case "not_equals":
		return !equalValues(fieldValue, expected), nil
	case "contains":
		return strings.Contains(stringify(fieldValue), stringify(expected)), nil
	case "not_contains":
		return !strings.Contains(stringify(fieldValue), stringify(expected)), nil
	case "length_greater_than", "length_less_than":
		length, ok := lengthOf(fieldValue)
		if !ok {
			return false, nil
		}
		right, rok := toFloat(expected)
		if !rok {
			return false, nil
		}
		if operator == "length_greater_than" {
			return float64(length) > right, nil
		}
		return float64(length) < right, nil
	case "greater_than", "less_than", "greater_than_or_equal", "less_than_or_equal":
		left, lok := toFloat(fieldValue)
		right, rok := toFloat(expected)
		if !lok || !rok {
			return false, nil
		}
		switch operator {
		case "greater_than":
			return left > right, nil
		case "less_than":
			return left < right, nil
		case "greater_than_or_equal":
			return left >= right, nil
		default:
			return left <= right, nil
		}
	default:
		return false, fmt.Errorf("unknown condition operator: %s", operator)
	}
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

func lengthOf(v any) (int, bool) {
	switch s := v.(type) {
	case string:
		return len(s), true
	case []any:
		return len(s), true
	case map[string]any:
		return len(s), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
