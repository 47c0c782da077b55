package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ConditionKind discriminates the expression tree nodes.
type ConditionKind string

const (
	ConditionKindCompare ConditionKind = "compare"
	ConditionKindAnd     ConditionKind = "and"
	ConditionKindOr      ConditionKind = "or"
	ConditionKindNot     ConditionKind = "not"
)

// CompareOperator is the comparison operator of a compare node.
type CompareOperator string

const (
	OperatorEq       CompareOperator = "eq"
	OperatorNeq      CompareOperator = "neq"
	OperatorGt       CompareOperator = "gt"
	OperatorGte      CompareOperator = "gte"
	OperatorLt       CompareOperator = "lt"
	OperatorLte      CompareOperator = "lte"
	OperatorContains CompareOperator = "contains"
	OperatorIn       CompareOperator = "in"
)

// Condition is a boolean expression tree evaluated against an event payload.
// Compare nodes resolve Field as a dotted path into the payload; and/or/not
// combine Children.
type Condition struct {
	Kind     ConditionKind   `json:"kind"`
	Field    string          `json:"field,omitempty"`
	Operator CompareOperator `json:"operator,omitempty"`
	Value    any             `json:"value,omitempty"`
	Children []Condition     `json:"children,omitempty"`
}

// Evaluate walks the expression against the payload. It is pure, deterministic
// and safe to call concurrently. Missing fields and malformed expressions make
// any comparison evaluate to false rather than erroring, so partial payloads
// fail closed.
func (c *Condition) Evaluate(payload map[string]any) bool {
	if c == nil {
		return false
	}

	switch c.Kind {
	case ConditionKindCompare:
		return c.evaluateCompare(payload)
	case ConditionKindAnd:
		if len(c.Children) == 0 {
			return false
		}

		for i := range c.Children {
			if !c.Children[i].Evaluate(payload) {
				return false
			}
		}

		return true
	case ConditionKindOr:
		for i := range c.Children {
			if c.Children[i].Evaluate(payload) {
				return true
			}
		}

		return false
	case ConditionKindNot:
		if len(c.Children) != 1 {
			return false
		}

		return !c.Children[0].Evaluate(payload)
	default:
		return false
	}
}

func (c *Condition) evaluateCompare(payload map[string]any) bool {
	actual, found := resolvePath(payload, c.Field)
	if !found {
		return false
	}

	switch c.Operator {
	case OperatorEq:
		return looseEqual(actual, c.Value)
	case OperatorNeq:
		return !looseEqual(actual, c.Value)
	case OperatorGt, OperatorGte, OperatorLt, OperatorLte:
		return compareNumeric(actual, c.Value, c.Operator)
	case OperatorContains:
		return evaluateContains(actual, c.Value)
	case OperatorIn:
		return evaluateIn(actual, c.Value)
	default:
		return false
	}
}

// resolvePath walks the payload by dotted key. The second return is false when
// any path segment is absent or a non-object is traversed.
func resolvePath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")

	var current any = payload

	for _, segment := range segments {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// looseEqual compares with numeric coercion when both sides are numbers and
// case-sensitive exact match for strings.
func looseEqual(actual, expected any) bool {
	if actualNum, ok := toNumber(actual); ok {
		if expectedNum, ok := toNumber(expected); ok {
			return actualNum == expectedNum
		}
	}

	actualStr, actualIsStr := actual.(string)
	expectedStr, expectedIsStr := expected.(string)

	if actualIsStr && expectedIsStr {
		return actualStr == expectedStr
	}

	if actualBool, ok := actual.(bool); ok {
		if expectedBool, ok := expected.(bool); ok {
			return actualBool == expectedBool
		}
	}

	return false
}

func compareNumeric(actual, expected any, op CompareOperator) bool {
	actualNum, ok := toNumber(actual)
	if !ok {
		return false
	}

	expectedNum, ok := toNumber(expected)
	if !ok {
		return false
	}

	switch op {
	case OperatorGt:
		return actualNum > expectedNum
	case OperatorGte:
		return actualNum >= expectedNum
	case OperatorLt:
		return actualNum < expectedNum
	case OperatorLte:
		return actualNum <= expectedNum
	default:
		return false
	}
}

func evaluateContains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		needle, ok := expected.(string)
		if !ok {
			return false
		}

		return strings.Contains(v, needle)
	case []any:
		for _, item := range v {
			if looseEqual(item, expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func evaluateIn(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}

	for _, item := range list {
		if looseEqual(actual, item) {
			return true
		}
	}

	return false
}

// toNumber coerces JSON scalar representations to float64.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)

		return f, err == nil
	default:
		return 0, false
	}
}
