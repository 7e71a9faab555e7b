package routing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Context carries the transaction attributes a routing decision is made from,
// e.g. amount, currency, country, payment_method. Keys a rule does not
// mention are ignored; keys a rule mentions but the context lacks are
// non-blocking.
type Context map[string]interface{}

// ParseConditions decodes a rule's JSON condition column.
func ParseConditions(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var conditions map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &conditions); err != nil {
		return nil, fmt.Errorf("parse rule conditions: %w", err)
	}
	return conditions, nil
}

// Matches reports whether every condition key present in the context passes
// its test. A condition on a field absent from the context is skipped, not
// failed: absence means "don't care", on both sides.
func Matches(conditions map[string]interface{}, ctx Context) bool {
	for field, condition := range conditions {
		value, ok := ctx[field]
		if !ok {
			continue
		}
		if !matchCondition(condition, value) {
			return false
		}
	}
	return true
}

func matchCondition(condition, value interface{}) bool {
	spec, ok := condition.(map[string]interface{})
	if !ok {
		return equal(condition, value)
	}

	if list, ok := spec["in"].([]interface{}); ok {
		for _, candidate := range list {
			if equal(candidate, value) {
				return true
			}
		}
		return false
	}

	if pattern, ok := spec["regex"].(string); ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	}

	min, hasMin := spec["min"]
	max, hasMax := spec["max"]
	if hasMin || hasMax {
		n, ok := toFloat(value)
		if !ok {
			return false
		}
		if hasMin {
			lo, ok := toFloat(min)
			if !ok || n < lo {
				return false
			}
		}
		if hasMax {
			hi, ok := toFloat(max)
			if !ok || n > hi {
				return false
			}
		}
		return true
	}

	// Unknown operator object: no rule should depend on it matching.
	return false
}

func equal(expected, actual interface{}) bool {
	if en, ok := toFloat(expected); ok {
		if an, ok := toFloat(actual); ok {
			return en == an
		}
	}
	return stringify(expected) == stringify(actual)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
