package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/botui/chatflow/runtime"
)

// Match reports whether conditions hold over values. Logic "or" needs one
// condition to hold, anything else needs all of them. An empty list holds.
func Match(conditions []runtime.Condition, logic runtime.Logic, values map[string]any) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	for _, c := range conditions {
		ok, err := matchOne(c, values)
		if err != nil {
			return false, err
		}
		if logic == runtime.LogicOr && ok {
			return true, nil
		}
		if logic != runtime.LogicOr && !ok {
			return false, nil
		}
	}
	return logic != runtime.LogicOr, nil
}

func matchOne(c runtime.Condition, values map[string]any) (bool, error) {
	v, exists := values[c.Key]
	if !exists {
		v = values[FormatKey(c.Key)]
	}

	switch c.Operator {
	case runtime.OpEq:
		return equal(v, c.Pattern), nil
	case runtime.OpNe:
		return !equal(v, c.Pattern), nil
	case runtime.OpGt, runtime.OpGte, runtime.OpLt, runtime.OpLte:
		return compare(c.Operator, v, c.Pattern), nil
	case runtime.OpIncludes:
		return includes(v, c.Pattern), nil
	case runtime.OpMatch:
		pattern, ok := c.Pattern.(string)
		if !ok {
			return false, fmt.Errorf("match on %q expects a string pattern, got %T", c.Key, c.Pattern)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid pattern for %q: %w", c.Key, err)
		}
		if v == nil {
			return false, nil
		}
		return re.MatchString(runtime.ToStringValue(v)), nil
	case runtime.OpEmpty:
		return isEmpty(v), nil
	case runtime.OpNotEmpty:
		return !isEmpty(v), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

// equal compares numerically when both sides are numbers and by text otherwise.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return runtime.ToStringValue(a) == runtime.ToStringValue(b)
}

// compare is false unless both sides read as numbers.
func compare(op runtime.Operator, a, b any) bool {
	x, ok := toFloat(a)
	if !ok {
		return false
	}
	y, ok := toFloat(b)
	if !ok {
		return false
	}
	switch op {
	case runtime.OpGt:
		return x > y
	case runtime.OpGte:
		return x >= y
	case runtime.OpLt:
		return x < y
	default:
		return x <= y
	}
}

func includes(v, pattern any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(x, runtime.ToStringValue(pattern))
	case []any:
		for _, item := range x {
			if equal(item, pattern) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range x {
			if equal(item, pattern) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(runtime.ToStringValue(x), runtime.ToStringValue(pattern))
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
