package condition

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/expr-lang/expr"

	"github.com/botui/chatflow/runtime"
)

var _ runtime.SkipEvaluator = (*Evaluator)(nil)

// Custom expression functions available in every condition
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
}

// Evaluator decides skipper outcomes. A skipper's condition is an expr-lang
// expression over the collected values; its conditions are structured
// comparisons joined by the skipper's logic.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Eval compiles and runs expression with values in scope. Every key is
// reachable under its formatted name (dots and hyphens become underscores)
// and, for keys that are not valid identifiers, through value("raw-key").
func (e *Evaluator) Eval(expression string, values map[string]any) (any, error) {
	env := make(map[string]any, len(values)+1)
	for k, v := range values {
		env[FormatKey(k)] = v
	}
	// Add null as alias for nil (JSON/YAML compatibility)
	env["null"] = nil

	// defined() checks if a key was collected (distinguishes missing from null)
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			key, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string key argument, got %T", params[0])
			}
			if _, exists := values[key]; exists {
				return true, nil
			}
			_, exists := env[FormatKey(key)]
			return exists, nil
		},
		new(func(string) bool),
	)

	valueFn := expr.Function(
		"value",
		func(params ...any) (any, error) {
			key, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("value() expects string key argument, got %T", params[0])
			}
			if v, exists := values[key]; exists {
				return v, nil
			}
			return env[FormatKey(key)], nil
		},
		new(func(string) any),
	)

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(), // Missing variables return nil instead of compile error
		definedFn,
		valueFn,
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(FormatExpression(expression), opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// Skip returns the number of steps to skip. A condition evaluating to false
// or nil skips nothing, true skips SkipNumber and an integer result is the
// count itself. When structured conditions are present they must hold too.
// A skipper with neither always skips SkipNumber.
func (e *Evaluator) Skip(ctx context.Context, skipper runtime.Skipper, values runtime.Values) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := skipper.SkipNumber
	if skipper.Condition != "" {
		result, err := e.Eval(skipper.Condition, values)
		if err != nil {
			return 0, fmt.Errorf("evaluating condition %q: %w", skipper.Condition, err)
		}
		switch v := result.(type) {
		case nil:
			return 0, nil
		case bool:
			if !v {
				return 0, nil
			}
		default:
			n, ok := toInt(v)
			if !ok {
				return 0, fmt.Errorf("condition %q evaluated to %T, expected boolean or integer", skipper.Condition, result)
			}
			count = n
		}
	}

	if len(skipper.Conditions) > 0 {
		ok, err := Match(skipper.Conditions, skipper.Logic, values)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
	}

	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return toInt(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
