package script

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/botui/chatflow/runtime"
)

var _ runtime.ScriptEvaluator = (*Interpreter)(nil)

// Interpreter runs administrator-authored Risor code. WithoutDefaultGlobals
// removes the os, exec and file builtins so only the injected globals are
// reachable. Every evaluation is bounded by the configured timeout.
type Interpreter struct {
	timeout time.Duration
}

func NewInterpreter(config runtime.EngineConfig) *Interpreter {
	if config.ScriptTimeout <= 0 {
		config.ScriptTimeout = runtime.DefaultEngineConfig().ScriptTimeout
	}
	return &Interpreter{timeout: config.ScriptTimeout}
}

func (i *Interpreter) Eval(ctx context.Context, code string, globals map[string]any) (any, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	// Raw Go funcs would panic in the VM because object.AsObjects doesn't
	// handle reflect.Func, so globals are converted up front.
	result, err := risor.Eval(ctx, code,
		risor.WithoutDefaultGlobals(),
		risor.WithGlobals(convertGlobals(globals)),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("script interrupted: %w", ctxErr)
		}
		return nil, err
	}
	return objectToGo(result), nil
}

func convertGlobals(globals map[string]any) map[string]any {
	result := make(map[string]any, len(globals))
	for k, v := range globals {
		result[k] = goToRisor(k, v)
	}
	return result
}

// goToRisor converts a Go value to something the Risor VM accepts.
// Functions become builtins, maps holding functions become modules and
// string-keyed maps of any named type (runtime.Values) become plain maps.
func goToRisor(name string, v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.(object.Object); ok {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return wrapGoFunc(name, v)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		hasFuncs := false
		iter := rv.MapRange()
		for iter.Next() {
			val := iter.Value().Interface()
			m[iter.Key().String()] = val
			if val != nil && reflect.TypeOf(val).Kind() == reflect.Func {
				hasFuncs = true
			}
		}
		if hasFuncs {
			return mapToModule(name, m)
		}
		for k, val := range m {
			m[k] = goToRisor(k, val)
		}
		return m

	default:
		return v
	}
}

// wrapGoFunc exposes a Go function as a Risor builtin. Arguments are
// converted to the parameter types by reflection; a trailing non-nil error
// result becomes a Risor error.
func wrapGoFunc(name string, fn any) *object.Builtin {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	errType := reflect.TypeOf((*error)(nil)).Elem()

	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if !fnType.IsVariadic() && len(args) != fnType.NumIn() {
			return object.Errorf("%s: expected %d arguments, got %d", name, fnType.NumIn(), len(args))
		}

		goArgs := make([]reflect.Value, len(args))
		for i, arg := range args {
			goVal := objectToGo(arg)
			switch {
			case fnType.IsVariadic() && i >= fnType.NumIn()-1:
				goArgs[i] = convertToExpectedType(goVal, fnType.In(fnType.NumIn()-1).Elem())
			case i < fnType.NumIn():
				goArgs[i] = convertToExpectedType(goVal, fnType.In(i))
			default:
				goArgs[i] = reflect.ValueOf(goVal)
			}
		}

		results := fnValue.Call(goArgs)
		if len(results) == 0 {
			return object.Nil
		}

		last := len(results) - 1
		if fnType.Out(last).Implements(errType) {
			if !results[last].IsNil() {
				return object.NewError(results[last].Interface().(error))
			}
			if last == 0 {
				return object.Nil
			}
		}
		return goValueToObject(results[0].Interface())
	})
}

func convertToExpectedType(val any, expected reflect.Type) reflect.Value {
	if val == nil {
		return reflect.Zero(expected)
	}
	actual := reflect.ValueOf(val)
	if actual.Type().AssignableTo(expected) {
		return actual
	}
	if actual.Type().ConvertibleTo(expected) {
		return actual.Convert(expected)
	}
	return actual
}

func goValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	obj := object.FromGoType(v)
	if obj == nil {
		return object.Nil
	}
	return obj
}

// mapToModule turns a map holding functions into a Risor module, so that
// chat.log("...") resolves chat as the module and log as a builtin.
func mapToModule(name string, m map[string]any) *object.Module {
	contents := make(map[string]object.Object, len(m))
	for k, v := range m {
		switch {
		case v == nil:
			contents[k] = object.Nil
		case reflect.ValueOf(v).Kind() == reflect.Func:
			contents[k] = wrapGoFunc(fmt.Sprintf("%s.%s", name, k), v)
		default:
			contents[k] = goValueToObject(goToRisor(k, v))
		}
	}
	return object.NewBuiltinsModule(name, contents)
}

// objectToGo recursively converts a Risor object to a native Go value.
func objectToGo(obj object.Object) any {
	if obj == nil {
		return nil
	}

	switch o := obj.(type) {
	case *object.Map:
		goMap := make(map[string]any)
		for k, v := range o.Value() {
			goMap[k] = objectToGo(v)
		}
		return goMap
	case *object.List:
		items := o.Value()
		goSlice := make([]any, len(items))
		for i, v := range items {
			goSlice[i] = objectToGo(v)
		}
		return goSlice
	case *object.NilType:
		return nil
	default:
		return obj.Interface()
	}
}
