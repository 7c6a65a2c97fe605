package config

import (
	"fmt"
	"regexp"
	"strings"
)

// EnvRef is a config value that may name an environment variable.
type EnvRef struct {
	// Name is the variable name, empty for literals.
	Name string

	HasDefault bool
	Default    string

	// Literal values are used as written.
	Literal bool
	Value   string
}

// LookupFunc reports the value of an environment variable. os.LookupEnv fits.
type LookupFunc func(name string) (string, bool)

// envRefPattern matches a whole value of the form ${VAR} or ${VAR:default}.
var envRefPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvRef parses one config string.
//
//	${WEBHOOK_TOKEN}           required variable
//	${CHATFLOW_ADDR::8080}     variable with default ":8080"
//	:8080                      literal
//
// Anything that does not match the pattern exactly is a literal.
func ParseEnvRef(value string) EnvRef {
	m := envRefPattern.FindStringSubmatch(value)
	if m == nil {
		return EnvRef{Literal: true, Value: value}
	}
	return EnvRef{
		Name:       m[1],
		HasDefault: m[2] != "",
		Default:    strings.TrimPrefix(m[2], ":"),
	}
}

// Resolve returns the literal, the variable value, or the default.
// An unset variable without default is an error.
func (r EnvRef) Resolve(lookup LookupFunc) (string, error) {
	if r.Literal {
		return r.Value, nil
	}
	if v, ok := lookup(r.Name); ok {
		return v, nil
	}
	if r.HasDefault {
		return r.Default, nil
	}
	return "", fmt.Errorf("environment variable %s is not set", r.Name)
}

// ExpandEnv resolves every string leaf of a decoded YAML document.
// Maps and slices are copied; other scalars pass through unchanged.
func ExpandEnv(node any, lookup LookupFunc) (any, error) {
	switch v := node.(type) {
	case string:
		return ParseEnvRef(v).Resolve(lookup)

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			resolved, err := ExpandEnv(child, lookup)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			resolved, err := ExpandEnv(child, lookup)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}
