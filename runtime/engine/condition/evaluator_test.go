package condition

import (
	"context"
	"testing"

	"github.com/botui/chatflow/runtime"
)

func TestBase64Functions(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{name: "encode", expr: `base64_encode("hello")`, expected: "aGVsbG8="},
		{name: "encode empty", expr: `base64_encode("")`, expected: ""},
		{name: "encode credentials", expr: `base64_encode("user:password")`, expected: "dXNlcjpwYXNzd29yZA=="},
		{name: "decode", expr: `base64_decode("aGVsbG8=")`, expected: "hello"},
		{name: "round trip", expr: `base64_decode(base64_encode(name))`, expected: "Ann"},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Eval(tt.expr, map[string]any{"name": "Ann"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("got %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestEval(t *testing.T) {
	values := map[string]any{
		"first-name": "Ann",
		"user.email": "ann@example.com",
		"age":        float64(20),
		"nothing":    nil,
	}

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{name: "hyphenated key", expr: `first-name == "Ann"`, expected: true},
		{name: "dotted key", expr: `user.email == "ann@example.com"`, expected: true},
		{name: "raw key lookup", expr: `value("first-name")`, expected: "Ann"},
		{name: "raw dotted key lookup", expr: `value("user.email")`, expected: "ann@example.com"},
		{name: "numeric comparison", expr: `age >= 18`, expected: true},
		{name: "undefined variable is nil", expr: `missing == nil`, expected: true},
		{name: "null alias", expr: `nothing == null`, expected: true},
		{name: "defined key", expr: `defined("first-name")`, expected: true},
		{name: "defined with nil value", expr: `defined("nothing")`, expected: true},
		{name: "not defined", expr: `defined("missing")`, expected: false},
		{name: "integer result", expr: `age > 18 ? 2 : 0`, expected: 2},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Eval(tt.expr, values)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Eval(%q) = %v (%T), want %v", tt.expr, result, result, tt.expected)
			}
		})
	}
}

func TestEvalDoesNotMutateValues(t *testing.T) {
	values := map[string]any{"first-name": "Ann"}
	if _, err := NewEvaluator().Eval(`first-name != ""`, values); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 1 {
		t.Errorf("values were modified: %v", values)
	}
}

func TestSkip(t *testing.T) {
	values := runtime.Values{
		"mail": "ann@example.com",
		"age":  float64(16),
		"n":    float64(3),
	}

	tests := []struct {
		name    string
		skipper runtime.Skipper
		want    int
		wantErr bool
	}{
		{
			name:    "unconditional",
			skipper: runtime.Skipper{SkipNumber: 2},
			want:    2,
		},
		{
			name:    "condition holds",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `mail == "ann@example.com"`},
			want:    1,
		},
		{
			name:    "condition fails",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `age >= 18`},
			want:    0,
		},
		{
			name:    "condition on missing value",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `phone`},
			want:    0,
		},
		{
			name:    "condition yields count",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `value("n")`},
			want:    3,
		},
		{
			name:    "negative count skips nothing",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `0 - 4`},
			want:    0,
		},
		{
			name: "structured and",
			skipper: runtime.Skipper{SkipNumber: 2, Conditions: []runtime.Condition{
				{Key: "mail", Operator: runtime.OpNotEmpty},
				{Key: "age", Operator: runtime.OpLt, Pattern: 18},
			}},
			want: 2,
		},
		{
			name: "structured and with one failing",
			skipper: runtime.Skipper{SkipNumber: 2, Conditions: []runtime.Condition{
				{Key: "mail", Operator: runtime.OpNotEmpty},
				{Key: "age", Operator: runtime.OpGt, Pattern: 18},
			}},
			want: 0,
		},
		{
			name: "structured or",
			skipper: runtime.Skipper{SkipNumber: 2, Logic: runtime.LogicOr, Conditions: []runtime.Condition{
				{Key: "mail", Operator: runtime.OpEmpty},
				{Key: "age", Operator: runtime.OpEq, Pattern: "16"},
			}},
			want: 2,
		},
		{
			name: "condition and structured must both hold",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `age < 18`, Conditions: []runtime.Condition{
				{Key: "mail", Operator: runtime.OpEmpty},
			}},
			want: 0,
		},
		{
			name:    "compile error",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `age >`},
			wantErr: true,
		},
		{
			name:    "non numeric result",
			skipper: runtime.Skipper{SkipNumber: 1, Condition: `mail`},
			wantErr: true,
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Skip(context.Background(), tt.skipper, values)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Skip() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSkipCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEvaluator().Skip(ctx, runtime.Skipper{SkipNumber: 1}, nil); err == nil {
		t.Fatal("expected context error")
	}
}
