package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/botui/chatflow/runtime"
)

func scriptExecution(values runtime.Values) *runtime.Execution {
	step := runtime.Step{
		ID:   "relay-1",
		Kind: runtime.KindRelayer,
		Job:  &runtime.Job{Kind: runtime.JobScript},
	}
	return runtime.NewExecution(context.Background(), "conv-1", step, values)
}

type recordingEvaluator struct {
	code    string
	globals map[string]any
	err     error
}

func (r *recordingEvaluator) Eval(ctx context.Context, code string, globals map[string]any) (any, error) {
	r.code = code
	r.globals = globals
	return nil, r.err
}

func TestRunner_PassesValues(t *testing.T) {
	rec := &recordingEvaluator{}
	r := NewRunner(nil, rec)

	err := r.Run(scriptExecution(runtime.Values{"name": "Ann"}), runtime.Job{Kind: runtime.JobScript, Script: `values["name"]`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.code != `values["name"]` {
		t.Errorf("got code %q", rec.code)
	}
	values, ok := rec.globals["values"].(map[string]any)
	if !ok || values["name"] != "Ann" {
		t.Errorf("values global = %v", rec.globals["values"])
	}
	if len(rec.globals) != 1 {
		t.Errorf("globals = %v, want values only", rec.globals)
	}
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		evalErr   error
		retryable bool
	}{
		{name: "empty script", script: "", retryable: false},
		{name: "script error", script: "x", evalErr: errors.New("undefined"), retryable: false},
		{name: "script timeout", script: "x", evalErr: context.DeadlineExceeded, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(nil, &recordingEvaluator{err: tt.evalErr})
			err := r.Run(scriptExecution(nil), runtime.Job{Kind: runtime.JobScript, Script: tt.script})

			var jobErr *runtime.JobError
			if !errors.As(err, &jobErr) {
				t.Fatalf("expected *runtime.JobError, got %v", err)
			}
			if jobErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", jobErr.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestRunner_ScriptCannotMutateValues(t *testing.T) {
	values := runtime.Values{"name": "Ann"}
	exec := scriptExecution(values)
	r := NewRunner(nil, NewInterpreter(runtime.EngineConfig{ScriptTimeout: time.Second}))

	if err := r.Run(exec, runtime.Job{Kind: runtime.JobScript, Script: `values["name"] = "Bob"`}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.Values["name"] != "Ann" || values["name"] != "Ann" {
		t.Errorf("values changed: exec=%v original=%v", exec.Values, values)
	}
}
