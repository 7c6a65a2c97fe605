package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textStep(id, body string, completed bool) Step {
	return Step{
		ID:        id,
		Kind:      KindMessage,
		Completed: completed,
		Message: &Message{
			Content: Content{Type: ContentText, Props: ContentProps{Children: body}},
		},
	}
}

func formStep(id string, values map[string]any, completed bool) Step {
	return Step{
		ID:        id,
		Kind:      KindMessage,
		Completed: completed,
		Message: &Message{
			Human:   true,
			Content: Content{Type: ContentForm, Props: ContentProps{FormType: "name", Values: values}},
		},
	}
}

func skipperStep(id string, n int) Step {
	return Step{ID: id, Kind: KindSkipper, Skipper: &Skipper{SkipNumber: n}}
}

func relayerStep(id string, completed bool) Step {
	return Step{
		ID:        id,
		Kind:      KindRelayer,
		Completed: completed,
		Job:       &Job{Kind: JobScript, Script: "notify(values)"},
	}
}

func closerStep(id string, job *Job) Step {
	return Step{ID: id, Kind: KindCloser, Job: job}
}

// skipFunc adapts a function to SkipEvaluator.
type skipFunc func(Skipper, Values) (int, error)

func (f skipFunc) Skip(ctx context.Context, s Skipper, v Values) (int, error) {
	return f(s, v)
}

// skipNumber skips exactly SkipNumber steps.
var skipNumber = skipFunc(func(s Skipper, _ Values) (int, error) {
	return s.SkipNumber, nil
})

type recordingRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	values  map[string]Values
	err     error
	release chan struct{} // when set, Run blocks until it is closed
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{calls: make(map[string]int), values: make(map[string]Values)}
}

func (r *recordingRunner) Run(exec *Execution, job Job) error {
	r.mu.Lock()
	r.calls[exec.Step.ID]++
	r.values[exec.Step.ID] = exec.Values
	err := r.err
	release := r.release
	r.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

func (r *recordingRunner) Calls(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *recordingRunner) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func newTestEvaluator(t *testing.T, skipper SkipEvaluator, runner JobRunner) *Evaluator {
	t.Helper()
	container := NewContainer()
	if runner != nil {
		if err := container.Register(JobScript, runner); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	l := discardLogger()
	return NewEvaluator(l, skipper, NewDispatcher(l, container, DefaultEngineConfig()))
}

func messageIDs(messages []Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}
