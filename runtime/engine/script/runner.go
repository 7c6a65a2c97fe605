package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/botui/chatflow/runtime"
)

var _ runtime.JobRunner = (*Runner)(nil)

// Runner performs script jobs. The collected answers, bound as values, are
// the only name a script can reach.
type Runner struct {
	l      *slog.Logger
	interp runtime.ScriptEvaluator
}

func NewRunner(l *slog.Logger, interp runtime.ScriptEvaluator) *Runner {
	if l == nil {
		l = slog.Default()
	}
	return &Runner{l: l, interp: interp}
}

func (r *Runner) Run(exec *runtime.Execution, job runtime.Job) error {
	if job.Script == "" {
		return runtime.NewJobError(errors.New("script job has no script")).
			WithType("permanent").
			WithRetryHint(false)
	}

	r.l.DebugContext(exec, fmt.Sprintf("Running script for step: %s", exec.Step.ID),
		"conversation", exec.Conversation,
		"execution", exec.ID)
	if _, err := r.interp.Eval(exec, job.Script, Globals(exec)); err != nil {
		jobErr := runtime.NewJobError(fmt.Errorf("script failed: %w", err)).
			WithMetadata("step", exec.Step.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			return jobErr.WithType("transient").WithRetryHint(true)
		}
		return jobErr.WithType("permanent").WithRetryHint(false)
	}
	return nil
}

// Globals builds the scope of a script run for exec. Values are a copy, so
// assignments inside the script never reach the conversation.
func Globals(exec *runtime.Execution) map[string]any {
	return map[string]any{
		"values": map[string]any(exec.Values.Clone()),
	}
}
