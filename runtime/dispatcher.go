package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher launches jobs without blocking the pass that triggered them.
// Jobs of one pass race each other; each only touches its own step state.
type Dispatcher struct {
	l         *slog.Logger
	container *Container
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(l *slog.Logger, container *Container, config EngineConfig) *Dispatcher {
	if l == nil {
		l = slog.Default()
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultEngineConfig().JobTimeout
	}
	return &Dispatcher{
		l:         l,
		container: container,
		timeout:   config.JobTimeout,
	}
}

// Dispatch resolves the runner for the step's job and starts it in its own
// goroutine. done is called exactly once with the job outcome. The job keeps
// running when ctx is cancelled; only the job timeout bounds it.
func (d *Dispatcher) Dispatch(ctx context.Context, conversation string, step Step, values Values, done func(error)) error {
	if step.Job == nil {
		return malformed(step, "step has no job to dispatch")
	}

	runner, ok := d.container.Runner(step.Job.Kind)
	if !ok {
		return &StepError{
			Code:    ErrorCodeUnknownJob,
			Step:    step.ID,
			Kind:    step.Kind,
			Job:     step.Job.Kind,
			Message: fmt.Sprintf("no runner registered for job %q", step.Job.Kind),
		}
	}

	exec := NewExecution(context.WithoutCancel(ctx), conversation, step, values)
	d.l.InfoContext(exec, fmt.Sprintf("Dispatching job for step: %s", step.ID),
		"job", step.Job.Kind,
		"execution", exec.ID,
		"conversation", conversation)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		done(d.run(exec, runner))
	}()
	return nil
}

// Wait blocks until every dispatched job has settled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(exec *Execution, runner JobRunner) (err error) {
	ctx, cancel := context.WithTimeout(exec.ctx, d.timeout)
	defer cancel()
	exec = exec.WithContext(ctx)

	step := exec.Step
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			// Panics are permanent.
			err = NewJobError(&StepError{
				Code:    ErrorCodeJobFailed,
				Step:    step.ID,
				Kind:    step.Kind,
				Job:     step.Job.Kind,
				Message: fmt.Sprintf("job panicked: %v", r),
			}).WithType("permanent").WithRetryHint(false)
		}

		if err != nil {
			attrs := []any{
				"job", step.Job.Kind,
				"execution", exec.ID,
				"conversation", exec.Conversation,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			}
			var jobErr *JobError
			if errors.As(err, &jobErr) {
				attrs = append(attrs, jobErr.attrs()...)
			}
			d.l.ErrorContext(exec, fmt.Sprintf("Job failed for step: %s", step.ID), attrs...)
			return
		}
		d.l.InfoContext(exec, fmt.Sprintf("Job completed for step: %s", step.ID),
			"job", step.Job.Kind,
			"execution", exec.ID,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	return runner.Run(exec, *step.Job)
}
