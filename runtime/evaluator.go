package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Result is the outcome of one evaluation pass.
type Result struct {
	Messages []Message
	Progress float64
	Closed   bool
	// Edge is the index of the last step the pass touched, -1 when none.
	Edge int
}

// Evaluator walks a conversation script and decides what is visible.
// One Evaluator serves one conversation: it owns the step ledger and the
// once-only lifecycle callbacks.
//
// Advance is synchronous. Relayer and closer jobs are handed to the
// Dispatcher and settle in the background; their outcome is applied to the
// ledger by the Evaluator, never by the job itself.
type Evaluator struct {
	l            *slog.Logger
	conversation string
	skipper      SkipEvaluator
	dispatcher   *Dispatcher
	ledger       *Ledger

	mu      sync.Mutex
	visible int
	started bool
	closed  bool
}

func NewEvaluator(l *slog.Logger, skipper SkipEvaluator, dispatcher *Dispatcher) *Evaluator {
	if l == nil {
		l = slog.Default()
	}
	return &Evaluator{
		l:            l,
		conversation: uuid.New().String(),
		skipper:      skipper,
		dispatcher:   dispatcher,
		ledger:       NewLedger(),
	}
}

// Conversation returns the id used to correlate jobs and logs of this run.
func (e *Evaluator) Conversation() string {
	return e.conversation
}

func (e *Evaluator) Ledger() *Ledger {
	return e.ledger
}

// Advance runs one pass over steps. Calling it again with the same steps and
// unchanged completed flags reproduces the same Result and fires nothing new.
//
// A malformed step aborts the pass at that step; the Result still holds the
// messages gathered before it. conf callbacks run synchronously inside the
// pass and must not call Advance.
func (e *Evaluator) Advance(ctx context.Context, steps []Step, conf *ChatConfig) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if conf == nil {
		conf = &ChatConfig{}
	}

	values := CollectValues(steps)
	res := Result{Messages: []Message{}, Edge: -1}
	skip := 0
	var passErr error

pass:
	for i, step := range steps {
		res.Edge = i

		if skip > 0 {
			skip--
			e.l.DebugContext(ctx, fmt.Sprintf("Skipping step: %s", step.ID), "conversation", e.conversation)
			continue
		}

		if err := step.Validate(); err != nil {
			e.l.ErrorContext(ctx, fmt.Sprintf("Malformed step, pass aborted at: %s", step.ID),
				append(stepErrorAttrs(err), "conversation", e.conversation)...)
			passErr = err
			break
		}

		switch step.Kind {
		case KindSkipper:
			skip = e.evaluateSkip(ctx, step, values)

		case KindRelayer:
			if err := e.dispatch(ctx, step, values); err != nil {
				passErr = err
				break pass
			}

		case KindCloser:
			if step.Job != nil {
				if err := e.dispatch(ctx, step, values); err != nil {
					passErr = err
					break pass
				}
			}
			res.Closed = true
			e.close(ctx, step, conf)
			break pass

		case KindMessage:
			msg := Substitute(*step.Message, values)
			msg.ID = step.ID
			msg.Completed = step.Completed
			res.Messages = append(res.Messages, msg)
			if !step.Completed {
				break pass
			}
		}
	}

	res.Progress = progress(len(steps), res.Edge)
	e.notifyStart(ctx, conf, len(res.Messages))

	return res, passErr
}

// Sync returns a copy of steps with completed set on every step whose job
// has settled successfully.
func (e *Evaluator) Sync(steps []Step) []Step {
	out := CloneSteps(steps)
	for i := range out {
		if !out[i].Completed && e.ledger.State(out[i].ID) == StateDone {
			out[i].Completed = true
		}
	}
	return out
}

// Wait blocks until every job dispatched so far has settled.
func (e *Evaluator) Wait() {
	if e.dispatcher != nil {
		e.dispatcher.Wait()
	}
}

func (e *Evaluator) evaluateSkip(ctx context.Context, step Step, values Values) int {
	if e.skipper == nil {
		return 0
	}

	n, err := e.skipper.Skip(ctx, *step.Skipper, values)
	if err != nil {
		evalErr := &StepError{
			Code:    ErrorCodeEvaluationFailed,
			Step:    step.ID,
			Kind:    step.Kind,
			Message: "skip condition failed",
			Cause:   err,
		}
		e.l.ErrorContext(ctx, fmt.Sprintf("Error evaluating skip condition for step %s", step.ID),
			append(stepErrorAttrs(evalErr),
				"conversation", e.conversation,
				"condition", step.Skipper.Condition)...)
		return 0
	}
	if n < 0 {
		return 0
	}
	if n > 0 {
		e.l.InfoContext(ctx, fmt.Sprintf("Skip condition met at step %s", step.ID),
			"conversation", e.conversation,
			"skip", n)
	}
	return n
}

// dispatch fires the step's job unless it is done, failed or already in flight.
func (e *Evaluator) dispatch(ctx context.Context, step Step, values Values) error {
	if step.Completed {
		e.ledger.markDone(step.ID)
		return nil
	}
	if !e.ledger.begin(step.ID) {
		return nil
	}
	if e.dispatcher == nil {
		e.ledger.settle(step.ID, nil)
		return nil
	}

	id := step.ID
	err := e.dispatcher.Dispatch(ctx, e.conversation, step, values, func(jobErr error) {
		state := e.ledger.settle(id, jobErr)
		e.l.DebugContext(ctx, fmt.Sprintf("Step %s settled", id),
			"conversation", e.conversation,
			"state", state.String())
	})
	if err != nil {
		// Back to Pending so every pass over this script stops here the same way.
		e.ledger.settle(id, err)
		e.l.ErrorContext(ctx, fmt.Sprintf("Error dispatching job for step %s", id),
			append(stepErrorAttrs(err), "conversation", e.conversation)...)
		return err
	}
	return nil
}

func (e *Evaluator) close(ctx context.Context, step Step, conf *ChatConfig) {
	if e.closed {
		return
	}
	e.closed = true
	e.l.InfoContext(ctx, fmt.Sprintf("Conversation closed at step: %s", step.ID), "conversation", e.conversation)
	if conf.OnClose != nil {
		conf.OnClose()
	}
}

// notifyStart fires OnStart on the first transition from no visible
// messages to exactly one.
func (e *Evaluator) notifyStart(ctx context.Context, conf *ChatConfig, visible int) {
	prev := e.visible
	e.visible = visible
	if e.started || prev != 0 || visible != 1 {
		return
	}
	e.started = true
	e.l.InfoContext(ctx, "Conversation started", "conversation", e.conversation)
	if conf.OnStart != nil {
		conf.OnStart()
	}
}

// stepErrorAttrs logs a *StepError as a group of its fields.
func stepErrorAttrs(err error) []any {
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		return []any{"error", err}
	}
	return []any{"error", err, "details", stepErr.ToMap()}
}

// progress is (edge+1)/total, 0 when nothing was touched.
func progress(total, edge int) float64 {
	if total == 0 || edge < 0 {
		return 0
	}
	return float64(edge+1) / float64(total)
}
