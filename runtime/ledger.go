package runtime

import (
	"errors"
	"sync"
)

// StepState tracks a side-effecting step through a conversation run.
//
//	Pending → Dispatched → Done
//	             ↓
//	          Pending   (job failed, retried on the next pass)
//	          Failed    (job failed and is not retryable)
type StepState int

const (
	StatePending StepState = iota
	StateDispatched
	StateDone
	StateFailed
)

func (s StepState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ledger records per-step state for one conversation. Done and Failed are terminal.
type Ledger struct {
	mu     sync.Mutex
	states map[string]StepState
}

func NewLedger() *Ledger {
	return &Ledger{states: make(map[string]StepState)}
}

// State returns the recorded state of a step, Pending when unknown.
func (l *Ledger) State(id string) StepState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[id]
}

// begin moves a step from Pending to Dispatched. It reports false when the
// step is already in flight or done, which is what keeps a job from firing twice.
func (l *Ledger) begin(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.states[id] != StatePending {
		return false
	}
	l.states[id] = StateDispatched
	return true
}

// settle resolves a dispatched step: Done on success, back to Pending on a
// retryable failure, Failed otherwise.
func (l *Ledger) settle(id string, err error) StepState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.states[id] != StateDispatched {
		return l.states[id]
	}
	switch {
	case err == nil:
		l.states[id] = StateDone
	case isRetryable(err):
		l.states[id] = StatePending
	default:
		l.states[id] = StateFailed
	}
	return l.states[id]
}

func isRetryable(err error) bool {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.IsRetryable()
	}
	return true
}

// markDone records a step that arrived already completed.
func (l *Ledger) markDone(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[id] = StateDone
}
