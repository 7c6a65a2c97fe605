package runtime

import (
	"errors"
	"testing"
)

func TestLedger_Transitions(t *testing.T) {
	permanent := NewJobError(errors.New("bad request")).WithRetryHint(false)

	tests := []struct {
		name string
		err  error
		want StepState
	}{
		{"success", nil, StateDone},
		{"plain error retries", errors.New("boom"), StatePending},
		{"job error without hint retries", NewJobError(errors.New("boom")), StatePending},
		{"retryable job error", NewJobError(errors.New("boom")).WithRetryHint(true), StatePending},
		{"permanent job error", permanent, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			if got := l.State("s"); got != StatePending {
				t.Fatalf("initial state = %v", got)
			}
			if !l.begin("s") {
				t.Fatal("begin from pending should succeed")
			}
			if l.begin("s") {
				t.Fatal("begin while dispatched should fail")
			}
			if got := l.settle("s", tt.err); got != tt.want {
				t.Errorf("settle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLedger_TerminalStates(t *testing.T) {
	l := NewLedger()
	l.begin("done")
	l.settle("done", nil)
	if l.begin("done") {
		t.Error("done step dispatched again")
	}
	if got := l.settle("done", errors.New("late")); got != StateDone {
		t.Errorf("settle on done = %v", got)
	}

	l.markDone("restored")
	if l.begin("restored") {
		t.Error("restored step dispatched")
	}

	if got := l.settle("never", nil); got != StatePending {
		t.Errorf("settle without begin = %v, want pending", got)
	}

	for _, id := range []string{"done", "restored"} {
		if got := l.State(id); got != StateDone {
			t.Errorf("State(%s) = %v, want done", id, got)
		}
	}
}

func TestStepStateString(t *testing.T) {
	for state, want := range map[StepState]string{
		StatePending:    "pending",
		StateDispatched: "dispatched",
		StateDone:       "done",
		StateFailed:     "failed",
		StepState(42):   "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
