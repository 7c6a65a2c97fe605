package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// Execution is the context handed to a JobRunner for one dispatch of one step.
type Execution struct {
	ID           string
	Conversation string
	Step         Step
	Values       Values
	ctx          context.Context // real context carrying deadline/cancellation
}

// context.Context implementation delegates to the embedded ctx so that job
// timeouts propagate through resty, risor and slog calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}
	return e.Values[k]
}

// WithContext returns a shallow copy of the Execution with a new embedded
// context. Mirrors the http.Request.WithContext pattern.
func (e *Execution) WithContext(ctx context.Context) *Execution {
	copy := *e
	copy.ctx = ctx
	return &copy
}

// NewExecution snapshots values so the job never observes later passes.
func NewExecution(ctx context.Context, conversation string, step Step, values Values) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Execution{
		ID:           uuid.New().String(),
		Conversation: conversation,
		Step:         step.Clone(),
		Values:       values.Clone(),
		ctx:          ctx,
	}
}
