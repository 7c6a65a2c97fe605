package controller

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/botui/chatflow/runtime"
	"github.com/botui/chatflow/runtime/channel"
)

// Controller keeps a channel in step with one conversation script. Every
// snapshot arriving on the channel is merged into the script and evaluated;
// the visible messages are published back only when they changed.
type Controller struct {
	l    *slog.Logger
	ch   channel.Channel
	eval *runtime.Evaluator
	conf runtime.ChatConfig
	seed bool

	mu        sync.Mutex
	steps     []runtime.Step
	lastSteps []runtime.Step
	evaluated bool
}

type Option func(*Controller)

// WithSeed publishes an empty conversation on Start when the channel has no
// snapshot yet. Without it the controller waits for someone else to set one.
func WithSeed() Option {
	return func(c *Controller) { c.seed = true }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.l = l }
}

// New wires a controller. conf supplies the theme used when a snapshot has
// none and the OnStart/OnClose callbacks, which never cross the channel.
func New(ch channel.Channel, eval *runtime.Evaluator, steps []runtime.Step, conf runtime.ChatConfig, opts ...Option) *Controller {
	c := &Controller{
		l:     slog.Default(),
		ch:    ch,
		eval:  eval,
		conf:  conf,
		steps: runtime.CloneSteps(steps),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start evaluates the current snapshot, seeding the channel first when
// configured to. An empty channel without seeding is not an error.
func (c *Controller) Start(ctx context.Context) error {
	snapshot, ok, err := c.ch.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading channel %q: %w", c.ch.Key(), err)
	}
	if !ok {
		if !c.seed {
			c.l.InfoContext(ctx, "No conversation snapshot yet, waiting", "channel", c.ch.Key())
			return nil
		}
		snapshot = runtime.ChatConfig{Theme: c.conf.Theme, Messages: []runtime.Message{}}
		if err := c.ch.Set(ctx, snapshot); err != nil {
			return fmt.Errorf("seeding channel %q: %w", c.ch.Key(), err)
		}
	}
	_, err = c.Recompute(ctx, snapshot)
	return err
}

// Run subscribes to the channel and recomputes on every snapshot until ctx
// is done or the channel closes. Settled jobs are picked up from the
// evaluator ledger on the next snapshot.
func (c *Controller) Run(ctx context.Context) error {
	updates, cancel := c.ch.Subscribe()
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case snapshot, ok := <-updates:
			if !ok {
				return channel.ErrClosed
			}
			if _, err := c.Recompute(ctx, snapshot); err != nil {
				c.l.ErrorContext(ctx, "Error recomputing conversation", "channel", c.ch.Key(), "error", err)
			}
		}
	}
}

// Recompute merges snapshot into the script, evaluates it and publishes the
// result. It reports whether a new snapshot was published. Identical input
// steps skip evaluation entirely, which is what stops our own publish from
// echoing back into another pass.
func (c *Controller) Recompute(ctx context.Context, snapshot runtime.ChatConfig) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := c.eval.Sync(runtime.ApplyHistory(c.steps, snapshot.Messages))
	if c.evaluated && reflect.DeepEqual(steps, c.lastSteps) {
		return false, nil
	}
	c.lastSteps = steps
	c.evaluated = true

	conf := c.conf
	res, err := c.eval.Advance(ctx, steps, &conf)
	if err != nil {
		// The pass stalls at the bad step; what came before it is still shown.
		c.l.WarnContext(ctx, "Conversation stalled", "channel", c.ch.Key(), "error", err)
	}

	next := runtime.ChatConfig{
		Theme:    snapshot.Theme,
		Messages: res.Messages,
		Progress: res.Progress,
		Closed:   res.Closed,
	}
	if next.Theme == nil {
		next.Theme = c.conf.Theme
	}
	if sameView(next, snapshot) {
		return false, nil
	}

	if err := c.ch.Set(ctx, next); err != nil {
		return false, fmt.Errorf("publishing to channel %q: %w", c.ch.Key(), err)
	}
	c.l.DebugContext(ctx, "Published conversation",
		"channel", c.ch.Key(),
		"messages", len(next.Messages),
		"progress", next.Progress)
	return true, nil
}

// SetScript swaps the script and re-evaluates against the current snapshot.
func (c *Controller) SetScript(ctx context.Context, steps []runtime.Step) error {
	if err := runtime.CheckStepIDs(steps); err != nil {
		return err
	}

	c.mu.Lock()
	c.steps = runtime.CloneSteps(steps)
	c.lastSteps = nil
	c.evaluated = false
	c.mu.Unlock()

	snapshot, ok, err := c.ch.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading channel %q: %w", c.ch.Key(), err)
	}
	if !ok {
		return nil
	}
	_, err = c.Recompute(ctx, snapshot)
	return err
}

func sameView(a, b runtime.ChatConfig) bool {
	return a.Progress == b.Progress &&
		a.Closed == b.Closed &&
		len(a.Messages) == len(b.Messages) &&
		(len(a.Messages) == 0 || reflect.DeepEqual(a.Messages, b.Messages))
}
