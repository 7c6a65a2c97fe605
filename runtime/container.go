package runtime

import (
	"context"
	"fmt"
)

// Interface type constants for runner capabilities
const (
	InterfaceInitializer = "Initializer"
	InterfaceShutdowner  = "Shutdowner"
)

// Container holds the job runners available to a conversation, keyed by job kind.
type Container struct {
	runners            map[JobKind]JobRunner
	order              []JobKind
	runnersByInterface map[string][]JobRunner // Interface name -> runners implementing it
}

func NewContainer() *Container {
	return &Container{
		runners:            make(map[JobKind]JobRunner),
		runnersByInterface: make(map[string][]JobRunner),
	}
}

// Register binds a runner to a job kind and records its lifecycle interfaces.
// Registering the same kind twice is an error.
func (c *Container) Register(kind JobKind, runner JobRunner) error {
	if runner == nil {
		return fmt.Errorf("runner for job %q cannot be nil", kind)
	}
	if _, exists := c.runners[kind]; exists {
		return fmt.Errorf("runner for job %q already registered", kind)
	}

	c.runners[kind] = runner
	c.order = append(c.order, kind)
	c.detectInterfaces(runner)
	return nil
}

// detectInterfaces records which lifecycle interfaces a runner implements
func (c *Container) detectInterfaces(runner JobRunner) {
	if _, ok := runner.(Initializer); ok {
		c.runnersByInterface[InterfaceInitializer] = append(c.runnersByInterface[InterfaceInitializer], runner)
	}
	if _, ok := runner.(Shutdowner); ok {
		c.runnersByInterface[InterfaceShutdowner] = append(c.runnersByInterface[InterfaceShutdowner], runner)
	}
}

// Runner returns the runner registered for kind.
func (c *Container) Runner(kind JobKind) (JobRunner, bool) {
	r, ok := c.runners[kind]
	return r, ok
}

// Kinds returns the registered job kinds in registration order.
func (c *Container) Kinds() []JobKind {
	return append([]JobKind(nil), c.order...)
}

// Initialize calls Initialize on every runner implementing Initializer, in
// registration order. The first failure aborts startup.
func (c *Container) Initialize(ctx context.Context) error {
	for i, runner := range c.runnersByInterface[InterfaceInitializer] {
		if err := runner.(Initializer).Initialize(ctx); err != nil {
			return fmt.Errorf("runner #%d (%T) initialization failed: %w", i, runner, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on every runner implementing Shutdowner.
// Runners are shut down in reverse order of registration.
func (c *Container) Shutdown(ctx context.Context) error {
	runners := c.runnersByInterface[InterfaceShutdowner]

	var errors []error
	for i := len(runners) - 1; i >= 0; i-- {
		if err := runners[i].(Shutdowner).Shutdown(ctx); err != nil {
			errors = append(errors, fmt.Errorf("runner #%d (%T) shutdown failed: %w", i, runners[i], err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	return nil
}
