package runtime

import "context"

// Initializer interface allows job runners to perform startup initialization.
// Runners implementing this interface will have Initialize called at container startup.
type Initializer interface {
	// Initialize is called once when the container starts up.
	// Use this to build HTTP clients, resolve documents, etc.
	// Config is already set on the runner struct.
	Initialize(ctx context.Context) error
}

// Shutdowner interface allows job runners to perform graceful shutdown.
// Runners implementing this interface will have Shutdown called during graceful shutdown.
type Shutdowner interface {
	// Shutdown is called during graceful shutdown.
	Shutdown(ctx context.Context) error
}

// JobRunner performs one kind of side effect. The *Execution carries the
// collected values and the job-scoped deadline (it implements context.Context).
// A nil error means the effect happened and the step may be marked done.
type JobRunner interface {
	Run(exec *Execution, job Job) error
}

// SkipEvaluator decides how many steps follow a skipper unvisited.
type SkipEvaluator interface {
	Skip(ctx context.Context, skipper Skipper, values Values) (int, error)
}

// ScriptEvaluator runs administrator-authored source with only the given
// globals in scope.
type ScriptEvaluator interface {
	Eval(ctx context.Context, code string, globals map[string]any) (any, error)
}

// ScriptLoader decodes conversation scripts from files.
type ScriptLoader interface {
	Extensions() []string
	Load(filePath string) ([]Step, error)
}
