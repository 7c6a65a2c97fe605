// Package plugin is the import surface for job runner authors.
//
// Runner packages import only this package, never the parent runtime
// package:
//
//	import "github.com/botui/chatflow/runtime/plugin"
//
// # Runner Structure
//
// A runner performs one job kind. It receives the Execution of one dispatch
// and the job descriptor of the step:
//
//	type SlackRunner struct {
//	    Config Config
//	}
//
//	func (r *SlackRunner) Run(exec *plugin.Execution, job plugin.Job) error {
//	    name, _ := exec.Values["name"].(string)
//	    return r.post(exec, "new lead: "+name)
//	}
//
// A nil error marks the step done. A failure leaves the step undone; wrap it
// in a JobError to say whether the next pass should retry it:
//
//	return plugin.NewJobError(err).WithType("permanent").WithRetryHint(false)
//
// # Configuration
//
// Runners define a Config struct with declarative tags. The CLI applies
// defaults, merges chatflow.yaml and validates before Initialize is called:
//
//	type Config struct {
//	    Timeout time.Duration `yaml:"timeout" default:"10s" validate:"gte=1s"`
//	    Channel string        `yaml:"channel" validate:"required"`
//	}
//
// # Lifecycle Management
//
// Runners can implement Initializer and Shutdowner. Initialize runs once in
// registration order before the first conversation, Shutdown runs in reverse
// order on exit.
//
// # Execution Context
//
// The Execution implements context.Context and carries the job timeout.
// Pass it to HTTP clients and interpreters so a stuck job is cancelled:
//   - exec.Values: the collected answers at dispatch time (a copy)
//   - exec.Step: the relayer or closer being run
//   - exec.Conversation: id shared by every job of one conversation
package plugin
