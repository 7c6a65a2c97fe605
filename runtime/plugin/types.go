package plugin

import (
	"github.com/botui/chatflow/runtime"
)

type (
	// Execution is the context of one job dispatch.
	Execution = runtime.Execution
	// Job is the descriptor of a relayer or closer step.
	Job = runtime.Job
	// JobKind names the job a runner performs.
	JobKind = runtime.JobKind
	// Values holds the collected answers.
	Values = runtime.Values
	// FieldMapping copies an answer into a form field.
	FieldMapping = runtime.FieldMapping

	JobRunner       = runtime.JobRunner
	Initializer     = runtime.Initializer
	Shutdowner      = runtime.Shutdowner
	ScriptEvaluator = runtime.ScriptEvaluator

	JobError = runtime.JobError
)

const (
	JobScript   = runtime.JobScript
	JobWebhook  = runtime.JobWebhook
	JobFormPush = runtime.JobFormPush
)

// NewJobError wraps err with job failure metadata.
func NewJobError(err error) *JobError {
	return runtime.NewJobError(err)
}

// ToStringValue renders an answer the way a form field holds it.
func ToStringValue(value any) string {
	return runtime.ToStringValue(value)
}
