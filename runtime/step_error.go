package runtime

import (
	"errors"
	"fmt"
)

// StepErrorCode identifies why a step could not be evaluated.
type StepErrorCode string

const (
	// ErrorCodeMalformedStep signals missing or invalid step fields.
	ErrorCodeMalformedStep StepErrorCode = "MALFORMED_STEP"
	// ErrorCodeUnknownJob signals a job kind with no registered runner.
	ErrorCodeUnknownJob StepErrorCode = "UNKNOWN_JOB"
	// ErrorCodeEvaluationFailed signals a condition or script that failed to evaluate.
	ErrorCodeEvaluationFailed StepErrorCode = "EVALUATION_FAILED"
	// ErrorCodeJobFailed signals a side effect that did not succeed.
	ErrorCodeJobFailed StepErrorCode = "JOB_FAILED"
)

var (
	ErrMalformedStep = errors.New("malformed step")
	ErrUnknownJob    = errors.New("unknown job kind")
)

// StepError is the typed error of an evaluation pass. It always names the
// offending step so a stalled conversation can be traced to its script.
type StepError struct {
	Code    StepErrorCode `json:"code"`
	Step    string        `json:"step"`
	Kind    StepKind      `json:"kind,omitempty"`
	Job     JobKind       `json:"job,omitempty"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (step: %s): %v", e.Code, e.Message, e.Step, e.Cause)
	}
	return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// Is matches the package sentinels by code.
func (e *StepError) Is(target error) bool {
	switch target {
	case ErrMalformedStep:
		return e.Code == ErrorCodeMalformedStep
	case ErrUnknownJob:
		return e.Code == ErrorCodeUnknownJob
	}
	return false
}

// ToMap converts the error to a map suitable for scripts and log attributes.
func (e *StepError) ToMap() map[string]any {
	m := map[string]any{
		"code":    string(e.Code),
		"step":    e.Step,
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if e.Job != "" {
		m["job"] = string(e.Job)
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	return m
}

func malformed(step Step, format string, args ...any) *StepError {
	return &StepError{
		Code:    ErrorCodeMalformedStep,
		Step:    step.ID,
		Kind:    step.Kind,
		Message: fmt.Sprintf(format, args...),
	}
}
