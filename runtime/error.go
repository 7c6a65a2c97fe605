package runtime

// JobError wraps a job failure with metadata the dispatcher logs alongside it:
// - retry hints (retryable)
// - error categorization (type: transient, permanent, not_found)
// - transport details (status_code, endpoint)
type JobError struct {
	Err      error          // The underlying error
	Metadata map[string]any // Failure metadata
}

// Error implements the error interface
func (e *JobError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "job failed"
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new job error with the given underlying error
func NewJobError(err error) *JobError {
	return &JobError{
		Err:      err,
		Metadata: make(map[string]any),
	}
}

// WithMetadata adds metadata to the error
func (e *JobError) WithMetadata(key string, value any) *JobError {
	e.Metadata[key] = value
	return e
}

// WithRetryHint marks whether the next pass should retry the job
func (e *JobError) WithRetryHint(retryable bool) *JobError {
	e.Metadata["retryable"] = retryable
	return e
}

// WithType sets the error type (e.g., "transient", "permanent", "not_found")
func (e *JobError) WithType(errorType string) *JobError {
	e.Metadata["type"] = errorType
	return e
}

// IsRetryable reports whether the error is marked as retryable.
// Errors without a hint are treated as retryable.
func (e *JobError) IsRetryable() bool {
	if val, ok := e.Metadata["retryable"]; ok {
		if retryable, ok := val.(bool); ok {
			return retryable
		}
	}
	return true
}

// GetType returns the error type if set
func (e *JobError) GetType() string {
	if val, ok := e.Metadata["type"]; ok {
		if errorType, ok := val.(string); ok {
			return errorType
		}
	}
	return ""
}

// attrs flattens the metadata into slog key/value pairs.
func (e *JobError) attrs() []any {
	out := make([]any, 0, len(e.Metadata)*2)
	for k, v := range e.Metadata {
		out = append(out, k, v)
	}
	return out
}
