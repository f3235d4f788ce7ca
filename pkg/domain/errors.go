package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrRemote         = errors.New("device returned an error response")
	ErrTaskFailed     = errors.New("import task failed on the device")
	ErrValidation     = errors.New("invalid policy spec")
	ErrNotProvisioned = errors.New("asm module is not provisioned on the device")
	ErrGuardRejected  = errors.New("import rejected by admission guard")
)

// RemoteError reports a non-2xx device response. The raw response body is
// surfaced verbatim so callers see exactly what the device said.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("device returned status %d", e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// TaskFailedError reports that the device marked an import task FAILURE.
type TaskFailedError struct {
	TaskID string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("failed to import ASM policy: task %s reported FAILURE", e.TaskID)
}

func (e *TaskFailedError) Unwrap() error { return ErrTaskFailed }

// ValidationError reports conflicting or malformed spec fields. It is raised
// before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// GuardError reports an admission guard denial with the rule violations.
type GuardError struct {
	Violations []string
}

func (e *GuardError) Error() string {
	if len(e.Violations) == 0 {
		return ErrGuardRejected.Error()
	}
	return fmt.Sprintf("import rejected by admission guard: %v", e.Violations)
}

func (e *GuardError) Unwrap() error { return ErrGuardRejected }
