package entities

import (
	"fmt"
	"time"
)

// TransportError is returned when the webhook answers with a non-2xx status, or
// cannot be reached at all (StatusCode == 0).
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: webhook unreachable: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: HTTP error! status: %d", e.Operation, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Unreachable reports a connectivity failure rather than an HTTP status.
func (e *TransportError) Unreachable() bool {
	return e.StatusCode == 0
}

// TimeoutError is returned when a bounded webhook call exceeds its deadline.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Operation, e.After)
}

// MalformedResponseError is returned when a non-empty body is not valid JSON.
type MalformedResponseError struct {
	Operation string
	Body      string
	Err       error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: invalid JSON response: %v", e.Operation, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NotFoundError is returned when a local task id does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.ID)
}

// Is lets errors.Is(err, ErrTaskNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrTaskNotFound
}
