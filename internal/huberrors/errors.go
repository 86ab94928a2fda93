// Package huberrors provides sentinel and custom error types for the application.
package huberrors

import "errors"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input or run configuration fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrProviderUnavailable is the sentinel for an unreachable embedding or LLM provider.
var ErrProviderUnavailable = &ProviderUnavailableError{}

// ProviderUnavailableError reports that an external model provider could not serve a request.
// Embedding failures are fatal to a run; LLM failures are recovered by the caller.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

// NewProviderUnavailableError wraps cause as a ProviderUnavailableError for the named provider.
func NewProviderUnavailableError(provider string, cause error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: provider, Err: cause}
}

// Error implements the error interface.
func (e *ProviderUnavailableError) Error() string {
	msg := "provider unavailable"
	if e.Provider != "" {
		msg = e.Provider + " " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *ProviderUnavailableError) Is(target error) bool {
	_, ok := target.(*ProviderUnavailableError)

	return ok
}

// ErrInvariantViolation is the sentinel for corrupt input data detected during a run
// (negative ACV, out-of-range confidence).
var ErrInvariantViolation = &InvariantViolationError{}

// InvariantViolationError names the offending record so the failure can be diagnosed from the run status.
type InvariantViolationError struct {
	RecordID string
	Message  string
}

// NewInvariantViolationError creates an InvariantViolationError for the given record.
func NewInvariantViolationError(recordID, message string) *InvariantViolationError {
	return &InvariantViolationError{RecordID: recordID, Message: message}
}

// Error implements the error interface.
func (e *InvariantViolationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invariant violation"
	}

	if e.RecordID != "" {
		return msg + " (record " + e.RecordID + ")"
	}

	return msg
}

// Is implements the error interface for error comparison.
func (e *InvariantViolationError) Is(target error) bool {
	_, ok := target.(*InvariantViolationError)

	return ok
}

// ErrConflict is the sentinel for conflict errors.
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrAlreadyRunning is returned to a caller that tries to start a run while another is in flight.
// It matches ErrConflict so HTTP handlers can map both to 409.
var ErrAlreadyRunning = &ConflictError{Message: "clustering run already in progress"}

// ErrInsufficientData marks a run that completed without themes because there was too little feedback.
// It is informational and never transitions a run to failed.
var ErrInsufficientData = errors.New("insufficient feedback for clustering")
