// Package errors provides centralized error definitions and error handling utilities
// for roomkit. It defines the error kinds surfaced by the event bus, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain errors:
//   - ListenerError: a subscriber's handler failed (returned an error or panicked)
//     while an event was being dispatched
//
// Semantic errors:
//   - ValidationError: invalid input passed to a bus operation
//   - TimeoutError: a wait on an event expired before the event was published
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewValidationError("event name must not be empty").WithField("eventName")
//	err := errors.NewTimeoutError("waiting for sync:error", 50*time.Millisecond)
//	err := errors.NewListenerError("room:selected", cause).WithListenerID(id)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//
//	var lerr *errors.ListenerError
//	if errors.As(err, &lerr) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrListenerFailed indicates that an event handler failed during dispatch.
	ErrListenerFailed = New("listener failed")
	// ErrListenerPanicked indicates that an event handler panicked during dispatch.
	ErrListenerPanicked = New("listener panicked")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RoomkitError is the base interface for all roomkit errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type RoomkitError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// ListenerError represents a handler that failed while an event was being
// dispatched. It is reported through the bus diagnostics and never returned
// to the publisher.
//
// Example:
//
//	err := errors.NewListenerError("room:selected", cause).WithListenerID("3f2a...")
//	fmt.Println(err) // "listener error [event=room:selected, listener=3f2a...]: handler failed: ..."
type ListenerError struct {
	baseError
	EventName  string
	ListenerID string
	Panicked   bool
	Stack      []byte // Captured stack when Panicked is true
}

// NewListenerError creates a new ListenerError for a handler that returned cause.
func NewListenerError(eventName string, cause error) *ListenerError {
	return &ListenerError{
		baseError: baseError{
			message:    "handler failed",
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		EventName: eventName,
	}
}

// NewListenerPanicError creates a ListenerError for a handler that panicked.
// The recovered value is kept as the cause when it is an error.
func NewListenerPanicError(eventName string, recovered any, stack []byte) *ListenerError {
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%w: %v", ErrListenerPanicked, recovered)
	}
	return &ListenerError{
		baseError: baseError{
			message:    "handler panicked",
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		EventName: eventName,
		Panicked:  true,
		Stack:     stack,
	}
}

// WithListenerID adds the failing listener's ID to the error context.
func (e *ListenerError) WithListenerID(id string) *ListenerError {
	e.ListenerID = id
	return e
}

// WithSeverity sets the error severity.
func (e *ListenerError) WithSeverity(s Severity) *ListenerError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *ListenerError) Error() string {
	var parts []string
	if e.EventName != "" {
		parts = append(parts, fmt.Sprintf("event=%s", e.EventName))
	}
	if e.ListenerID != "" {
		parts = append(parts, fmt.Sprintf("listener=%s", e.ListenerID))
	}

	prefix := "listener error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("listener error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ListenerError) Is(target error) bool {
	if _, ok := target.(*ListenerError); ok {
		return true
	}
	if target == ErrListenerFailed {
		return true
	}
	if e.Panicked && target == ErrListenerPanicked {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("event name must not be empty")
//	err = err.WithField("eventName").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for sync:error", 50*time.Millisecond)
//	fmt.Println(err) // "timeout error: waiting for sync:error (timeout: 50ms)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing RoomkitError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rkErr RoomkitError
	if As(err, &rkErr) {
		return rkErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
// Validation and timeout errors are user-facing; listener failures are not,
// since their causes come from arbitrary handler code.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    showStatus(err.Error())
//	} else {
//	    showStatus("An internal error occurred")
//	    logger.Error("internal error", "error", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var rkErr RoomkitError
	if As(err, &rkErr) {
		return rkErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RoomkitError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var rkErr RoomkitError
	if As(err, &rkErr) {
		return rkErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare New, this preserves the RoomkitError interface of err.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load config")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to subscribe to %s", eventName)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
