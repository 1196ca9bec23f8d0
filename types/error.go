package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the router core.
type ErrorCode string

// Routing and execution error codes
const (
	ErrNoAgentsFound    ErrorCode = "NO_AGENTS_FOUND"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrAgentError       ErrorCode = "AGENT_ERROR"
	ErrCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
)

// Directory and classification error codes
const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrMissingFields ErrorCode = "MISSING_FIELDS"
)

// Infrastructure error codes
const (
	ErrTransport     ErrorCode = "TRANSPORT_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Agent     string    `json:"agent,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, types.NewError(types.ErrTimeout, "")) matches any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent sets the agent name the error refers to.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// MissingFieldsError is returned when a decision context lacks required fields.
type MissingFieldsError struct {
	Category string
	Fields   []string
}

// Error implements the error interface.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("[%s] category %s is missing fields: %s",
		ErrMissingFields, e.Category, strings.Join(e.Fields, ", "))
}

// Is matches any *Error carrying ErrMissingFields.
func (e *MissingFieldsError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == ErrMissingFields
}

// As lets GetErrorCode report ErrMissingFields for this error type.
func (e *MissingFieldsError) As(target any) bool {
	if t, ok := target.(**Error); ok {
		*t = &Error{Code: ErrMissingFields, Message: e.Error()}
		return true
	}
	return false
}

// Common constructors.

// NewNotFoundError creates a NotFound error for the given agent.
func NewNotFoundError(agent string) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("agent %s not found", agent)).WithAgent(agent)
}

// NewTimeoutError creates a retryable Timeout error.
func NewTimeoutError(message string) *Error {
	return NewError(ErrTimeout, message).WithRetryable(true)
}

// NewAgentError wraps a failure returned by an agent.
func NewAgentError(agent string, cause error) *Error {
	return NewError(ErrAgentError, fmt.Sprintf("agent %s failed", agent)).
		WithAgent(agent).
		WithCause(cause).
		WithRetryable(true)
}

// NewInvalidRequestError creates an InvalidRequest error.
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message)
}
