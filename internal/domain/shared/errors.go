package shared

import "errors"

// DomainError is an error raised by a domain rule. Code is stable and is what
// the HTTP layer maps to a status; Message is safe to show to callers.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so wrapped or re-messaged
// errors still match the sentinels below with errors.Is.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared by every bounded context.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeValidation          = "VALIDATION_ERROR"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUnavailable         = "UNAVAILABLE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeDuplicateRequest    = "DUPLICATE_REQUEST"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidTransition   = NewDomainError(CodeInvalidTransition, "Operation not allowed in current state")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrUnavailable         = NewDomainError(CodeUnavailable, "Service temporarily unavailable")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrDuplicateRequest    = NewDomainError(CodeDuplicateRequest, "Request has already been processed")
)

// NewValidationError returns a VALIDATION_ERROR with a specific message.
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewNotFoundError returns a NOT_FOUND error naming the missing resource.
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(CodeNotFound, message)
}

// NewForbiddenError returns a FORBIDDEN error with a specific message.
func NewForbiddenError(message string) *DomainError {
	return NewDomainError(CodeForbidden, message)
}

// UnavailableError wraps a transient infrastructure failure. The cause is kept
// for logging but never rendered to callers.
type UnavailableError struct {
	DomainError
	Cause error
}

// Unwrap returns the underlying infrastructure error
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// As exposes the embedded DomainError to errors.As
func (e *UnavailableError) As(target any) bool {
	if de, ok := target.(**DomainError); ok {
		*de = &e.DomainError
		return true
	}
	return false
}

// NewUnavailableError wraps cause as an UNAVAILABLE error
func NewUnavailableError(op string, cause error) *UnavailableError {
	return &UnavailableError{
		DomainError: DomainError{Code: CodeUnavailable, Message: op + ": storage temporarily unavailable"},
		Cause:       cause,
	}
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
