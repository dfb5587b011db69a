package dto

import (
	"net/http"

	"github.com/groupbuy/backend/internal/domain/shared"
)

// Domain error codes surface on the wire unchanged so clients can switch on
// the same values the domain raises.
const (
	ErrCodeNotFound            = shared.CodeNotFound
	ErrCodeInvalidTransition   = shared.CodeInvalidTransition
	ErrCodeValidation          = shared.CodeValidation
	ErrCodeForbidden           = shared.CodeForbidden
	ErrCodeUnauthorized        = shared.CodeUnauthorized
	ErrCodeUnavailable         = shared.CodeUnavailable
	ErrCodeConcurrencyConflict = shared.CodeConcurrencyConflict
	ErrCodeDuplicateRequest    = shared.CodeDuplicateRequest
)

// Transport error codes, raised by handlers and middleware only
const (
	// ErrCodeInternal is used for unexpected failures
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when the body is not valid JSON
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeTokenExpired is used when a bearer or chat token has expired
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when a bearer or chat token does not verify
	ErrCodeTokenInvalid = "TOKEN_INVALID"
	// ErrCodeRateLimited is used when a client exceeds its request budget
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodePayloadTooLarge is used when the body exceeds the configured limit
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeInvalidTransition:   http.StatusUnprocessableEntity,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeUnavailable:         http.StatusServiceUnavailable,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeDuplicateRequest:    http.StatusConflict,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
