// Package llmerrors classifies oracle transport failures so that middleware
// can decide what to retry and metrics can label what went wrong.
package llmerrors

import (
	"errors"
	"fmt"
)

// ErrorType is the failure class of an oracle call.
type ErrorType int8

const (
	// Retryable.
	ErrorTypeRateLimit     ErrorType = iota // 429, quota
	ErrorTypeTransient                      // 5xx, resets, EOF
	ErrorTypeEmptyResponse                  // 200 with no text

	// Permanent.
	ErrorTypeAuth      // 401/403, bad key
	ErrorTypeBadPrompt // rejected request: too long, policy, unknown model
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable wraps the last error once retries run out.
	ErrorTypeServiceUnavailable
)

var typeNames = [...]string{ //nolint:gochecknoglobals
	ErrorTypeRateLimit:          "rate_limit",
	ErrorTypeTransient:          "transient",
	ErrorTypeEmptyResponse:      "empty_response",
	ErrorTypeAuth:               "auth",
	ErrorTypeBadPrompt:          "bad_prompt",
	ErrorTypeUnknown:            "unknown",
	ErrorTypeServiceUnavailable: "service_unavailable",
}

func (et ErrorType) String() string {
	if et < 0 || int(et) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[et]
}

// Error is a classified oracle failure.
type Error struct {
	Err        error
	Message    string
	BodyStub   string // leading bytes of the provider's error body
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// Is reports whether err carries a classified error of type t.
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// TypeOf returns the class of err, ErrorTypeUnknown when unclassified.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err may be retried. Unclassified errors may.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return true
}

// IsServiceUnavailable reports whether retries were already exhausted for err.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// FromStatus maps an HTTP status code to a class.
func FromStatus(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 400 || status == 404 || status == 413 || status == 422:
		return ErrorTypeBadPrompt
	case status >= 500:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// NewError returns a classified error with a message.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// NewErrorWithCause returns a classified error wrapping cause.
func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// NewServiceUnavailableError wraps the last error after attempts tries.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}
