// Package errors provides the domain error taxonomy for the meetbrief
// processing core.
//
// Sentinel errors cover conditions that callers branch on with errors.Is,
// and EngineError carries structured detail for failures reported by the
// speech-to-text, diarization, and LLM engines.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested job was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed segments or inputs. Fatal to the
	// current stage, never retried automatically.
	ErrValidation = errors.New("validation error")

	// ErrCapacity indicates the queue admission policy rejected an enqueue.
	// Caller-retryable; never becomes part of job state.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrInvalidState indicates the operation is not valid for the job's
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrInFlight indicates the job already has a non-terminal processing
	// attempt and a second dispatch was refused.
	ErrInFlight = errors.New("job already in flight")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsCapacity reports whether any error in err's chain is ErrCapacity.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacity)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsInFlight reports whether any error in err's chain is ErrInFlight.
func IsInFlight(err error) bool {
	return errors.Is(err, ErrInFlight)
}

// EngineCode classifies an engine failure.
type EngineCode string

const (
	CodeEngineFailure     EngineCode = "engine_failure"
	CodeUnsupportedFormat EngineCode = "unsupported_format"
	CodeRateLimited       EngineCode = "rate_limited"
	CodeTimeout           EngineCode = "timeout"
	CodeBadResponse       EngineCode = "bad_response"
)

// EngineError is a transient or permanent failure reported by an external
// engine (speech-to-text, diarization, or LLM). It surfaces to the user as
// the job's error detail; retry is always an explicit user action.
type EngineError struct {
	Code    EngineCode
	Message string
	Cause   error

	// RetryAfter is a suggested backoff for rate-limited calls, zero
	// otherwise.
	RetryAfter time.Duration
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError creates an EngineError with the generic failure code.
func NewEngineError(message string, cause error) *EngineError {
	return &EngineError{Code: CodeEngineFailure, Message: message, Cause: cause}
}

// NewRateLimitError creates an EngineError for a rate-limited call with a
// suggested backoff.
func NewRateLimitError(message string, retryAfter time.Duration) *EngineError {
	return &EngineError{Code: CodeRateLimited, Message: message, RetryAfter: retryAfter}
}

// NewUnsupportedFormatError creates an EngineError for audio the engine
// cannot decode.
func NewUnsupportedFormatError(message string) *EngineError {
	return &EngineError{Code: CodeUnsupportedFormat, Message: message}
}

// AsEngineError returns the EngineError in err's chain, if any.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsRateLimited reports whether err is a rate-limited engine failure.
func IsRateLimited(err error) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Code == CodeRateLimited
	}
	return false
}
