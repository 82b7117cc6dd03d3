package provider

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a breakdown attempt failure. The executor's retry
// policy branches on the kind instead of retrying every failure uniformly.
type ErrorKind string

const (
	// KindConfiguration indicates no provider credential is configured.
	// Never retried; no network call was made.
	KindConfiguration ErrorKind = "CONFIGURATION"

	// KindTransport indicates a connection failure or timeout.
	KindTransport ErrorKind = "TRANSPORT"

	// KindUpstream indicates a non-success response status from the
	// provider. Carries the status code.
	KindUpstream ErrorKind = "UPSTREAM"

	// KindParse indicates the response text was not a valid JSON array.
	KindParse ErrorKind = "PARSE"

	// KindValidation indicates the response parsed but at least one
	// element was semantically invalid.
	KindValidation ErrorKind = "VALIDATION"

	// KindPersistence indicates materialization failed after a
	// logically-successful generation.
	KindPersistence ErrorKind = "PERSISTENCE"
)

// Error is a breakdown failure tagged with its kind.
type Error struct {
	// Kind identifies the failure category.
	Kind ErrorKind
	// Status is the HTTP status code for upstream errors, 0 otherwise.
	Status int
	// Message is a human-readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
// Transport and upstream faults are transient; a missing credential or a
// deterministically malformed response is not.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindUpstream:
		return true
	default:
		return false
	}
}

// KindOf extracts the error kind from err, unwrapping as needed.
// Errors without a kind are treated as transport faults so unknown
// failures stay retryable.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

func configurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

func upstreamError(status int, err error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: "provider request failed", Err: err}
}

func parseError(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// PersistenceError wraps a storage fault hit while materializing a
// successful generation. Defined here so the executor and materializer
// share one taxonomy.
func PersistenceError(err error) *Error {
	return &Error{Kind: KindPersistence, Message: err.Error(), Err: err}
}
