// Package errors defines the typed failure kinds of the extraction and
// mapping pipeline. Kinds drive retry and propagation policy: transport
// failures are retryable inside the model-assisted extractor, everything
// else is not.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers network and storage failures.
	KindTransport
	// KindAuth covers missing or invalid caller credentials. Fails the whole
	// request with no partial output.
	KindAuth
	// KindMalformedInput covers unloadable PDFs and unreadable widgets.
	KindMalformedInput
	// KindSchemaViolation covers model responses that are missing the data
	// object or unparsable as JSON after all repair heuristics.
	KindSchemaViolation
)

// String returns the wire label for a kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TRANSPORT"
	case KindAuth:
		return "AUTH"
	case KindMalformedInput:
		return "MALFORMED_INPUT"
	case KindSchemaViolation:
		return "SCHEMA_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether errors of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindTransport
}

// Error is a pipeline error with a kind and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a pipeline error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an underlying error with a kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether this error may be retried.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf returns the pipeline error kind of err, or KindUnknown for plain
// errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given pipeline error kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
