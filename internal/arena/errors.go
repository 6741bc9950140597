// Package arena holds the vocabulary shared by every core component:
// the error taxonomy and the event names fanned out to clients.
package arena

import (
	"errors"
	"fmt"
)

// Code classifies an operation failure. Structural codes (NotFound,
// InvalidState, Unauthorized, ValidationRejected, Conflict) are local and
// non-retryable; TransientFailure marks persistence or timeout errors the
// caller may retry; Fatal marks an invariant violation that must surface
// loudly and never be patched silently.
type Code string

const (
	NotFound           Code = "not_found"
	InvalidState       Code = "invalid_state"
	Unauthorized       Code = "unauthorized"
	ValidationRejected Code = "validation_rejected"
	Conflict           Code = "conflict"
	TransientFailure   Code = "transient_failure"
	Fatal              Code = "fatal"
)

// Error is a coded domain error. Err, when set, carries the underlying
// cause and participates in errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a coded error with a formatted message.
func E(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, walking the wrap chain. Errors that
// carry no code report TransientFailure: an unclassified failure must not
// be mistaken for a structural rejection.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return TransientFailure
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return IsCode(err, TransientFailure)
}
