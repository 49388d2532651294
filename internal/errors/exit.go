// Package errors carries process exit codes and the HTTP error envelope.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for outcomes without a more specific foundry code.
const (
	ExitOK      = 0
	ExitGeneric = 1
)

// ExitError pairs a failure with the process exit code it maps to.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// NewExitError returns an ExitError. code is typically a gofulmen foundry
// exit code; err may be nil.
func NewExitError[C ~int](code C, msg string, err error) *ExitError {
	return &ExitError{Code: int(code), Message: msg, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeOf returns the exit code carried by err, ExitOK for nil, and
// ExitGeneric for errors without one.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitGeneric
}
