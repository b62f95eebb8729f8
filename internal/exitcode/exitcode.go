// Package exitcode maps command errors to process exit codes.
package exitcode

import "errors"

const (
	// OK is returned when a run completes, even with per-group failures.
	OK = 0
	// Fatal covers authentication, subscription selection and enumeration
	// faults.
	Fatal = 1
	// Usage covers invalid operator input.
	Usage = 2
)

type Error struct {
	Code  int
	Cause error
}

func (e *Error) Error() string {
	return e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Cause: err}
}

// UsageError wraps err with the Usage code.
func UsageError(err error) error {
	return Wrap(Usage, err)
}

// Of returns the exit code for err. Errors not wrapped with a code are
// fatal.
func Of(err error) int {
	if err == nil {
		return OK
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}

	return Fatal
}
