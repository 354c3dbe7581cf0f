package commands

import (
	"errors"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitPartial   = 1
	ExitPreflight = 2
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// preflight marks err as a failure that happened before any record was
// processed.
func preflight(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	return &ExitError{Code: ExitPreflight, Err: err}
}

func partial(err error) error {
	return &ExitError{Code: ExitPartial, Err: err}
}

// ExitCode maps a command error to a process exit code. Errors that carry no
// code (flag parsing, unknown commands) mean the run never started.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitPreflight
}
