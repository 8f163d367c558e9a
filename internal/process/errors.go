package process

import (
	"errors"
	"fmt"
)

// Domain errors for the process package.
var (
	// ErrEmptyCommand is returned when Config has no binary.
	ErrEmptyCommand = errors.New("process: empty command")

	// ErrStartFailed is returned when the binary cannot be started.
	ErrStartFailed = errors.New("process: start failed")

	// ErrTimeout is returned when the command exceeds its deadline.
	ErrTimeout = errors.New("process: timed out")

	// ErrNonZeroExit is wrapped by ExitError.
	ErrNonZeroExit = errors.New("process: non-zero exit")
)

// ExitError reports a command that ran to completion with a non-zero status.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process: %s exited with status %d", e.Name, e.Code)
}

// Unwrap allows errors.Is(err, ErrNonZeroExit).
func (e *ExitError) Unwrap() error {
	return ErrNonZeroExit
}
