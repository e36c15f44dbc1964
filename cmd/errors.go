package cmd

import (
	"fmt"
	"time"
)

// CommandFailedError reports a command that exited with an unexpected
// status code.
type CommandFailedError struct {
	Command  []string
	ExitCode int
	Output   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %v failed with exit code %d", e.Command, e.ExitCode)
}

// TimeoutExpiredError reports a command that did not finish within the
// configured timeout.
type TimeoutExpiredError struct {
	Command []string
	Timeout time.Duration
}

func (e *TimeoutExpiredError) Error() string {
	return fmt.Sprintf("timeout %s for command %v exceeded", e.Timeout, e.Command)
}

// PatternNotFoundError reports that a required pattern did not appear in
// a command's output.
type PatternNotFoundError struct {
	Pattern string
	Command []string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("pattern %q not found in output of %v", e.Pattern, e.Command)
}
