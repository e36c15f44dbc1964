// Package cmd runs host-side external commands (adb, fastboot, lsof and
// friends) and captures their output. The Executor interface is the seam
// used by tests to fake the process layer.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"hilcomm/log"

	"github.com/kballard/go-shellquote"
)

// Executor runs a command given as an argv vector and returns its
// combined stdout+stderr along with the exit code.
type Executor interface {
	CombinedOutput(ctx context.Context, dir string, argv []string) ([]byte, int, error)
}

type realExecutor struct{}

// MakeExecutor returns the Executor backed by os/exec.
func MakeExecutor() Executor {
	return realExecutor{}
}

func (realExecutor) CombinedOutput(ctx context.Context, dir string, argv []string) ([]byte, int, error) {
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = dir
	out, err := c.CombinedOutput()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		err = nil
	}
	return out, code, err
}

// Options controls Execute. The zero value asserts a zero exit code,
// applies no timeout and logs the command and its output.
type Options struct {
	// NoAssert disables the exit code check.
	NoAssert bool
	// ValidExitCodes lists exit codes considered successful. Nil means {0}.
	ValidExitCodes []int
	// Timeout bounds the command runtime. Zero means no timeout.
	Timeout time.Duration
	// Dir is the working directory for the command.
	Dir string
	// Regrep keeps only output lines matching the expression.
	Regrep *regexp.Regexp
	// Pattern, when set, must match somewhere in the (filtered) output.
	// Execute then returns the matched fragment instead of the full output.
	Pattern *regexp.Regexp
	// Quiet suppresses logging of the command and its output.
	Quiet bool
}

// Split breaks a command string into an argv vector using shell quoting
// rules.
func Split(command string) ([]string, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

// Execute runs argv with the default executor.
func Execute(argv []string, opts Options) (string, error) {
	return ExecuteWith(MakeExecutor(), argv, opts)
}

// ExecuteWith runs argv on the given executor, applying the timeout,
// output filtering and exit code policy from opts.
func ExecuteWith(e Executor, argv []string, opts Options) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	if !opts.Quiet {
		log.Debug("executing command: %v", argv)
	}

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	out, code, err := e.CombinedOutput(ctx, opts.Dir, argv)
	output := string(out)
	if ctx.Err() == context.DeadlineExceeded {
		if !opts.Quiet && output != "" {
			log.Debug("command %v timed out, captured output:\n%s", argv, output)
		}
		return "", &TimeoutExpiredError{Command: argv, Timeout: opts.Timeout}
	}
	if err != nil {
		return "", fmt.Errorf("failed to run %v: %w", argv, err)
	}

	if opts.Regrep != nil {
		var kept []string
		for _, line := range strings.Split(output, "\n") {
			if opts.Regrep.MatchString(line) {
				kept = append(kept, line)
			}
		}
		output = strings.Join(kept, "\n")
	}

	if !opts.Quiet {
		log.Debug("output of %v:\n%s", argv, output)
	}

	if !opts.NoAssert && !exitCodeValid(code, opts.ValidExitCodes) {
		return "", &CommandFailedError{Command: argv, ExitCode: code, Output: output}
	}

	if opts.Pattern == nil {
		return output, nil
	}
	if found := opts.Pattern.FindString(output); found != "" {
		return found, nil
	}
	return "", &PatternNotFoundError{Pattern: opts.Pattern.String(), Command: argv}
}

func exitCodeValid(code int, valid []int) bool {
	if valid == nil {
		return code == 0
	}
	for _, v := range valid {
		if code == v {
			return true
		}
	}
	return false
}
