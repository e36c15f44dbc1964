package sshconn

import "fmt"

// ConnectionError means the client could not connect or the channel
// setup failed.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh: failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandFailedError means the remote command exited with a nonzero
// status.
type CommandFailedError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("ssh: command %q resulted in nonzero exit code: %d", e.Command, e.ExitCode)
}

// TimeoutReachedError means the remote command produced no exit status
// within the execution timeout.
type TimeoutReachedError struct {
	Command string
	Stdout  string
	Stderr  string
}

func (e *TimeoutReachedError) Error() string {
	return fmt.Sprintf("ssh: command %q returned no exit code", e.Command)
}

// TransferFailedError means an sftp upload or download failed.
type TransferFailedError struct {
	Path string
	Err  error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("sftp: transfer of %s failed: %v", e.Path, e.Err)
}

func (e *TransferFailedError) Unwrap() error {
	return e.Err
}
