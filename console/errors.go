package console

import "fmt"

// SetupError reports that a console connection could not be opened:
// missing device path, permission denied or port already in use.
type SetupError struct {
	Name string
	Msg  string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s]: %s: %v", e.Name, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s]: %s", e.Name, e.Msg)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ConnectionLostError reports end-of-stream in the middle of a session.
// The session is unusable afterwards.
type ConnectionLostError struct {
	Name string
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("[%s]: EOF occurred - connection lost or occupied by other source", e.Name)
}

// EchoNotFoundError reports that the echo of a sent command never showed
// up in the output after exhausting all retypes.
type EchoNotFoundError struct {
	Name    string
	Command string
}

func (e *EchoNotFoundError) Error() string {
	return fmt.Sprintf("[%s]: echo of command <%s> not found", e.Name, e.Command)
}

// UnexpectedPatternError reports that a not-expected pattern matched.
type UnexpectedPatternError struct {
	Name    string
	Pattern string
	Line    string
}

func (e *UnexpectedPatternError) Error() string {
	return fmt.Sprintf("[%s]: unexpected pattern <%s> found", e.Name, e.Pattern)
}

// PromptNotFoundError reports that the prompt did not appear before the
// timeout.
type PromptNotFoundError struct {
	Name   string
	Prompt string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("[%s]: prompt <%s> not found", e.Name, e.Prompt)
}

// PatternNotFoundError reports that none of the expected patterns
// appeared before the timeout.
type PatternNotFoundError struct {
	Name     string
	Patterns []string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("[%s]: expected %v not found", e.Name, e.Patterns)
}

// UsageError reports programming misuse of the console API, e.g. an
// expect call with nothing to wait for.
type UsageError struct {
	Name string
	Msg  string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("[%s]: %s", e.Name, e.Msg)
}
