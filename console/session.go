// Package console implements the interactive console protocol engine: a
// background reader that continuously drains a character device, and a
// synchronous send/expect layer that injects commands, verifies their
// echo and matches device output against expected and failure patterns
// under a single timeout budget.
package console

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hilcomm/log"
)

// Defaults for Send. The echo window is per write attempt, independent
// of the caller's expect timeout.
const (
	defaultMaxRetypes = 2
	echoWindow        = 2 * time.Second
	pausePollInterval = 50 * time.Millisecond
)

// Session drives one console connection. A background goroutine drains
// unsolicited device chatter while no foreground Send/Expect call is in
// progress; foreground calls pause the drain, take exclusive ownership
// of the stream and interpret the next lines themselves.
type Session struct {
	name   string
	stream Stream
	logger *log.SessionLogger
	reader *lineReader

	// mu serializes stream access between the drain goroutine and one
	// foreground operation. The drain holds it for as long as streaming
	// is set, so nothing else may block on it except via pause.
	mu        sync.Mutex
	running   atomic.Bool
	streaming atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	// stateMu guards the match state, which accessors may read while
	// the drain goroutine owns mu.
	stateMu       sync.Mutex
	promptPattern string
	matched       string
	outputLines   []string
}

// NewSession starts a session over an already opened stream. The prompt
// may be nil (no prompt configured), a single string or several
// alternatives; see SetPrompt for the escaping rules. The background
// reader starts immediately.
func NewSession(name string, stream Stream, prompt []string, logger *log.SessionLogger) *Session {
	if logger == nil {
		logger = log.NewSessionLogger(name)
	}
	s := &Session{
		name:   name,
		stream: stream,
		logger: logger,
		reader: newLineReader(stream, name, logger),
		done:   make(chan struct{}),
	}
	s.running.Store(true)
	s.streaming.Store(true)
	s.promptPattern = promptRegex(prompt)
	s.logger.Printf("prompt regex set to <%s>", s.promptPattern)
	go s.drain()
	return s
}

// Name returns the connection name used in logs and error messages.
func (s *Session) Name() string {
	return s.name
}

// SetPrompt replaces the session prompt. Each string is matched as a
// literal unless it starts with a backslash, in which case it is used
// as a ready-made regex fragment. Multiple strings are alternated.
func (s *Session) SetPrompt(prompt ...string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.promptPattern = promptRegex(prompt)
	s.logger.Printf("prompt regex set to <%s>", s.promptPattern)
}

// Matched returns the substring matched by the most recent expect
// cycle, or "" when nothing has matched since the last cycle started.
func (s *Session) Matched() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.matched
}

// Output returns the lines captured during the most recent expect
// cycle. When a prompt is configured the final line (the prompt echo)
// is excluded.
func (s *Session) Output() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	lines := s.outputLines
	if s.promptPattern != "" && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// SetLogFile redirects the session log to path without stopping the
// background reader.
func (s *Session) SetLogFile(path string) error {
	return s.logger.SetFile(path)
}

// drain runs on the background goroutine for the lifetime of the
// session. While streaming it holds the lock and discards lines; when a
// foreground operation clears the streaming flag it backs off and polls
// until streaming resumes or the session stops. Any read fault stops
// the session for good.
func (s *Session) drain() {
	defer close(s.done)
	defer func() {
		s.streaming.Store(false)
		s.running.Store(false)
		s.logger.Printf("reader loop exited")
	}()

	s.logger.Printf("starting reader loop")
	for s.running.Load() {
		s.mu.Lock()
		for s.streaming.Load() && s.running.Load() {
			if _, _, err := s.reader.ReadLine(); err != nil {
				s.mu.Unlock()
				log.ErrorLog.Printf("[%s]: reader loop error: %v", s.name, err)
				return
			}
		}
		s.mu.Unlock()
		for s.running.Load() && !s.streaming.Load() {
			time.Sleep(pausePollInterval)
		}
	}
}

// pause stops the background drain and takes exclusive ownership of the
// stream. Must be paired with resume.
func (s *Session) pause() {
	s.streaming.Store(false)
	s.mu.Lock()
}

func (s *Session) resume() {
	s.streaming.Store(true)
	s.mu.Unlock()
}

// Close stops the background reader, waits for it to exit and releases
// the stream and the session log. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.running.Store(false)
		<-s.done
		err = s.stream.Close()
		s.logger.Printf("console closed")
		s.logger.Close()
	})
	return err
}

// SendOptions controls Send. The zero value checks the command echo
// with the default retype budget and appends a line break.
type SendOptions struct {
	// MaxRetypes is the write attempt budget for the echo check.
	// Zero means the default of 2.
	MaxRetypes int
	// NoEcho makes the write fire-and-forget.
	NoEcho bool
	// NoLinebreak suppresses the trailing line break.
	NoLinebreak bool
}

// Send writes a command to the console. Unless opts.NoEcho is set it
// waits for the device to echo the command back, retyping it up to the
// retype budget, and fails with an EchoNotFoundError when the echo
// never shows up.
func (s *Session) Send(command string, opts SendOptions) error {
	s.pause()
	defer s.resume()
	return s.send(command, opts)
}

func (s *Session) send(command string, opts SendOptions) error {
	s.logger.Printf("sending command <%s>", command)

	if opts.NoEcho {
		return s.write(command, !opts.NoLinebreak)
	}

	echo := regexp.MustCompile(regexp.QuoteMeta(command))
	retypes := opts.MaxRetypes
	if retypes <= 0 {
		retypes = defaultMaxRetypes
	}
	for ; retypes > 0; retypes-- {
		if err := s.write(command, !opts.NoLinebreak); err != nil {
			return err
		}
		deadline := time.Now().Add(echoWindow)
		for time.Now().Before(deadline) {
			line, _, err := s.reader.ReadLine()
			if err != nil {
				return err
			}
			if echo.MatchString(line) {
				return nil
			}
		}
	}
	err := &EchoNotFoundError{Name: s.name, Command: command}
	s.logger.Printf("%v", err)
	return err
}

func (s *Session) write(command string, linebreak bool) error {
	data := command
	if linebreak {
		data += "\n"
	}
	if _, err := s.stream.Write([]byte(data)); err != nil {
		return fmt.Errorf("[%s]: failed to write command <%s>: %w", s.name, command, err)
	}
	return nil
}

// ExpectOptions controls Expect and SendAndExpect.
type ExpectOptions struct {
	// NotExpected are failure patterns: the first one matching any line
	// aborts the call with an UnexpectedPatternError.
	NotExpected []Pattern
	// Timeout bounds the whole call. Zero or negative waits forever.
	Timeout time.Duration
	// WaitForPrompt additionally requires the prompt to appear before
	// the call may succeed.
	WaitForPrompt bool
	// Prompt overrides the session prompt for this call only.
	Prompt []string
}

// Expect reads lines until one of the expected patterns matches (and
// the prompt appeared, when required), a not-expected pattern matches,
// or the timeout expires. It returns the index of the first expected
// pattern that matched, PromptOnly when only the prompt was awaited, or
// NotExpecting when there were no expected patterns to look for.
func (s *Session) Expect(expected []Pattern, opts ExpectOptions) (int, error) {
	s.pause()
	defer s.resume()
	return s.expect(expected, opts)
}

// SendAndExpect sends a command and then expects on its output, keeping
// the background reader paused across both so no line is lost between
// the write and the read.
func (s *Session) SendAndExpect(command string, expected []Pattern, sendOpts SendOptions, opts ExpectOptions) (int, error) {
	s.pause()
	defer s.resume()

	if err := s.send(command, sendOpts); err != nil {
		return NotExpecting, err
	}
	if len(expected) == 0 && len(opts.NotExpected) == 0 && !opts.WaitForPrompt {
		return NotExpecting, nil
	}
	return s.expect(expected, opts)
}

func (s *Session) expect(expected []Pattern, opts ExpectOptions) (int, error) {
	s.logger.Printf("expecting %v while %v is NOT expected, prompt: %v, timeout: %s",
		patternStrings(expected), patternStrings(opts.NotExpected), opts.WaitForPrompt, opts.Timeout)

	if len(expected) == 0 && len(opts.NotExpected) == 0 && !opts.WaitForPrompt {
		return NotExpecting, &UsageError{
			Name: s.name,
			Msg:  "either expected or not-expected patterns must be given when not waiting for prompt",
		}
	}

	s.stateMu.Lock()
	promptPattern := s.promptPattern
	if opts.Prompt != nil {
		promptPattern = promptRegex(opts.Prompt)
	}
	s.stateMu.Unlock()
	if opts.WaitForPrompt && promptPattern == "" {
		return NotExpecting, &UsageError{Name: s.name, Msg: "prompt not provided while waiting for prompt is enabled"}
	}
	promptRe, err := regexp.Compile(promptPattern)
	if err != nil {
		return NotExpecting, &UsageError{Name: s.name, Msg: fmt.Sprintf("invalid prompt regex <%s>: %v", promptPattern, err)}
	}
	s.logger.Printf("expecting prompt with regex <%s>", promptPattern)

	promptFound := !opts.WaitForPrompt
	expectedFound := NotExpecting
	s.stateMu.Lock()
	s.matched = ""
	s.outputLines = s.outputLines[:0]
	s.stateMu.Unlock()

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		line, complete, err := s.reader.ReadLine()
		if err != nil {
			return NotExpecting, err
		}
		// An empty partial pull only means the device was idle for a
		// poll interval. It is not output.
		if complete || line != "" {
			s.stateMu.Lock()
			s.outputLines = append(s.outputLines, strings.ReplaceAll(line, "\r", ""))
			s.stateMu.Unlock()

			// Fixed per-line evaluation order: prompt, not-expected,
			// expected. Reordering changes which line wins on adversarial
			// input.
			if opts.WaitForPrompt && promptRe.MatchString(line) {
				promptFound = true
			}
			for _, ne := range opts.NotExpected {
				if ne.isTimeout() {
					continue
				}
				if ne.re.MatchString(line) {
					unexpected := &UnexpectedPatternError{Name: s.name, Pattern: ne.String(), Line: line}
					s.logger.Printf("%v", unexpected)
					return NotExpecting, unexpected
				}
			}
			s.stateMu.Lock()
			for idx, exp := range expected {
				if exp.isTimeout() {
					continue
				}
				if loc := exp.re.FindStringIndex(line); loc != nil && s.matched == "" {
					expectedFound = idx
					s.matched = line[loc[0]:loc[1]]
				}
			}
			s.stateMu.Unlock()

			if promptFound && !(expectedFound == NotExpecting && (len(expected) > 0 || len(opts.NotExpected) > 0)) {
				if expectedFound >= 0 {
					s.logger.Printf("expected <%s> found", expected[expectedFound])
					return expectedFound, nil
				}
				return PromptOnly, nil
			}
		}

		if opts.Timeout > 0 && time.Now().After(deadline) {
			if opts.WaitForPrompt && !promptFound {
				notFound := &PromptNotFoundError{Name: s.name, Prompt: promptPattern}
				s.logger.Printf("%v", notFound)
				return NotExpecting, notFound
			}
			if len(expected) == 0 {
				s.logger.Printf("not-expected patterns have not occurred")
				return NotExpecting, nil
			}
			for idx, exp := range expected {
				if exp.isTimeout() {
					s.logger.Printf("expected timeout occurred")
					return idx, nil
				}
			}
			notFound := &PatternNotFoundError{Name: s.name, Patterns: patternStrings(expected)}
			s.logger.Printf("%v", notFound)
			return NotExpecting, notFound
		}
	}
}
