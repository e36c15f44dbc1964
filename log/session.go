package log

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// SessionLogger records everything a single console connection produces.
// Data is written to a file, never to stdout. The output file can be
// swapped mid-session so each test case gets its own capture without
// restarting the connection's reader.
type SessionLogger struct {
	name string

	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
}

// NewSessionLogger creates a logger for the named connection. Until
// SetFile is called, lines are dropped.
func NewSessionLogger(name string) *SessionLogger {
	return &SessionLogger{name: name}
}

// Name returns the connection name this logger was created for.
func (s *SessionLogger) Name() string {
	return s.name
}

// SetFile redirects the session log to path, closing any previous file.
// The file is opened in append mode.
func (s *SessionLogger) SetFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open session log %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = f
	s.logger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

// Printf writes a formatted record to the session log.
func (s *SessionLogger) Printf(format string, v ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// Line records one raw line read from the connection.
func (s *SessionLogger) Line(line string) {
	s.Printf("%s", line)
}

// Close releases the log file. Safe to call more than once.
func (s *SessionLogger) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
		s.logger = nil
	}
}
