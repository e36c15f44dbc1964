package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"hilcomm/log"
)

// pollTimeout bounds a single line pull. It is what keeps the drain loop
// responsive to stop requests and lets a trailing prompt without a
// newline surface as a partial line.
const pollTimeout = 200 * time.Millisecond

// lineReader pulls text lines from a stream one at a time. When no
// newline arrives within the poll timeout it returns whatever partial
// buffer exists without consuming it, so the partial keeps growing
// across calls until its newline shows up.
type lineReader struct {
	stream Stream
	name   string
	logger *log.SessionLogger
	buf    []byte
}

func newLineReader(stream Stream, name string, logger *log.SessionLogger) *lineReader {
	return &lineReader{stream: stream, name: name, logger: logger}
}

// ReadLine returns the next complete line (without its newline) or, on
// poll expiry, the current partial buffer. The second return value tells
// the two apart: only complete lines are consumed from the buffer. EOF
// is fatal to the session and returns a ConnectionLostError.
func (r *lineReader) ReadLine() (string, bool, error) {
	if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
		return r.cutLine(i), true, nil
	}

	deadline := time.Now().Add(pollTimeout)
	chunk := make([]byte, 4096)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return string(r.buf), false, nil
		}
		_ = r.stream.SetReadTimeout(remaining)

		n, err := r.stream.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
				return r.cutLine(i), true, nil
			}
		}
		if err != nil {
			if isTimeout(err) {
				return string(r.buf), false, nil
			}
			if errors.Is(err, io.EOF) {
				r.logger.Printf("EOF occurred - connection with %s lost or occupied by other source", r.name)
				log.ErrorLog.Printf("[%s]: EOF on console stream", r.name)
				return "", false, &ConnectionLostError{Name: r.name}
			}
			return "", false, err
		}
	}
}

// takeBuffered hands out and clears the partial buffer.
func (r *lineReader) takeBuffered() []byte {
	buffered := r.buf
	r.buf = nil
	return buffered
}

// cutLine consumes the buffer up to and including the newline at i and
// returns the line before it. Every complete line is teed to the
// session log with carriage returns stripped.
func (r *lineReader) cutLine(i int) string {
	line := string(r.buf[:i])
	rest := make([]byte, len(r.buf)-i-1)
	copy(rest, r.buf[i+1:])
	r.buf = rest
	r.logger.Line(strings.ReplaceAll(line, "\r", ""))
	return line
}
