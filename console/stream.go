package console

import (
	"errors"
	"io"
	"os"
	"time"
)

// Stream is the character device a console session drives. Read must
// honor the timeout set with SetReadTimeout: when no data arrives within
// it, Read returns either (0, nil) or a timeout error. A Stream is
// exclusively owned by one session and closed exactly once at teardown.
type Stream interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
}

// timeoutError matches net.Error style timeout reporting, so deadline
// based streams (PTY files, sockets) can be told apart from real faults.
type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}
