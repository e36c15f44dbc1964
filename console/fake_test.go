package console

import (
	"io"
	"sync"
	"time"
)

// fakeStream is a scripted console wire for tests. Data queued with
// feed becomes readable; writes are recorded and can trigger a scripted
// reaction, which is how command echo is simulated.
type fakeStream struct {
	mu      sync.Mutex
	data    chan []byte
	pending []byte
	timeout time.Duration
	writes  []string
	onWrite func(s *fakeStream, data string)
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{data: make(chan []byte, 64), timeout: pollTimeout}
}

// feed queues bytes for the reader side.
func (f *fakeStream) feed(s string) {
	f.data <- []byte(s)
}

// feedEOF makes subsequent reads return EOF once queued data runs out.
func (f *fakeStream) feedEOF() {
	close(f.data)
}

func (f *fakeStream) SetReadTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
	return nil
}

func (f *fakeStream) Read(b []byte) (int, error) {
	f.mu.Lock()
	timeout := f.timeout
	if len(f.pending) > 0 {
		n := copy(b, f.pending)
		f.pending = f.pending[n:]
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()

	select {
	case chunk, ok := <-f.data:
		if !ok {
			return 0, io.EOF
		}
		f.mu.Lock()
		n := copy(b, chunk)
		f.pending = chunk[n:]
		f.mu.Unlock()
		return n, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (f *fakeStream) Write(b []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, string(b))
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(f, string(b))
	}
	return len(b), nil
}

func (f *fakeStream) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// parked waits until the session's drain loop has released the stream,
// so lines fed afterwards are seen by the foreground operation only.
// Any in-flight background pull finishes within one poll timeout of the
// streaming flag being cleared.
func parked() {
	time.Sleep(pollTimeout + 100*time.Millisecond)
}
