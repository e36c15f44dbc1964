package console

import (
	"bytes"
	"errors"
	"io"
)

// detachByte ends an interactive attach (Ctrl-]).
const detachByte = 0x1d

// Attach connects the console to the given reader and writer for
// interactive use, pausing the background drain for the duration.
// Everything read from in is written to the device; everything the
// device produces is written to out. The attach ends when in is
// exhausted or the detach byte (Ctrl-]) is seen.
func (s *Session) Attach(in io.Reader, out io.Writer) error {
	s.pause()
	defer s.resume()

	// Hand over anything the line reader already buffered, the user
	// wants to see the partial prompt too.
	if buffered := s.reader.takeBuffered(); len(buffered) > 0 {
		if _, err := out.Write(buffered); err != nil {
			return err
		}
	}

	// When the device side ends the attach first, this goroutine stays
	// blocked in in.Read until one more read completes. With os.Stdin
	// that pending read lasts until process exit, so Attach is meant for
	// one-shot CLI use, not for repeated attaches in a long-lived
	// process.
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				data := buf[:n]
				if i := bytes.IndexByte(data, detachByte); i >= 0 {
					if i > 0 {
						_, _ = s.stream.Write(data[:i])
					}
					return
				}
				if _, err := s.stream.Write(data); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		_ = s.stream.SetReadTimeout(pollTimeout)
		n, err := s.stream.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return &ConnectionLostError{Name: s.name}
			}
			return err
		}
	}
}
