package console

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ptyStream adapts a local PTY to the Stream interface. Read timeouts
// map onto file deadlines; EIO after the child exits is reported as EOF
// so the session sees a lost connection, not a spurious fault.
type ptyStream struct {
	f   *os.File
	cmd *exec.Cmd
}

func (p *ptyStream) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}

func (p *ptyStream) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p *ptyStream) SetReadTimeout(d time.Duration) error {
	return p.f.SetReadDeadline(time.Now().Add(d))
}

func (p *ptyStream) Close() error {
	err := p.f.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	return err
}

// OpenPty spawns argv on a local pseudo-terminal and drives it as a
// console session. Used for local shells and for dry runs where no
// physical device is attached.
func OpenPty(name string, argv []string, prompt []string) (*Session, error) {
	if len(argv) == 0 {
		return nil, &UsageError{Name: name, Msg: "empty command for pty console"}
	}
	c := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(c)
	if err != nil {
		return nil, &SetupError{Name: name, Msg: "failed to start pty console", Err: err}
	}
	return NewSession(name, &ptyStream{f: ptmx, cmd: c}, prompt, nil), nil
}
