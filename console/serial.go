package console

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"hilcomm/cmd"
	"hilcomm/log"

	"go.bug.st/serial"
)

const serialBaudRate = 115200

// OpenSerial opens a serial console on the given tty path and starts a
// session over it. Before opening, the path is validated and a
// best-effort check is made that no other process already holds the
// device open; a missing lsof tool only logs a warning.
func OpenSerial(path, name string, prompt []string) (*Session, error) {
	return openSerial(path, name, prompt, cmd.MakeExecutor())
}

func openSerial(path, name string, prompt []string, e cmd.Executor) (*Session, error) {
	if err := checkAddressFree(path, name, e); err != nil {
		return nil, err
	}

	port, err := serial.Open(path, &serial.Mode{BaudRate: serialBaudRate})
	if err != nil {
		// The device may be unavailable even when the path exists.
		return nil, &SetupError{Name: name, Msg: fmt.Sprintf("failed to open serial port %s", path), Err: err}
	}
	return NewSession(name, port, prompt, nil), nil
}

// checkAddressFree validates that the device path exists and, when lsof
// is available, that no other process has it open. Racing another test
// run on the same tty produces garbled expect results, so failing early
// here is cheaper than debugging those.
func checkAddressFree(path, name string, e cmd.Executor) error {
	if _, err := os.Stat(path); err != nil {
		ttys, _ := filepath.Glob("/dev/tty*")
		return &SetupError{
			Name: name,
			Msg:  fmt.Sprintf("connection address %s doesn't exist, available tty serials: %v", path, ttys),
			Err:  err,
		}
	}

	if _, err := exec.LookPath("lsof"); err != nil {
		log.WarningLog.Printf(
			"[%s]: <lsof> not found, could not determine if port %s is open", name, path)
		return nil
	}

	out, err := cmd.ExecuteWith(e, []string{"lsof", "-t", path}, cmd.Options{
		Timeout: 5 * time.Second,
		Quiet:   true,
		// lsof exits 1 when nothing has the file open.
		ValidExitCodes: []int{0, 1},
	})
	if err != nil {
		log.WarningLog.Printf(
			"[%s]: could not determine if port %s is open: %v", name, path, err)
		return nil
	}
	if pid := strings.TrimSpace(out); pid != "" {
		return &SetupError{
			Name: name,
			Msg:  fmt.Sprintf("connection address %s is used by process with PID: %s", path, pid),
		}
	}
	log.Debug("[%s]: address %s is not used in current environment", name, path)
	return nil
}
