// Package adb drives Android devices through the host adb binary:
// shell commands, state polling, reboot tracking via the kernel boot id,
// file transfer and server lifecycle.
package adb

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"hilcomm/cmd"
	"hilcomm/log"
)

// State is the adb-reported device state.
type State string

const (
	StateDevice       State = "device"
	StateRecovery     State = "recovery"
	StateOffline      State = "offline"
	StateUnauthorized State = "unauthorized"
	StateNotFound     State = "not found"
)

const (
	defaultCommandTimeout = 30 * time.Second
	kernelBootIDPath      = "/proc/sys/kernel/random/boot_id"
	adbServerAddress      = "127.0.0.1:5037"
)

// devicePattern matches one serial (ip:port, plain id or emulator id)
// per "adb devices" line in device or recovery state.
var devicePattern = regexp.MustCompile(`(?m)^([0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}:[0-9]{1,5}|\w+-\w+|\w+)\t(?:device|recovery)$`)

// Adb runs adb commands against one device. With an empty device id the
// "-s" flag is omitted and the id is adopted from the single connected
// device on first state query.
type Adb struct {
	deviceID  string
	ignoreIDs map[string]struct{}
	exec      cmd.Executor
}

// New returns an Adb for the given device id, which may be empty when
// only one device is attached.
func New(deviceID string) *Adb {
	a, _ := NewWith(deviceID, nil, cmd.MakeExecutor())
	return a
}

// NewWith builds an Adb with an explicit executor and an optional list
// of device ids to ignore during device discovery. A device id and
// ignore list cannot be combined: the ignore list only makes sense when
// the id is still unknown.
func NewWith(deviceID string, ignoreIDs []string, e cmd.Executor) (*Adb, error) {
	if deviceID != "" && len(ignoreIDs) > 0 {
		return nil, fmt.Errorf("adb: device id and ignore list cannot both be set")
	}
	a := &Adb{deviceID: deviceID, ignoreIDs: make(map[string]struct{}), exec: e}
	for _, id := range ignoreIDs {
		a.ignoreIDs[id] = struct{}{}
	}
	return a, nil
}

// DeviceID returns the device id, which may be empty until discovered.
func (a *Adb) DeviceID() string {
	return a.deviceID
}

// SetDeviceID pins the adb serial used for all subsequent commands.
func (a *Adb) SetDeviceID(id string) {
	a.deviceID = id
}

func (a *Adb) argv(args ...string) []string {
	out := []string{"adb"}
	if a.deviceID != "" {
		out = append(out, "-s", a.deviceID)
	}
	return append(out, args...)
}

// RunOptions controls CheckOutput and Shell. The zero value asserts a
// zero exit code and applies the default 30s timeout.
type RunOptions struct {
	// NoAssert disables the exit code check.
	NoAssert bool
	// ValidExitCodes lists exit codes considered successful. Nil means {0}.
	ValidExitCodes []int
	// Timeout bounds the command. Zero means the 30s default, negative
	// means no timeout.
	Timeout time.Duration
	// Regrep keeps only output lines matching the expression.
	Regrep *regexp.Regexp
	// Quiet suppresses output logging.
	Quiet bool
}

func (o RunOptions) timeout() time.Duration {
	switch {
	case o.Timeout == 0:
		return defaultCommandTimeout
	case o.Timeout < 0:
		return 0
	default:
		return o.Timeout
	}
}

// CheckOutput runs an adb subcommand given as a shell-quoted string and
// returns its combined output.
func (a *Adb) CheckOutput(command string, opts RunOptions) (string, error) {
	args, err := cmd.Split(command)
	if err != nil {
		return "", err
	}
	return cmd.ExecuteWith(a.exec, a.argv(args...), cmd.Options{
		NoAssert:       opts.NoAssert,
		ValidExitCodes: opts.ValidExitCodes,
		Timeout:        opts.timeout(),
		Regrep:         opts.Regrep,
		Quiet:          opts.Quiet,
	})
}

// Shell runs a command through "adb shell".
func (a *Adb) Shell(command string, opts RunOptions) (string, error) {
	args, err := cmd.Split(command)
	if err != nil {
		return "", err
	}
	full := append([]string{"shell"}, args...)
	return cmd.ExecuteWith(a.exec, a.argv(full...), cmd.Options{
		NoAssert:       opts.NoAssert,
		ValidExitCodes: opts.ValidExitCodes,
		Timeout:        opts.timeout(),
		Regrep:         opts.Regrep,
		Quiet:          opts.Quiet,
	})
}

// IsUserdebug reports whether the device runs a userdebug build.
func (a *Adb) IsUserdebug() (bool, error) {
	out, err := a.Shell("getprop ro.build.type", RunOptions{})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "userdebug", nil
}

// ListDevices returns the serials of all attached devices in device or
// recovery state, minus the ignore list.
func (a *Adb) ListDevices() ([]string, error) {
	out, err := cmd.ExecuteWith(a.exec, []string{"adb", "devices"}, cmd.Options{Timeout: time.Minute})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range devicePattern.FindAllStringSubmatch(strings.TrimSpace(out), -1) {
		if _, skip := a.ignoreIDs[m[1]]; !skip {
			ids = append(ids, m[1])
		}
	}
	return ids, nil
}

// GetState reports the current device state. When no device id is set
// and exactly one device is attached its serial is adopted; more than
// one unknown device is an error.
func (a *Adb) GetState() (State, error) {
	if a.deviceID == "" {
		ids, err := a.ListDevices()
		if err != nil {
			return StateNotFound, err
		}
		switch len(ids) {
		case 0:
			return StateNotFound, nil
		case 1:
			a.deviceID = ids[0]
		default:
			return StateNotFound, fmt.Errorf("adb: more than one unknown device is connected: %v", ids)
		}
	}

	stateOpts := RunOptions{Timeout: 5 * time.Second, NoAssert: true, Quiet: true}
	out, err := a.CheckOutput("get-state", stateOpts)
	if err != nil {
		return StateNotFound, err
	}
	if strings.Contains(out, "daemon started successfully") {
		if out, err = a.CheckOutput("get-state", stateOpts); err != nil {
			return StateNotFound, err
		}
	}
	for retries := 10; retries > 0 && strings.Contains(out, "device still authorizing"); retries-- {
		time.Sleep(time.Second)
		if out, err = a.CheckOutput("get-state", stateOpts); err != nil {
			return StateNotFound, err
		}
	}

	switch {
	case strings.Contains(out, "more than one"):
		return StateNotFound, fmt.Errorf("adb: more than one device connected, device id must be set to read state")
	case strings.Contains(out, "unauthorized"):
		return StateUnauthorized, nil
	case strings.Contains(out, "offline"):
		return StateOffline, nil
	case strings.Contains(out, "no devices/emulators found"),
		strings.Contains(out, "not found"),
		strings.Contains(out, "cannot connect to daemon"):
		return StateNotFound, nil
	}
	return parseState(strings.TrimSpace(out))
}

func parseState(s string) (State, error) {
	switch State(s) {
	case StateDevice, StateRecovery, StateOffline, StateUnauthorized, StateNotFound:
		return State(s), nil
	}
	return StateNotFound, fmt.Errorf("adb: unknown device state %q", s)
}

// WaitOptions controls the polling loops. Zero values pick the loop's
// defaults.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (o WaitOptions) orDefaults(timeout, poll time.Duration) (time.Duration, time.Duration) {
	if o.Timeout > 0 {
		timeout = o.Timeout
	}
	if o.PollInterval > 0 {
		poll = o.PollInterval
	}
	return timeout, poll
}

// WaitForState polls until the device reports the wanted state. An
// unauthorized device triggers an adb server restart, which is usually
// enough to recover it.
func (a *Adb) WaitForState(want State, opts WaitOptions) error {
	timeout, poll := opts.orDefaults(2*time.Minute, 2*time.Second)
	deadline := time.Now().Add(timeout)
	last := StateNotFound
	for {
		state, err := a.GetState()
		if err == nil {
			last = state
			if state == want {
				log.InfoLog.Printf("[%s]: device in %s state", a.label(), want)
				return nil
			}
			if state == StateUnauthorized {
				_ = a.RestartServer(true)
			}
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("adb: device state %q != %q after %s", last, want, timeout)
		}
		time.Sleep(poll)
	}
}

// WaitForBootComplete polls the sys.boot_completed property until
// Android reports a finished boot.
func (a *Adb) WaitForBootComplete(opts WaitOptions) error {
	timeout, poll := opts.orDefaults(4*time.Minute, 2*time.Second)
	log.InfoLog.Printf("[%s]: waiting for sys.boot_completed == 1 (timeout %s)", a.label(), timeout)
	deadline := time.Now().Add(timeout)
	for {
		out, err := a.Shell("getprop sys.boot_completed", RunOptions{NoAssert: true, Quiet: true})
		if err == nil {
			out = strings.TrimSpace(out)
			if strings.Contains(out, "device unauthorized") {
				_ = a.RestartServer(true)
			} else if out == "1" {
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("adb: sys.boot_completed != 1 after %s", timeout)
		}
		time.Sleep(poll)
	}
}

// WaitForLog polls logcat until a message with the given tag (and text,
// when non-empty) shows up in the buffer.
func (a *Adb) WaitForLog(buffer, tag, text string, opts WaitOptions) error {
	timeout, poll := opts.orDefaults(time.Minute, 2*time.Second)
	deadline := time.Now().Add(timeout)
	logcat := fmt.Sprintf("logcat -b %s -d | grep %s", buffer, tag)
	if text != "" {
		logcat += fmt.Sprintf(" | grep '\"%s\"'", text)
	}
	for {
		out, err := a.Shell(logcat, RunOptions{NoAssert: true})
		if err == nil && len(out) != 0 {
			log.InfoLog.Printf("[%s]: log %s with text %q received", a.label(), tag, text)
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("adb: log %s with text %q not received after %s", tag, text, timeout)
		}
		time.Sleep(poll)
	}
}

// Root restarts adbd as root and verifies the switch took effect.
func (a *Adb) Root(opts WaitOptions) error {
	return a.changeRootPermissions(true, opts)
}

// Unroot restarts adbd as the shell user and verifies the switch took
// effect.
func (a *Adb) Unroot(opts WaitOptions) error {
	return a.changeRootPermissions(false, opts)
}

func (a *Adb) changeRootPermissions(root bool, opts WaitOptions) error {
	wantUser, command := "shell", "unroot"
	if root {
		wantUser, command = "root", "root"
	}
	timeout, poll := opts.orDefaults(10*time.Second, time.Second)
	log.InfoLog.Printf("[%s]: restarting adb in %s user mode", a.label(), wantUser)

	state, err := a.GetState()
	if err != nil {
		return err
	}
	if user, err := a.Shell("whoami", RunOptions{}); err == nil && strings.TrimSpace(user) == wantUser {
		log.InfoLog.Printf("[%s]: already running as %s", a.label(), wantUser)
		return nil
	}

	if _, err := a.CheckOutput(command, RunOptions{NoAssert: true}); err != nil {
		return err
	}
	// Give adbd a moment to drop off the bus before waiting for it.
	time.Sleep(250 * time.Millisecond)
	if err := a.WaitForState(state, WaitOptions{Timeout: timeout, PollInterval: poll}); err != nil {
		return err
	}

	const retries = 3
	for attempt := 1; attempt <= retries; attempt++ {
		user, err := a.Shell("whoami", RunOptions{})
		if err == nil {
			if got := strings.TrimSpace(user); got != wantUser {
				return fmt.Errorf("adb: switching to %s user failed: got %s instead", wantUser, got)
			}
			return nil
		}
		log.WarningLog.Printf("[%s]: user verification attempt %d failed: %v", a.label(), attempt, err)
		time.Sleep(poll)
	}
	return fmt.Errorf("adb: switching to %s user failed", wantUser)
}

// KillServer stops the host adb server.
func (a *Adb) KillServer(quiet bool) error {
	_, err := a.CheckOutput("kill-server", RunOptions{Quiet: quiet})
	return err
}

// StartServer starts the host adb server, retrying once after a short
// delay to ride out "connection reset by peer" failures.
func (a *Adb) StartServer(quiet bool) error {
	if _, err := a.CheckOutput("start-server", RunOptions{Quiet: quiet}); err == nil {
		return nil
	}
	time.Sleep(2 * time.Second)
	_, err := a.CheckOutput("start-server", RunOptions{Quiet: quiet})
	return err
}

// RestartServer kills the adb server, waits for its listening port to
// be released and starts it again.
func (a *Adb) RestartServer(quiet bool) error {
	if err := a.KillServer(quiet); err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		out, err := cmd.ExecuteWith(a.exec, []string{"ss", "-tl"}, cmd.Options{Quiet: true})
		if err != nil || !strings.Contains(out, adbServerAddress) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return a.StartServer(quiet)
}

// PushOptions controls Push.
type PushOptions struct {
	// CreateDestDir creates the destination directory first, so a single
	// pushed file is not renamed to the directory name.
	CreateDestDir bool
	// Sync runs "sync" on the device after all pushes finished.
	Sync bool
	// Timeout bounds each individual push. Zero means one minute.
	Timeout time.Duration
}

// Push copies local files or directories to the device. The local path
// may contain environment variables, a leading ~ and glob patterns.
func (a *Adb) Push(localPath, devicePath string, opts PushOptions) error {
	resolved := os.ExpandEnv(localPath)
	// Only a bare ~ or a ~/ prefix means the current home. ~user paths
	// are left alone.
	if resolved == "~" || strings.HasPrefix(resolved, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			resolved = filepath.Join(home, resolved[1:])
		}
	}
	matches, err := filepath.Glob(resolved)
	if err != nil {
		return fmt.Errorf("adb: bad push pattern %q: %w", localPath, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("adb: no files found to be pushed: %s", localPath)
	}

	if opts.CreateDestDir {
		if _, err := a.Shell("mkdir -p "+devicePath, RunOptions{}); err != nil {
			return err
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	for _, m := range matches {
		log.InfoLog.Printf("[%s]: pushing %s to %s", a.label(), m, devicePath)
		if _, err := a.CheckOutput(fmt.Sprintf("push %s %s", m, devicePath), RunOptions{Timeout: timeout}); err != nil {
			return err
		}
	}
	if opts.Sync {
		if _, err := a.Shell("sync", RunOptions{Timeout: time.Minute}); err != nil {
			return err
		}
	}
	return nil
}

// Pull copies files or directories from the device to the host.
func (a *Adb) Pull(devicePath, localPath string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Minute
	}
	log.InfoLog.Printf("[%s]: pulling %s to %s", a.label(), devicePath, localPath)
	_, err := a.CheckOutput(fmt.Sprintf("pull %s %s", devicePath, localPath), RunOptions{Timeout: timeout})
	return err
}

// Screencap takes a screenshot and stores it at destFile on the host.
// A directory destination gets the generated file name.
func (a *Adb) Screencap(destFile string) error {
	tmp := fmt.Sprintf("/sdcard/screenshot-%d.png", time.Now().Unix())
	if info, err := os.Stat(destFile); err == nil && info.IsDir() {
		destFile = filepath.Join(destFile, filepath.Base(tmp))
	}
	if _, err := a.Shell("screencap -p "+tmp, RunOptions{}); err != nil {
		return err
	}
	if err := a.Pull(tmp, destFile, 0); err != nil {
		return err
	}
	_, err := a.Shell("rm "+tmp, RunOptions{})
	return err
}

// BootID reads the kernel boot id, which changes on every reboot.
func (a *Adb) BootID(quiet bool) (string, error) {
	out, err := a.Shell("cat "+kernelBootIDPath, RunOptions{Quiet: quiet})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// TriggerReboot requests a reboot, optionally into a specific mode such
// as recovery or fastboot, without waiting for it to finish.
func (a *Adb) TriggerReboot(mode string) error {
	log.InfoLog.Printf("[%s]: triggering reboot over adb", a.label())
	command := "reboot"
	if mode != "" {
		command += " " + mode
	}
	_, err := a.CheckOutput(command, RunOptions{})
	return err
}

// RebootAndWait reboots the device and waits until the kernel boot id
// changes, which proves a real restart rather than a flaky adb session.
func (a *Adb) RebootAndWait(mode string, opts WaitOptions) error {
	timeout, poll := opts.orDefaults(2*time.Minute, time.Second)
	initial, err := a.BootID(false)
	if err != nil {
		return err
	}
	if err := a.TriggerReboot(mode); err != nil {
		return err
	}
	log.InfoLog.Printf("[%s]: waiting for new boot id (timeout %s)", a.label(), timeout)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		time.Sleep(poll)
		id, err := a.BootID(true)
		if err != nil {
			lastErr = err
			continue
		}
		if id != initial {
			log.InfoLog.Printf("[%s]: kernel boot id changed to %s, reboot completed", a.label(), id)
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("adb: failed to restart device: %w", lastErr)
	}
	return fmt.Errorf("adb: boot id unchanged after %s", timeout)
}

func (a *Adb) label() string {
	if a.deviceID == "" {
		return "ADB_DEVICE"
	}
	return a.deviceID
}
