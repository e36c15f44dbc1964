// Package fastboot drives the host fastboot binary: state probing,
// partition erase and flash, and reboots out of the bootloader.
package fastboot

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"hilcomm/cmd"
	"hilcomm/log"
)

// State is the fastboot-reported device state.
type State string

const (
	// StateFastboot is the bootloader fastboot mode.
	StateFastboot State = "fastboot"
	// StateFastbootd is the userspace fastboot mode.
	StateFastbootd State = "fastbootd"
	StateNotFound  State = "not found"
)

const defaultCommandTimeout = 30 * time.Second

// Fastboot runs fastboot commands against one device. With an empty
// device id the first device seen in fastboot mode is adopted, on the
// assumption that the fastboot serial equals the adb serial.
type Fastboot struct {
	deviceID string
	exec     cmd.Executor
}

func New(deviceID string) *Fastboot {
	return NewWith(deviceID, cmd.MakeExecutor())
}

func NewWith(deviceID string, e cmd.Executor) *Fastboot {
	return &Fastboot{deviceID: deviceID, exec: e}
}

// DeviceID returns the device id, which may be empty until discovered.
func (f *Fastboot) DeviceID() string {
	return f.deviceID
}

func (f *Fastboot) SetDeviceID(id string) {
	f.deviceID = id
}

func (f *Fastboot) argv(args ...string) []string {
	out := []string{"fastboot"}
	if f.deviceID != "" {
		out = append(out, "-s", f.deviceID)
	}
	return append(out, args...)
}

// RunOptions controls CheckOutput. The zero value asserts a zero exit
// code and applies the default 30s timeout.
type RunOptions struct {
	NoAssert bool
	// Timeout bounds the command. Zero means the 30s default, negative
	// means no timeout.
	Timeout time.Duration
	Regrep  *regexp.Regexp
	Quiet   bool
}

// CheckOutput runs a fastboot subcommand given as a shell-quoted string
// and returns its combined output.
func (f *Fastboot) CheckOutput(command string, opts RunOptions) (string, error) {
	args, err := cmd.Split(command)
	if err != nil {
		return "", err
	}
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = defaultCommandTimeout
	case timeout < 0:
		timeout = 0
	}
	return cmd.ExecuteWith(f.exec, f.argv(args...), cmd.Options{
		NoAssert: opts.NoAssert,
		Timeout:  timeout,
		Regrep:   opts.Regrep,
		Quiet:    opts.Quiet,
	})
}

// GetState probes "fastboot devices" for the device mode. A device in
// normal Android boot does not show up at all and reports StateNotFound.
func (f *Fastboot) GetState() (State, error) {
	out, err := f.CheckOutput("devices", RunOptions{Timeout: 5 * time.Second, NoAssert: true, Quiet: true})
	if err != nil {
		return StateNotFound, err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, mode := fields[0], fields[1]
		if f.deviceID != "" {
			if id != f.deviceID {
				continue
			}
			return parseState(mode)
		}
		if strings.Contains(mode, "fastboot") {
			f.deviceID = id
			log.InfoLog.Printf("[%s]: adopted fastboot device id", id)
			return parseState(mode)
		}
	}
	return StateNotFound, nil
}

func parseState(s string) (State, error) {
	switch State(s) {
	case StateFastboot, StateFastbootd:
		return State(s), nil
	}
	return StateNotFound, fmt.Errorf("fastboot: unknown device state %q", s)
}

// Reboot leaves fastboot mode. An empty target boots into Android;
// other targets such as "fastboot" or "recovery" are passed through.
func (f *Fastboot) Reboot(target string) error {
	command := "reboot"
	if target != "" {
		command += " " + target
	}
	_, err := f.CheckOutput(command, RunOptions{})
	return err
}

// Erase wipes a partition.
func (f *Fastboot) Erase(partition string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log.InfoLog.Printf("[%s]: erasing partition %s", f.deviceID, partition)
	_, err := f.CheckOutput("erase "+partition, RunOptions{Timeout: timeout})
	return err
}

// Flash writes an image to a partition.
func (f *Fastboot) Flash(partition, image string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Minute
	}
	log.InfoLog.Printf("[%s]: flashing %s to partition %s", f.deviceID, image, partition)
	_, err := f.CheckOutput(fmt.Sprintf("flash %s %s", partition, image), RunOptions{Timeout: timeout})
	return err
}
