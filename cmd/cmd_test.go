package cmd

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hilcomm/cmd/cmdtest"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{"plain", "adb devices", []string{"adb", "devices"}, false},
		{"quoted", `echo "hello world"`, []string{"echo", "hello world"}, false},
		{"single quotes", `grep 'a b'`, []string{"grep", "a b"}, false},
		{"empty", "", nil, true},
		{"unterminated quote", `echo "oops`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, err := Split(tt.command)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, argv)
		})
	}
}

func TestExecuteWithSuccess(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("echo hi", cmdtest.Response{Output: "hi\n"})

	out, err := ExecuteWith(e, []string{"echo", "hi"}, Options{})
	require.NoError(t, err)
	require.Equal(t, "hi\n", out)
}

func TestExecuteWithNonzeroExit(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("false", cmdtest.Response{Output: "bad\n", ExitCode: 1})

	_, err := ExecuteWith(e, []string{"false"}, Options{})
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, 1, failed.ExitCode)
	require.Equal(t, "bad\n", failed.Output)
}

func TestExecuteWithNoAssert(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("false", cmdtest.Response{Output: "bad\n", ExitCode: 1})

	out, err := ExecuteWith(e, []string{"false"}, Options{NoAssert: true})
	require.NoError(t, err)
	require.Equal(t, "bad\n", out)
}

func TestExecuteWithValidExitCodes(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("lsof -t /dev/ttyUSB0", cmdtest.Response{ExitCode: 1})

	_, err := ExecuteWith(e, []string{"lsof", "-t", "/dev/ttyUSB0"}, Options{ValidExitCodes: []int{0, 1}})
	require.NoError(t, err)

	e.Respond("lsof -t /dev/ttyUSB0", cmdtest.Response{ExitCode: 2})
	_, err = ExecuteWith(e, []string{"lsof", "-t", "/dev/ttyUSB0"}, Options{ValidExitCodes: []int{0, 1}})
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed)
}

func TestExecuteWithRegrep(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("dmesg", cmdtest.Response{Output: "usb 1-1: connected\nrandom: init done\nusb 1-2: reset\n"})

	out, err := ExecuteWith(e, []string{"dmesg"}, Options{Regrep: regexp.MustCompile(`^usb`)})
	require.NoError(t, err)
	require.Equal(t, "usb 1-1: connected\nusb 1-2: reset", out)
}

func TestExecuteWithPattern(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("adb shell getprop", cmdtest.Response{Output: "[ro.serialno]: [SER123]\n"})

	out, err := ExecuteWith(e, []string{"adb", "shell", "getprop"}, Options{
		Pattern: regexp.MustCompile(`SER\d+`),
	})
	require.NoError(t, err)
	require.Equal(t, "SER123", out)
}

func TestExecuteWithPatternNotFound(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("adb shell getprop", cmdtest.Response{Output: "nothing here\n"})

	_, err := ExecuteWith(e, []string{"adb", "shell", "getprop"}, Options{
		Pattern: regexp.MustCompile(`SER\d+`),
	})
	var notFound *PatternNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestExecuteTimeout(t *testing.T) {
	out, err := Execute([]string{"sleep", "5"}, Options{Timeout: 100 * time.Millisecond})
	require.Empty(t, out)
	var expired *TimeoutExpiredError
	require.ErrorAs(t, err, &expired)
}

func TestExecuteWithExecError(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.Respond("adb devices", cmdtest.Response{Err: errors.New("executable not found")})

	_, err := ExecuteWith(e, []string{"adb", "devices"}, Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "executable not found")
}

func TestRealExecutor(t *testing.T) {
	out, err := Execute([]string{"echo", "hello"}, Options{})
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)
}

func TestFakeExecutorQueue(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	e.RespondQueue("adb get-state",
		cmdtest.Response{Output: "offline\n"},
		cmdtest.Response{Output: "device\n"})
	e.Respond("adb get-state", cmdtest.Response{Output: "static\n"})

	for _, want := range []string{"offline\n", "device\n", "static\n", "static\n"} {
		out, err := ExecuteWith(e, []string{"adb", "get-state"}, Options{})
		require.NoError(t, err)
		require.Equal(t, want, out)
	}
}
