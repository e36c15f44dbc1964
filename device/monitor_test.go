package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hilcomm/adb"
	"hilcomm/cmd/cmdtest"
)

func TestADBMonitorTracksState(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	a, err := adb.NewWith("SER123", nil, e)
	require.NoError(t, err)
	e.Respond("adb -s SER123 get-state", cmdtest.Response{Output: "device\n"})

	m := newADBMonitor(a, 20*time.Millisecond)
	defer m.Stop()
	require.Equal(t, adb.StateDevice, m.State())

	e.Respond("adb -s SER123 get-state", cmdtest.Response{Output: "error: device offline\n"})
	require.NoError(t, m.WaitFor(adb.StateOffline, time.Second))

	e.Respond("adb -s SER123 get-state", cmdtest.Response{Output: "device\n"})
	require.NoError(t, m.WaitFor(adb.StateDevice, time.Second))
}

func TestADBMonitorWaitTimeout(t *testing.T) {
	e := cmdtest.NewFakeExecutor()
	a, err := adb.NewWith("SER123", nil, e)
	require.NoError(t, err)
	e.Respond("adb -s SER123 get-state", cmdtest.Response{Output: "device\n"})

	m := newADBMonitor(a, 20*time.Millisecond)
	defer m.Stop()

	err = m.WaitFor(adb.StateRecovery, 100*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), `last seen "device"`)
}
