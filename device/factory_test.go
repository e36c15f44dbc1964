package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hilcomm/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(config.ConfigEnvVar, path)
	return path
}

func TestCreateAdbFromConfig(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	a, err := f.CreateAdb()
	require.NoError(t, err)
	require.Equal(t, "SER123", a.DeviceID())
}

func TestCreateFastbootFallsBackToADBID(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	fb, err := f.CreateFastboot()
	require.NoError(t, err)
	require.Equal(t, "SER123", fb.DeviceID())
}

func TestCreateFastbootExplicitID(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"},
		"FASTBOOT": {"fastboot_device_id": "FB999"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	fb, err := f.CreateFastboot()
	require.NoError(t, err)
	require.Equal(t, "FB999", fb.DeviceID())
}

func TestCreateQNXSSH(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"},
		"QNX": {"ip": "192.168.1.77", "port": "2222"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	ssh, err := f.CreateQNXSSH()
	require.NoError(t, err)
	require.Equal(t, "192.168.1.77:2222", ssh.Addr())
}

func TestCreateQNXSSHUnconfigured(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	_, err = f.CreateQNXSSH()
	var unavailable *ResourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestCreateSerialUnconfiguredRole(t *testing.T) {
	writeConfig(t, `{
		"DEVICE": "IHU",
		"ADB": {"adb_device_id": "SER123"}
	}`)

	f, err := NewFactory("")
	require.NoError(t, err)

	_, err = f.CreateSerial(config.SerialQNX)
	var unavailable *ResourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Contains(t, err.Error(), "QNX serial")
}
