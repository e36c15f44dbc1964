package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"DEVICE": "IHU",
	"version": "2",
	"ADB": {"adb_device_id": "SER123"},
	"QNX": {
		"ip": "192.168.1.77",
		"tty": "/dev/ttyUSB0",
		"prompt": ["qnx> ", "# "]
	},
	"SupportCPU": {
		"tty": "/dev/ttyUSB1",
		"prompt": "vip> "
	},
	"EXTRA_DEVICES": [
		{"ADB_DEVICE_ID": "EXTRA1", "PRODUCT_NAME": "tablet", "TYPE": "companion"}
	]
}`

func loadSample(t *testing.T) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv(ConfigEnvVar, path)
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoadFromEnvVar(t *testing.T) {
	cfg := loadSample(t)
	name, err := cfg.DeviceName()
	require.NoError(t, err)
	require.Equal(t, "IHU", name)
}

func TestLoadFromEnvVarDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(sampleConfig), 0o600))
	t.Setenv(ConfigEnvVar, dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ConfigFileName), cfg.Path())
}

func TestLoadExplicitPathBeatsCWD(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, cfg.Path())
}

func TestLoadNotFound(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")
	t.Setenv("HOME", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))
	t.Setenv(ConfigEnvVar, path)

	_, err := Load("")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDottedPathLookups(t *testing.T) {
	cfg := loadSample(t)

	require.True(t, cfg.Has("QNX.ip"))
	require.False(t, cfg.Has("QNX.missing"))
	require.False(t, cfg.Has("QNX.ip.deeper"))

	ip, err := cfg.GetString("QNX.ip")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.77", ip)

	_, err = cfg.GetString("EXTRA_DEVICES")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)

	require.Equal(t, "fallback", cfg.GetStringDefault("NOPE.nope", "fallback"))
}

func TestTypedGetters(t *testing.T) {
	cfg := loadSample(t)

	id, err := cfg.ADBDeviceID()
	require.NoError(t, err)
	require.Equal(t, "SER123", id)

	fbID, err := cfg.FastbootDeviceID()
	require.NoError(t, err)
	require.Equal(t, "SER123", fbID)

	tty, err := cfg.SerialDevicePath(SerialQNX)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", tty)

	ip, err := cfg.QNXIP()
	require.NoError(t, err)
	require.Equal(t, "192.168.1.77", ip)
	require.Equal(t, "22", cfg.QNXPort())

	require.Equal(t, "2", cfg.Version())
}

func TestSerialPrompt(t *testing.T) {
	cfg := loadSample(t)

	require.Equal(t, []string{"qnx> ", "# "}, cfg.SerialPrompt(SerialQNX))
	require.Equal(t, []string{"vip> "}, cfg.SerialPrompt(SerialSupportCPU))
	require.Nil(t, cfg.SerialPrompt(SerialRole("NOPE")))
}

func TestAvailableSerialRoles(t *testing.T) {
	cfg := loadSample(t)
	require.Equal(t, []SerialRole{SerialQNX, SerialSupportCPU}, cfg.AvailableSerialRoles())
}

func TestExtraDevices(t *testing.T) {
	cfg := loadSample(t)

	devices, err := cfg.ExtraDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, ExtraDevice{
		ADBDeviceID: "EXTRA1",
		ProductName: "tablet",
		Type:        "companion",
	}, devices[0])
}
