// Package config loads the on-disk device configuration describing which
// transports exist for the attached device and their addresses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hilcomm/log"
)

const (
	// ConfigEnvVar points at the config file or a directory containing it.
	ConfigEnvVar = "DEVICE_CONFIG_FILE"
	// ConfigFileName is the default file name searched for.
	ConfigFileName = "device_config.json"
)

// SerialRole names one serial link of the device under test.
type SerialRole string

const (
	SerialQNX        SerialRole = "QNX"
	SerialSupportCPU SerialRole = "SupportCPU"
)

// ParseError reports a missing or malformed configuration entry.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string {
	return e.msg
}

func parseErrorf(format string, v ...interface{}) *ParseError {
	return &ParseError{msg: fmt.Sprintf(format, v...)}
}

// Config holds the parsed device configuration document.
type Config struct {
	data map[string]interface{}
	path string
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Load finds and parses the device configuration. The file is searched
// in a fixed order:
//
//  1. path from the DEVICE_CONFIG_FILE environment variable (file or directory)
//  2. the explicit path argument (file or directory)
//  3. device_config.json in the current working directory
//  4. device_config.json in the user's home directory
func Load(path string) (*Config, error) {
	file := fileFromEnv()
	if file == "" {
		file = fileFromPath(path)
	}
	if file == "" {
		file = fileFromDir(".")
	}
	if file == "" {
		if home, err := os.UserHomeDir(); err == nil {
			file = fileFromDir(home)
		}
	}
	if file == "" {
		return nil, parseErrorf(
			"%s not found: export %s or put the file in CWD or HOME", ConfigFileName, ConfigEnvVar)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", file, err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, parseErrorf("failed to parse config %s: %v", file, err)
	}
	log.InfoLog.Printf("loaded device config from %s", file)
	return &Config{data: data, path: file}, nil
}

func fileFromEnv() string {
	v := os.Getenv(ConfigEnvVar)
	if v == "" {
		return ""
	}
	log.Debug("trying config file from env var %s", ConfigEnvVar)
	return fileFromPath(v)
}

func fileFromPath(path string) string {
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return fileFromDir(path)
	}
	return path
}

func fileFromDir(dir string) string {
	file := filepath.Join(dir, ConfigFileName)
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		return file
	}
	return ""
}

// Has reports whether a dotted-path entry exists.
func (c *Config) Has(dotted string) bool {
	_, err := c.Get(dotted)
	return err == nil
}

// Get returns the value at a dotted path like "QNX.ip".
func (c *Config) Get(dotted string) (interface{}, error) {
	var cur interface{} = c.data
	for _, key := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, parseErrorf("config entry %q not found in %s", dotted, c.path)
		}
		cur, ok = m[key]
		if !ok {
			return nil, parseErrorf("config entry %q not found in %s", dotted, c.path)
		}
	}
	return cur, nil
}

// GetString returns the string value at a dotted path.
func (c *Config) GetString(dotted string) (string, error) {
	v, err := c.Get(dotted)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", parseErrorf("config entry %q is not a string", dotted)
	}
	return s, nil
}

// GetStringDefault returns the string value at a dotted path, or def
// when the entry is absent.
func (c *Config) GetStringDefault(dotted, def string) string {
	s, err := c.GetString(dotted)
	if err != nil {
		return def
	}
	return s
}

// DeviceName returns the configured device type name.
func (c *Config) DeviceName() (string, error) {
	return c.GetString("DEVICE")
}

// ADBDeviceID returns the serial number of the ADB device.
func (c *Config) ADBDeviceID() (string, error) {
	return c.GetString("ADB.adb_device_id")
}

// FastbootDeviceID returns the fastboot id, falling back to the ADB id
// which is the same on most units.
func (c *Config) FastbootDeviceID() (string, error) {
	if id, err := c.GetString("FASTBOOT.fastboot_device_id"); err == nil {
		return id, nil
	}
	return c.ADBDeviceID()
}

// SerialDevicePath returns the tty path of the given serial role.
func (c *Config) SerialDevicePath(role SerialRole) (string, error) {
	return c.GetString(string(role) + ".tty")
}

// SerialPrompt returns the configured prompt(s) for a serial role.
// An absent entry means no prompt is configured.
func (c *Config) SerialPrompt(role SerialRole) []string {
	v, err := c.Get(string(role) + ".prompt")
	if err != nil {
		return nil
	}
	switch p := v.(type) {
	case string:
		return []string{p}
	case []interface{}:
		var prompts []string
		for _, el := range p {
			if s, ok := el.(string); ok {
				prompts = append(prompts, s)
			}
		}
		return prompts
	}
	return nil
}

// AvailableSerialRoles lists the serial roles present in the config.
func (c *Config) AvailableSerialRoles() []SerialRole {
	var roles []SerialRole
	for _, role := range []SerialRole{SerialQNX, SerialSupportCPU} {
		if c.Has(string(role) + ".tty") {
			roles = append(roles, role)
		}
	}
	return roles
}

// QNXIP returns the ip address of the QNX host.
func (c *Config) QNXIP() (string, error) {
	return c.GetString("QNX.ip")
}

// QNXPort returns the SSH port of the QNX host, defaulting to 22.
func (c *Config) QNXPort() string {
	return c.GetStringDefault("QNX.port", "22")
}

// ExtraDevice describes an additional unit attached to the rig.
type ExtraDevice struct {
	ADBDeviceID string
	ProductName string
	Type        string
}

// ExtraDevices returns the list of extra devices, empty when none are
// configured.
func (c *Config) ExtraDevices() ([]ExtraDevice, error) {
	v, err := c.Get("EXTRA_DEVICES")
	if err != nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, parseErrorf("config entry EXTRA_DEVICES is not a list")
	}
	var devices []ExtraDevice
	for i, el := range list {
		m, ok := el.(map[string]interface{})
		if !ok {
			return nil, parseErrorf("EXTRA_DEVICES[%d] is not an object", i)
		}
		d := ExtraDevice{}
		if s, ok := m["ADB_DEVICE_ID"].(string); ok {
			d.ADBDeviceID = s
		} else {
			return nil, parseErrorf("EXTRA_DEVICES[%d] has no ADB_DEVICE_ID", i)
		}
		if s, ok := m["PRODUCT_NAME"].(string); ok {
			d.ProductName = s
		}
		if s, ok := m["TYPE"].(string); ok {
			d.Type = s
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Version returns the config schema version, defaulting to "1".
func (c *Config) Version() string {
	return c.GetStringDefault("version", "1")
}
