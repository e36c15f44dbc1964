// Package device assembles the transports of one device under test
// from its configuration: adb, fastboot, serial consoles per role and a
// lazy SSH connection to the QNX side.
package device

import (
	"fmt"

	"hilcomm/adb"
	"hilcomm/config"
	"hilcomm/console"
	"hilcomm/fastboot"
	"hilcomm/sshconn"
)

// ResourceUnavailableError means the configuration does not describe
// the requested transport for this device type.
type ResourceUnavailableError struct {
	Resource string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("%s not available, is the device type correct in the configuration file?", e.Resource)
}

// Factory builds transports from a loaded configuration.
type Factory struct {
	Config *config.Config
}

// NewFactory loads the device configuration (path may be empty to use
// the discovery order) and returns a factory over it.
func NewFactory(path string) (*Factory, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return &Factory{Config: cfg}, nil
}

// CreateAdb builds the adb client for the configured device id.
func (f *Factory) CreateAdb() (*adb.Adb, error) {
	id, err := f.Config.ADBDeviceID()
	if err != nil {
		return nil, err
	}
	return adb.New(id), nil
}

// CreateFastboot builds the fastboot client. The fastboot id falls back
// to the adb id when not configured separately.
func (f *Factory) CreateFastboot() (*fastboot.Fastboot, error) {
	id, err := f.Config.FastbootDeviceID()
	if err != nil {
		return nil, err
	}
	return fastboot.New(id), nil
}

// CreateSerial opens the serial console for one role.
func (f *Factory) CreateSerial(role config.SerialRole) (*console.Session, error) {
	path, err := f.Config.SerialDevicePath(role)
	if err != nil {
		return nil, &ResourceUnavailableError{Resource: fmt.Sprintf("%s serial", role)}
	}
	return console.OpenSerial(path, string(role), f.Config.SerialPrompt(role))
}

// CreateSerialConsoles opens a console for every serial role present in
// the configuration. Already opened consoles are closed when a later
// one fails, so the caller never holds half a set.
func (f *Factory) CreateSerialConsoles() (map[config.SerialRole]*console.Session, error) {
	consoles := make(map[config.SerialRole]*console.Session)
	for _, role := range f.Config.AvailableSerialRoles() {
		session, err := f.CreateSerial(role)
		if err != nil {
			for _, s := range consoles {
				_ = s.Close()
			}
			return nil, err
		}
		consoles[role] = session
	}
	return consoles, nil
}

// CreateQNXSSH builds the SSH connection to the QNX partition. No
// network traffic happens until the first use.
func (f *Factory) CreateQNXSSH() (*sshconn.Connection, error) {
	ip, err := f.Config.QNXIP()
	if err != nil {
		return nil, &ResourceUnavailableError{Resource: "QNX SSH"}
	}
	return sshconn.New(ip, f.Config.QNXPort(), "root", ""), nil
}
