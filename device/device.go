package device

import (
	"fmt"
	"sync"

	"hilcomm/adb"
	"hilcomm/config"
	"hilcomm/console"
	"hilcomm/fastboot"
	"hilcomm/log"
	"hilcomm/sshconn"
)

// Device aggregates every transport of one device under test. Build it
// with New and release everything with Close.
type Device struct {
	Config   *config.Config
	Adb      *adb.Adb
	Fastboot *fastboot.Fastboot
	Consoles map[config.SerialRole]*console.Session
	LogDir   *log.Dir

	factory *Factory

	sshMu  sync.Mutex
	ssh    *sshconn.Connection
	sshErr error
}

// New assembles a device from the configuration found at path (empty
// for the discovery order). Serial consoles open immediately; the SSH
// connection is created lazily on first use. logSuffix names the test
// run log directory.
func New(path, logSuffix string) (*Device, error) {
	factory, err := NewFactory(path)
	if err != nil {
		return nil, err
	}

	a, err := factory.CreateAdb()
	if err != nil {
		return nil, err
	}
	fb, err := factory.CreateFastboot()
	if err != nil {
		return nil, err
	}
	consoles, err := factory.CreateSerialConsoles()
	if err != nil {
		return nil, err
	}
	dir, err := log.NewDir(logSuffix)
	if err != nil {
		for _, s := range consoles {
			_ = s.Close()
		}
		return nil, err
	}
	for role, session := range consoles {
		if err := session.SetLogFile(dir.File(fmt.Sprintf("serial_%s.log", role))); err != nil {
			log.WarningLog.Printf("failed to set %s console log file: %v", role, err)
		}
	}

	return &Device{
		Config:   factory.Config,
		Adb:      a,
		Fastboot: fb,
		Consoles: consoles,
		LogDir:   dir,
		factory:  factory,
	}, nil
}

// Type returns the configured device type name.
func (d *Device) Type() (string, error) {
	return d.Config.DeviceName()
}

// Console returns the console for a serial role.
func (d *Device) Console(role config.SerialRole) (*console.Session, error) {
	s, ok := d.Consoles[role]
	if !ok {
		return nil, &ResourceUnavailableError{Resource: fmt.Sprintf("%s serial", role)}
	}
	return s, nil
}

// SSH returns the connection to the QNX partition, creating it on first
// use. The creation result is cached either way.
func (d *Device) SSH() (*sshconn.Connection, error) {
	d.sshMu.Lock()
	defer d.sshMu.Unlock()
	if d.ssh == nil && d.sshErr == nil {
		d.ssh, d.sshErr = d.factory.CreateQNXSSH()
	}
	return d.ssh, d.sshErr
}

// Close releases the consoles and the SSH connection. The first error
// wins but everything is attempted.
func (d *Device) Close() error {
	var first error
	for role, s := range d.Consoles {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s console: %w", role, err)
		}
	}
	d.sshMu.Lock()
	if d.ssh != nil {
		d.ssh.Disconnect()
	}
	d.sshMu.Unlock()
	return first
}
