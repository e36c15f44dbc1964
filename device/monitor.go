package device

import (
	"fmt"
	"sync"
	"time"

	"hilcomm/adb"
	"hilcomm/log"
	"hilcomm/sshconn"
)

const monitorInterval = 2 * time.Second

// ADBMonitor polls the adb device state in the background. It is used
// around reboots and flashing to wait for the device to drop off and
// come back without blocking the caller's own adb traffic.
type ADBMonitor struct {
	adb      *adb.Adb
	interval time.Duration

	mu   sync.Mutex
	last adb.State

	stop chan struct{}
	done chan struct{}
}

// NewADBMonitor starts a monitor over the given adb client. The initial
// state is queried synchronously.
func NewADBMonitor(a *adb.Adb) *ADBMonitor {
	return newADBMonitor(a, monitorInterval)
}

func newADBMonitor(a *adb.Adb, interval time.Duration) *ADBMonitor {
	m := &ADBMonitor{
		adb:      a,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if state, err := a.GetState(); err == nil {
		m.last = state
	} else {
		m.last = adb.StateNotFound
	}
	log.InfoLog.Printf("starting adb state monitor")
	go m.run()
	return m
}

func (m *ADBMonitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			state, err := m.adb.GetState()
			if err != nil {
				continue
			}
			m.mu.Lock()
			prev := m.last
			m.last = state
			m.mu.Unlock()
			if state != prev {
				log.InfoLog.Printf("adb state changed: %s -> %s", prev, state)
			}
		}
	}
}

// State returns the most recently observed device state.
func (m *ADBMonitor) State() adb.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// WaitFor blocks until the monitor observes the wanted state.
func (m *ADBMonitor) WaitFor(want adb.State, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if m.State() == want {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("adb state %q not reached within %s, last seen %q", want, timeout, m.State())
		}
		time.Sleep(m.interval / 4)
	}
}

// Stop ends the polling loop.
func (m *ADBMonitor) Stop() {
	log.InfoLog.Printf("closing adb state monitor")
	close(m.stop)
	<-m.done
}

// SSHMonitor polls an SSH connection and reconnects it when it drops,
// so a flashed or rebooted device is picked up again as soon as its
// sshd is back.
type SSHMonitor struct {
	conn     *sshconn.Connection
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewSSHMonitor starts a monitor over the connection. The first connect
// happens synchronously so callers know the link was alive once.
func NewSSHMonitor(c *sshconn.Connection) (*SSHMonitor, error) {
	return newSSHMonitor(c, monitorInterval)
}

func newSSHMonitor(c *sshconn.Connection, interval time.Duration) (*SSHMonitor, error) {
	if err := c.Connect(sshconn.ConnectOptions{}); err != nil {
		return nil, err
	}
	m := &SSHMonitor{
		conn:     c,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	log.InfoLog.Printf("starting ssh state monitor for %s", c.Addr())
	go m.run()
	return m, nil
}

func (m *SSHMonitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if !m.conn.Connected() {
				log.InfoLog.Printf("ssh connection to %s down, reconnecting", m.conn.Addr())
				_ = m.conn.Connect(sshconn.ConnectOptions{Timeout: m.interval})
			}
		}
	}
}

// Connected reports whether the link is currently up, reconnecting
// first if it is not.
func (m *SSHMonitor) Connected() bool {
	if !m.conn.Connected() {
		_ = m.conn.Connect(sshconn.ConnectOptions{Timeout: m.interval})
	}
	return m.conn.Connected()
}

// Stop ends the polling loop without closing the connection.
func (m *SSHMonitor) Stop() {
	log.InfoLog.Printf("closing ssh state monitor")
	close(m.stop)
	<-m.done
}
