// Package sshconn maintains an SSH connection to the device's POSIX
// side (typically the QNX partition): remote command execution with an
// exit status timeout and sftp file transfer. Host keys are ignored on
// purpose since they change whenever the device is reflashed.
package sshconn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"hilcomm/log"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultRetryDelay     = 2 * time.Second
	defaultTCPTimeout     = 5 * time.Second
	defaultExecTimeout    = 10 * time.Second
	keepaliveInterval     = 5 * time.Second
)

// Connection is a lazily connected SSH client for one device address.
// Connect retries until the device is reachable, so it can be called
// right after a reboot was triggered.
type Connection struct {
	addr     string
	username string
	password string

	mu        sync.Mutex
	client    *ssh.Client
	keepalive chan struct{}
}

// New builds a connection to ip:port. No network traffic happens until
// Connect or the first Run.
func New(ip, port, username, password string) *Connection {
	if port == "" {
		port = "22"
	}
	if username == "" {
		username = "root"
	}
	return &Connection{
		addr:     net.JoinHostPort(ip, port),
		username: username,
		password: password,
	}
}

// Addr returns the target address.
func (c *Connection) Addr() string {
	return c.addr
}

// ConnectOptions controls Connect. Zero values pick the defaults.
type ConnectOptions struct {
	// Timeout bounds the whole retry loop.
	Timeout time.Duration
	// RetryDelay is the pause between connection attempts.
	RetryDelay time.Duration
	// TCPTimeout bounds a single dial.
	TCPTimeout time.Duration
}

// Connect dials the device, retrying failed attempts until the timeout
// expires. A connected client is left alone. On success a keepalive
// loop pings the server so half-dead links are detected early.
func (c *Connection) Connect(opts ConnectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	tcpTimeout := opts.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = defaultTCPTimeout
	}

	config := &ssh.ClientConfig{
		User:            c.username,
		Auth:            []ssh.AuthMethod{ssh.Password(c.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         tcpTimeout,
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		client, err := ssh.Dial("tcp", c.addr, config)
		if err == nil {
			c.client = client
			c.keepalive = make(chan struct{})
			go c.keepaliveLoop(client, c.keepalive)
			log.InfoLog.Printf("[%s]: ssh connected", c.addr)
			return nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			return &ConnectionError{Addr: c.addr, Err: lastErr}
		}
		time.Sleep(retryDelay)
	}
}

func (c *Connection) keepaliveLoop(client *ssh.Client, stop chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.WarningLog.Printf("[%s]: ssh keepalive failed: %v", c.addr, err)
				return
			}
		}
	}
}

// Connected reports whether a client is currently established.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// Disconnect closes the client if one is established.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Connection) disconnectLocked() {
	if c.client == nil {
		return
	}
	close(c.keepalive)
	_ = c.client.Close()
	c.client = nil
}

// Close disconnects. It implements io.Closer for the device facade.
func (c *Connection) Close() error {
	c.Disconnect()
	return nil
}

// RunOptions controls Run. The zero value asserts a zero exit status
// and applies the 10s execution timeout.
type RunOptions struct {
	// NoAssert disables the exit status check.
	NoAssert bool
	// Timeout bounds waiting for the exit status. Zero means the 10s
	// default, negative means no timeout.
	Timeout time.Duration
	// Tries is the number of attempts, reconnecting between them.
	// Zero means one.
	Tries int
	// ConnectTimeout bounds the connect retry loop per attempt.
	ConnectTimeout time.Duration
}

// Result carries the output of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes a command on the device and waits for its exit status.
// A command that produces no exit status within the timeout fails with
// a TimeoutReachedError; a nonzero status fails with a
// CommandFailedError unless opts.NoAssert is set.
func (c *Connection) Run(command string, opts RunOptions) (Result, error) {
	tries := opts.Tries
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		if err := c.Connect(ConnectOptions{Timeout: opts.ConnectTimeout}); err != nil {
			lastErr = err
			continue
		}
		res, err := c.run(command, opts)
		if err == nil {
			return res, nil
		}
		log.Debug("[%s]: command %q failed: %v", c.addr, command, err)
		lastErr = err
		// Leave command-level failures alone, only a broken channel
		// warrants a reconnect.
		var failed *CommandFailedError
		var timedOut *TimeoutReachedError
		if !errors.As(err, &failed) && !errors.As(err, &timedOut) {
			c.Disconnect()
			continue
		}
		return res, err
	}
	return Result{}, lastErr
}

func (c *Connection) run(command string, opts RunOptions) (Result, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return Result{}, &ConnectionError{Addr: c.addr, Err: fmt.Errorf("not connected")}
	}

	session, err := client.NewSession()
	if err != nil {
		return Result{}, &ConnectionError{Addr: c.addr, Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Start(command); err != nil {
		return Result{}, &ConnectionError{Addr: c.addr, Err: err}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultExecTimeout
	}
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			if opts.NoAssert {
				return res, nil
			}
			return res, &CommandFailedError{
				Command:  command,
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
			}
		}
		return res, &ConnectionError{Addr: c.addr, Err: err}
	case <-timer:
		return Result{Stdout: stdout.String(), Stderr: stderr.String()},
			&TimeoutReachedError{Command: command, Stdout: stdout.String(), Stderr: stderr.String()}
	}
}

func (c *Connection) sftpClient() (*sftp.Client, error) {
	if err := c.Connect(ConnectOptions{TCPTimeout: 10 * time.Second}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return sftp.NewClient(client)
}

// Get downloads a remote file to localPath.
func (c *Connection) Get(remotePath, localPath string) error {
	client, err := c.sftpClient()
	if err != nil {
		return &TransferFailedError{Path: remotePath, Err: err}
	}
	defer client.Close()

	src, err := client.Open(remotePath)
	if err != nil {
		return &TransferFailedError{Path: remotePath, Err: err}
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return &TransferFailedError{Path: remotePath, Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &TransferFailedError{Path: remotePath, Err: err}
	}
	return nil
}

// Put uploads a local file to remotePath, which must include the file
// name. With mode zero the local file's permissions are applied.
func (c *Connection) Put(localPath, remotePath string, mode fs.FileMode) error {
	client, err := c.sftpClient()
	if err != nil {
		return &TransferFailedError{Path: localPath, Err: err}
	}
	defer client.Close()
	return putFile(client, localPath, remotePath, mode)
}

// PutAll uploads a file or a whole directory tree under remoteDir.
// Existing remote directories are merged, existing files overwritten.
func (c *Connection) PutAll(source, remoteDir string, mode fs.FileMode) error {
	info, err := os.Stat(source)
	if err != nil {
		return &TransferFailedError{Path: source, Err: err}
	}
	if !info.IsDir() {
		return c.Put(source, path.Join(remoteDir, filepath.Base(source)), mode)
	}

	client, err := c.sftpClient()
	if err != nil {
		return &TransferFailedError{Path: source, Err: err}
	}
	defer client.Close()

	destRoot := path.Join(remoteDir, filepath.Base(source))
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		dest := path.Join(destRoot, filepath.ToSlash(rel))
		if d.IsDir() {
			if _, err := client.Lstat(dest); err != nil {
				log.Debug("[%s]: make remote dir %s", c.addr, dest)
				if err := client.Mkdir(dest); err != nil {
					return err
				}
			}
			return chmodAs(client, dest, p, mode)
		}
		return putFile(client, p, dest, mode)
	})
	if err != nil {
		return &TransferFailedError{Path: source, Err: err}
	}
	return nil
}

func putFile(client *sftp.Client, localPath, remotePath string, mode fs.FileMode) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &TransferFailedError{Path: localPath, Err: err}
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return &TransferFailedError{Path: localPath, Err: err}
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return &TransferFailedError{Path: localPath, Err: err}
	}
	if err := dst.Close(); err != nil {
		return &TransferFailedError{Path: localPath, Err: err}
	}
	return chmodAs(client, remotePath, localPath, mode)
}

// chmodAs applies mode to the remote path, falling back to the local
// path's permissions when mode is zero.
func chmodAs(client *sftp.Client, remotePath, localPath string, mode fs.FileMode) error {
	if mode == 0 {
		info, err := os.Stat(localPath)
		if err != nil {
			return err
		}
		mode = info.Mode().Perm()
	}
	return client.Chmod(remotePath, mode)
}
