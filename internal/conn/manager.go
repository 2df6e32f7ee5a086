package conn

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"
)

// Manager governs the lifecycle of the single authenticated channel: reuse
// versus reconnect, teardown, remote command execution, and key-based trust
// bootstrap. Failures always leave the manager disconnected; there is no
// separate error state.
//
// The manager is meant to be driven from a single control thread (for
// example a UI event loop); long-running remote commands execute in the
// background on the transport's own goroutines. Connect, SaveKeys, and
// ExecCommandBlocking block the caller until completion or failure; no
// cancellation or timeout is offered here.
type Manager struct {
	dial Dialer

	hostname  string
	username  string
	connected bool
	id        string
	transport Transport
}

// NewManager returns a disconnected manager that authenticates through dial.
func NewManager(dial Dialer) *Manager {
	return &Manager{dial: dial}
}

// Connected reports whether an authenticated channel is live.
func (m *Manager) Connected() bool { return m.connected }

// Hostname returns the live connection's hostname, "" when disconnected.
func (m *Manager) Hostname() string { return m.hostname }

// Username returns the live connection's username, "" when disconnected.
func (m *Manager) Username() string { return m.username }

// ID returns an identifier unique to the live connection, "" when
// disconnected. Event journals use it to correlate records.
func (m *Manager) ID() string { return m.id }

// Connect establishes an authenticated channel to hostname as username.
// Exactly one of password/keyPath is normally supplied; supplying neither is
// an invalid-argument error, supplying both prefers the password.
//
// If a channel to the same (hostname, username) is already live, the call is
// a no-op and reports the reuse through its return value; any other live
// channel is torn down first. Authentication and name-resolution failures
// propagate unchanged as *AuthError and *NameResolutionError.
func (m *Manager) Connect(hostname, username, password, keyPath string) (reused bool, err error) {
	if m.connected {
		if hostname == m.hostname && username == m.username {
			slog.Info("connection already established, reusing",
				"host", hostname, "user", username)
			return true, nil
		}
		slog.Info("hostname or credential mismatch, dropping live connection",
			"old_host", m.hostname, "new_host", hostname)
	}
	m.Disconnect()

	if password == "" && keyPath == "" {
		return false, fmt.Errorf("connect: %w", ErrNoCredential)
	}

	t, err := m.dial(hostname, username, Auth{Password: password, KeyPath: keyPath})
	if err != nil {
		return false, err
	}

	m.transport = t
	m.hostname = hostname
	m.username = username
	m.connected = true
	m.id = uuid.NewString()
	return false, nil
}

// Disconnect tears down the live channel. Idempotent: it always leaves the
// manager disconnected with hostname and username cleared, regardless of
// prior state or close errors.
func (m *Manager) Disconnect() {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			slog.Debug("transport close", "error", err)
		}
		m.transport = nil
	}
	m.hostname = ""
	m.username = ""
	m.connected = false
	m.id = ""
}

// ExecCommand starts command on the remote and returns immediately with live
// streams. Callers block on completion via RemoteCommand.Wait; no output is
// buffered here.
func (m *Manager) ExecCommand(command string) (*RemoteCommand, error) {
	if !m.connected {
		return nil, fmt.Errorf("exec: %w", ErrNotConnected)
	}
	return m.transport.Exec(command)
}

// ExecCommandBlocking runs command to completion and returns its exit status
// together with the command handle. Stdout and Stderr on the returned handle
// are re-pointed at fully drained buffers: the transport requires both
// streams consumed before the exit status is available.
func (m *Manager) ExecCommandBlocking(command string) (int, *RemoteCommand, error) {
	cmd, err := m.ExecCommand(command)
	if err != nil {
		return 0, nil, err
	}

	var stdout, stderr bytes.Buffer
	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(&stdout, cmd.Stdout); done <- struct{}{} }()
	go func() { _, _ = io.Copy(&stderr, cmd.Stderr); done <- struct{}{} }()

	status, waitErr := cmd.Wait()
	<-done
	<-done
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if waitErr != nil {
		return status, cmd, fmt.Errorf("exec %q: %w", command, waitErr)
	}
	return status, cmd, nil
}

// DialRemote opens a stream to addr on the remote side of the live channel,
// for local port forwarding.
func (m *Manager) DialRemote(network, addr string) (net.Conn, error) {
	if !m.connected {
		return nil, fmt.Errorf("dial remote: %w", ErrNotConnected)
	}
	return m.transport.Dial(network, addr)
}

// SaveKeys generates a fresh RSA key pair, stores the private key at keyPath
// on this machine, and installs the public key in the remote user's
// authorized_keys via a blocking remote command. Requires a live connection.
// A nonzero exit from the remote append surfaces as *RemoteExitError carrying
// the observed status.
func (m *Manager) SaveKeys(keyPath string) error {
	if !m.connected {
		return fmt.Errorf("save keys: %w", ErrNotConnected)
	}

	pubLine, err := GenerateKeyPair(keyPath)
	if err != nil {
		return err
	}

	command := fmt.Sprintf(
		"mkdir -p ~/.ssh && chmod 700 ~/.ssh && echo '%s' >> ~/.ssh/authorized_keys", pubLine)
	status, _, err := m.ExecCommandBlocking(command)
	if err != nil {
		return fmt.Errorf("install public key: %w", err)
	}
	if status != 0 {
		return &RemoteExitError{Command: command, ExitStatus: status}
	}
	return nil
}
