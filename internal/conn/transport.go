// Package conn implements the connection lifecycle manager: it owns at most
// one live authenticated channel, decides when that channel may be reused
// versus torn down and re-established, and bootstraps key-based trust on the
// remote host.
//
// The secure transport itself is consumed through the Transport capability;
// the manager never touches protocol details. The default implementation in
// ssh.go speaks SSH via golang.org/x/crypto/ssh.
package conn

import (
	"io"
	"net"
)

// Auth carries the credential selected for authentication. Exactly one of
// Password/KeyPath is normally set; when both are set, password wins.
type Auth struct {
	Password string
	KeyPath  string
}

// RemoteCommand is one command channel opened on the transport. Streams are
// live: the command keeps running until Wait is called or the transport
// closes. Output is not buffered here.
type RemoteCommand struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Stderr io.Reader

	wait func() (int, error)
}

// Wait blocks until the command completes and returns its exit status.
func (c *RemoteCommand) Wait() (int, error) { return c.wait() }

// Transport is the external secure-transport capability: an authenticated
// channel that can execute remote commands and dial remote endpoints.
// Implementations are exclusively owned by the Manager.
type Transport interface {
	// Exec opens a command channel. Non-blocking: it returns as soon as the
	// command has started.
	Exec(command string) (*RemoteCommand, error)
	// Dial opens a stream to addr on the remote side, for port forwarding.
	Dial(network, addr string) (net.Conn, error)
	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Dialer authenticates against hostname as username and returns a live
// transport. Authentication and name-resolution failures are reported as
// *AuthError and *NameResolutionError respectively.
type Dialer func(hostname, username string, auth Auth) (Transport, error)
