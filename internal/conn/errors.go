package conn

import (
	"errors"
	"fmt"
)

// Errors raised by the lifecycle manager. Authentication, name-resolution,
// and remote-command failures carry their own types so callers can present
// distinct messages; everything else from the transport propagates verbatim.
var (
	// ErrNoCredential is returned by Connect when neither a password nor a
	// key path was supplied.
	ErrNoCredential = errors.New("either a password or a private key path is required")
	// ErrNotConnected is returned by operations that require an
	// authenticated connection.
	ErrNotConnected = errors.New("not connected")
)

// AuthError wraps an authentication failure reported by the transport.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// NameResolutionError wraps a hostname lookup failure.
type NameResolutionError struct {
	Host string
	Err  error
}

func (e *NameResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve host %s: %v", e.Host, e.Err)
}
func (e *NameResolutionError) Unwrap() error { return e.Err }

// RemoteExitError reports a remote command that completed with a nonzero
// exit status during a systemic operation such as key installation.
type RemoteExitError struct {
	Command    string
	ExitStatus int
}

func (e *RemoteExitError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.ExitStatus)
}
