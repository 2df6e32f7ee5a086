package conn

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"remotelab/internal/appconfig"
)

const sshPort = "22"

// sshTransport implements Transport over a golang.org/x/crypto/ssh client.
type sshTransport struct {
	client *ssh.Client
}

// NewSSHDialer returns a Dialer that speaks SSH with the given host key
// verification policy.
func NewSSHDialer(policy appconfig.HostKeyPolicy) Dialer {
	return func(hostname, username string, auth Auth) (Transport, error) {
		methods, err := authMethods(auth)
		if err != nil {
			return nil, err
		}
		cb, err := hostKeyCallback(policy)
		if err != nil {
			return nil, err
		}
		cfg := &ssh.ClientConfig{
			User:            username,
			Auth:            methods,
			HostKeyCallback: cb,
		}
		client, err := ssh.Dial("tcp", net.JoinHostPort(hostname, sshPort), cfg)
		if err != nil {
			return nil, classifyDialError(hostname, err)
		}
		return &sshTransport{client: client}, nil
	}
}

// authMethods builds the method list from the supplied credential.
// Password is listed first so it takes precedence when both are supplied.
func authMethods(auth Auth) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if auth.Password != "" {
		methods = append(methods, ssh.Password(auth.Password))
	}
	if auth.KeyPath != "" {
		b, err := os.ReadFile(auth.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", auth.KeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if len(methods) == 0 {
		return nil, ErrNoCredential
	}
	return methods, nil
}

func classifyDialError(hostname string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &NameResolutionError{Host: hostname, Err: err}
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return &AuthError{Err: err}
	}
	return err
}

func knownHostsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

func hostKeyCallback(policy appconfig.HostKeyPolicy) (ssh.HostKeyCallback, error) {
	if policy == appconfig.HostKeyPolicyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path, err := knownHostsPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open known_hosts: %w", err)
	}
	_ = f.Close()

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	if policy == appconfig.HostKeyPolicyStrict {
		return check, nil
	}

	// accept-new: record hosts on first contact, reject key changes.
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, remote, key)
		}
		return err
	}, nil
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("record host key: %w", err)
	}
	defer f.Close()
	line := knownhosts.Line([]string{hostname, remote.String()}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("record host key: %w", err)
	}
	return nil
}

func (t *sshTransport) Exec(command string) (*RemoteCommand, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open command channel: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := session.Start(command); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	return &RemoteCommand{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		wait: func() (int, error) {
			defer session.Close()
			err := session.Wait()
			if err == nil {
				return 0, nil
			}
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitStatus(), nil
			}
			return -1, err
		},
	}, nil
}

func (t *sshTransport) Dial(network, addr string) (net.Conn, error) {
	return t.client.Dial(network, addr)
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}
