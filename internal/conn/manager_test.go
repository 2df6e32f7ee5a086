package conn

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

// fakeTransport records executed commands and serves canned results.
type fakeTransport struct {
	closed   bool
	commands []string
	stdout   string
	stderr   string
	status   int
}

func (f *fakeTransport) Exec(command string) (*RemoteCommand, error) {
	f.commands = append(f.commands, command)
	return &RemoteCommand{
		Stdout: strings.NewReader(f.stdout),
		Stderr: strings.NewReader(f.stderr),
		wait:   func() (int, error) { return f.status, nil },
	}, nil
}

func (f *fakeTransport) Dial(network, addr string) (net.Conn, error) {
	local, remote := net.Pipe()
	go func() { _ = remote.Close() }()
	return local, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// fakeDialer counts authentications and hands out a fresh transport per call.
type fakeDialer struct {
	calls int
	last  *fakeTransport
	err   error
}

func (d *fakeDialer) dial(hostname, username string, auth Auth) (Transport, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	d.last = &fakeTransport{}
	return d.last, nil
}

func TestConnect_ReuseSkipsReauthentication(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)

	reused, err := m.Connect("host1", "alice", "pw", "")
	if err != nil {
		t.Fatal(err)
	}
	if reused {
		t.Fatal("first connect must not report reuse")
	}
	firstID := m.ID()
	if firstID == "" {
		t.Fatal("expected a connection id after connect")
	}

	reused, err = m.Connect("host1", "alice", "pw", "")
	if err != nil {
		t.Fatal(err)
	}
	if !reused {
		t.Fatal("matching endpoint must reuse the live channel")
	}
	if d.calls != 1 {
		t.Fatalf("reuse must not re-authenticate, dialed %d times", d.calls)
	}
	if m.ID() != firstID {
		t.Fatal("reuse must keep the connection id")
	}
}

func TestConnect_DifferentEndpointReplacesChannel(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)

	if _, err := m.Connect("host1", "alice", "pw", ""); err != nil {
		t.Fatal(err)
	}
	old := d.last
	firstID := m.ID()

	reused, err := m.Connect("host2", "alice", "pw", "")
	if err != nil {
		t.Fatal(err)
	}
	if reused {
		t.Fatal("different endpoint must not report reuse")
	}
	if !old.closed {
		t.Fatal("old transport must be torn down before reconnecting")
	}
	if d.calls != 2 {
		t.Fatalf("expected 2 dials, got %d", d.calls)
	}
	if m.ID() == firstID {
		t.Fatal("a new channel must get a new connection id")
	}
}

func TestConnect_NoCredentialRejected(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)

	_, err := m.Connect("host1", "alice", "", "")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if m.Connected() {
		t.Fatal("manager must stay disconnected after a rejected connect")
	}
	if d.calls != 0 {
		t.Fatal("no dial may happen without a credential")
	}
}

func TestConnect_DialFailureLeavesDisconnected(t *testing.T) {
	d := &fakeDialer{err: &AuthError{Err: errors.New("denied")}}
	m := NewManager(d.dial)

	_, err := m.Connect("host1", "alice", "pw", "")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if m.Connected() || m.Hostname() != "" || m.Username() != "" || m.ID() != "" {
		t.Fatal("failed connect must leave the manager fully disconnected")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)

	if _, err := m.Connect("host1", "alice", "pw", ""); err != nil {
		t.Fatal(err)
	}
	m.Disconnect()
	if m.Connected() || m.Hostname() != "" {
		t.Fatal("expected disconnected state")
	}
	if !d.last.closed {
		t.Fatal("transport must be closed on disconnect")
	}
	m.Disconnect()
	if m.Connected() {
		t.Fatal("second disconnect must be a no-op")
	}
}

func TestExecCommand_RequiresConnection(t *testing.T) {
	m := NewManager((&fakeDialer{}).dial)
	if _, err := m.ExecCommand("true"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, _, err := m.ExecCommandBlocking("true"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := m.DialRemote("tcp", "127.0.0.1:1000"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestExecCommandBlocking_BuffersOutput(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)
	if _, err := m.Connect("host1", "alice", "pw", ""); err != nil {
		t.Fatal(err)
	}
	d.last.stdout = "out line\n"
	d.last.stderr = "err line\n"
	d.last.status = 0

	status, cmd, err := m.ExecCommandBlocking("echo hi")
	if err != nil {
		t.Fatal(err)
	}
	if status != 0 {
		t.Fatalf("unexpected status: %d", status)
	}
	out, _ := io.ReadAll(cmd.Stdout)
	errOut, _ := io.ReadAll(cmd.Stderr)
	if string(out) != "out line\n" || string(errOut) != "err line\n" {
		t.Fatalf("unexpected output: %q / %q", out, errOut)
	}
}

func TestSaveKeys_RequiresConnection(t *testing.T) {
	m := NewManager((&fakeDialer{}).dial)
	if err := m.SaveKeys(t.TempDir() + "/id_rsa"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSaveKeys_InstallsPublicKey(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)
	if _, err := m.Connect("host1", "alice", "pw", ""); err != nil {
		t.Fatal(err)
	}

	keyPath := t.TempDir() + "/id_rsa"
	if err := m.SaveKeys(keyPath); err != nil {
		t.Fatal(err)
	}
	if len(d.last.commands) != 1 {
		t.Fatalf("expected 1 remote command, got %d", len(d.last.commands))
	}
	cmd := d.last.commands[0]
	for _, want := range []string{"mkdir -p ~/.ssh", "chmod 700 ~/.ssh", ">> ~/.ssh/authorized_keys", "ssh-rsa "} {
		if !strings.Contains(cmd, want) {
			t.Fatalf("remote command missing %q: %s", want, cmd)
		}
	}
}

func TestSaveKeys_RemoteFailureSurfacesExitStatus(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d.dial)
	if _, err := m.Connect("host1", "alice", "pw", ""); err != nil {
		t.Fatal(err)
	}
	d.last.status = 1

	err := m.SaveKeys(t.TempDir() + "/id_rsa")
	var exitErr *RemoteExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *RemoteExitError, got %v", err)
	}
	if exitErr.ExitStatus != 1 {
		t.Fatalf("unexpected exit status: %d", exitErr.ExitStatus)
	}
}
