// Package tunnel manages local port forwards over the live authenticated
// connection: each forwarding pair from a connection profile becomes a
// listener on 127.0.0.1 whose accepted connections are dialed through the
// remote side.
package tunnel

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"remotelab/internal/events"
	"remotelab/internal/model"
	"remotelab/internal/util"
)

// RemoteDialer abstracts the lifecycle manager's remote dialing capability
// for testing.
type RemoteDialer interface {
	DialRemote(network, addr string) (net.Conn, error)
}

type entry struct {
	rt        model.TunnelRuntime
	listener  net.Listener
	startedAt time.Time
}

// Manager coordinates forward listeners and tracks their runtime state.
// Forwards live and die with the process: an in-process channel cannot be
// re-adopted after a restart, so there is no runtime persistence.
type Manager struct {
	mu      sync.Mutex
	dialer  RemoteDialer
	journal *events.Store
	runtime map[string]*entry
}

// NewManager creates a manager that forwards through dialer. journal may be
// nil to skip event recording.
func NewManager(dialer RemoteDialer, journal *events.Store) *Manager {
	return &Manager{
		dialer:  dialer,
		journal: journal,
		runtime: make(map[string]*entry),
	}
}

// RuntimeID generates a unique identifier for a forward based on session and pair.
func RuntimeID(session string, fwd model.PortPair) string {
	return fmt.Sprintf("%s|127.0.0.1:%d|localhost:%d", session, fwd.Local, fwd.Remote)
}

// Start opens the local listener for the given forwarding pair.
// If a forward with the same ID is already up, returns the existing runtime.
func (m *Manager) Start(session string, fwd model.PortPair) (model.TunnelRuntime, error) {
	if err := util.ValidatePort(fwd.Local); err != nil {
		return model.TunnelRuntime{}, fmt.Errorf("invalid local port: %w", err)
	}
	if err := util.ValidatePort(fwd.Remote); err != nil {
		return model.TunnelRuntime{}, fmt.Errorf("invalid remote port: %w", err)
	}

	id := RuntimeID(session, fwd)
	m.mu.Lock()
	if e, ok := m.runtime[id]; ok && e.rt.State == model.TunnelUp {
		rt := e.rt
		m.mu.Unlock()
		return rt, nil
	}
	e := &entry{rt: model.TunnelRuntime{
		ID:      id,
		Session: session,
		Forward: fwd,
		Local:   fmt.Sprintf("127.0.0.1:%d", fwd.Local),
		Remote:  fmt.Sprintf("127.0.0.1:%d", fwd.Remote),
		State:   model.TunnelStarting,
	}}
	m.runtime[id] = e
	m.mu.Unlock()

	ln, err := net.Listen("tcp", e.rt.Local)
	if err != nil {
		m.mu.Lock()
		e.rt.State = model.TunnelError
		e.rt.LastError = err.Error()
		m.mu.Unlock()
		m.record(events.TypeTunnelError, e.rt, err.Error())
		return e.rt, fmt.Errorf("listen %s: %w", e.rt.Local, err)
	}

	m.mu.Lock()
	e.listener = ln
	e.startedAt = time.Now()
	e.rt.State = model.TunnelUp
	rt := e.rt
	m.mu.Unlock()

	go m.acceptLoop(id, ln, e.rt.Remote)
	m.record(events.TypeTunnelUp, rt, "")
	return rt, nil
}

func (m *Manager) acceptLoop(id string, ln net.Listener, remoteAddr string) {
	for {
		local, err := ln.Accept()
		if err != nil {
			m.mu.Lock()
			e, ok := m.runtime[id]
			if ok && e.rt.State != model.TunnelStopping && e.rt.State != model.TunnelDown {
				e.rt.State = model.TunnelError
				e.rt.LastError = err.Error()
			}
			m.mu.Unlock()
			return
		}
		go m.serveConn(id, local, remoteAddr)
	}
}

func (m *Manager) serveConn(id string, local net.Conn, remoteAddr string) {
	defer local.Close()
	remote, err := m.dialer.DialRemote("tcp", remoteAddr)
	if err != nil {
		slog.Warn("forward dial failed", "tunnel", id, "remote", remoteAddr, "error", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(remote, local); done <- struct{}{} }()
	go func() { _, _ = io.Copy(local, remote); done <- struct{}{} }()
	<-done
}

// Stop closes a forward by its ID.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	e, ok := m.runtime[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("forward not found: %s", id)
	}
	e.rt.State = model.TunnelStopping
	ln := e.listener
	m.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	m.mu.Lock()
	e.rt.State = model.TunnelDown
	e.listener = nil
	rt := e.rt
	m.mu.Unlock()

	m.record(events.TypeTunnelDown, rt, "")
	return nil
}

// StopBySession stops all active forwards for a session name.
func (m *Manager) StopBySession(session string) error {
	m.mu.Lock()
	ids := make([]string, 0)
	for id, e := range m.runtime {
		if e.rt.Session == session && (e.rt.State == model.TunnelUp || e.rt.State == model.TunnelStarting || e.rt.State == model.TunnelError) {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return fmt.Errorf("no active forward for session %s", session)
	}
	for _, id := range ids {
		_ = m.Stop(id)
	}
	return nil
}

// StopAll stops all managed forwards.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runtime))
	for id := range m.runtime {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Get retrieves a forward's current runtime state by ID.
func (m *Manager) Get(id string) (model.TunnelRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runtime[id]
	if !ok {
		return model.TunnelRuntime{}, fmt.Errorf("not found")
	}
	rt := e.rt
	if !e.startedAt.IsZero() {
		rt.UptimeSec = int64(time.Since(e.startedAt).Seconds())
	}
	return rt, nil
}

// Snapshot returns a read-only snapshot of all forwards with current uptime
// and latency. Liveness probes run asynchronously to avoid blocking.
func (m *Manager) Snapshot() []model.TunnelRuntime {
	m.mu.Lock()
	out := make([]model.TunnelRuntime, 0, len(m.runtime))
	for _, e := range m.runtime {
		rt := e.rt
		if !e.startedAt.IsZero() {
			rt.UptimeSec = int64(time.Since(e.startedAt).Seconds())
		}
		out = append(out, rt)
	}
	m.mu.Unlock()

	type probeResult struct {
		index     int
		latencyMS int64
		err       error
	}

	results := make(chan probeResult, len(out))
	expected := 0
	for i, rt := range out {
		if rt.State != model.TunnelUp {
			continue
		}
		expected++
		go func(idx int, local string) {
			start := time.Now()
			c, err := net.DialTimeout("tcp", local, util.TunnelProbeTimeout)
			if err != nil {
				results <- probeResult{index: idx, err: err}
				return
			}
			_ = c.Close()
			results <- probeResult{index: idx, latencyMS: time.Since(start).Milliseconds()}
		}(i, rt.Local)
	}

	timeout := time.After(util.TunnelProbeTimeout + 100*time.Millisecond)
	for collected := 0; collected < expected; collected++ {
		select {
		case result := <-results:
			if result.err != nil {
				slog.Debug("forward probe failed", "local", out[result.index].Local, "error", result.err)
			} else {
				out[result.index].LatencyMS = result.latencyMS
			}
		case <-timeout:
			slog.Warn("forward probe timeout", "expected", expected)
			return out
		}
	}
	return out
}

func (m *Manager) record(eventType string, rt model.TunnelRuntime, msg string) {
	if m.journal == nil {
		return
	}
	err := m.journal.Append(events.Event{
		Session:   rt.Session,
		EventType: eventType,
		Message:   msg,
	})
	if err != nil {
		slog.Warn("failed to record tunnel event", "error", err)
	}
}
