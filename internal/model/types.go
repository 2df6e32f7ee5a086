package model

import (
	"encoding/json"
	"fmt"
)

// Viewer identifies a supported VNC viewer program.
type Viewer string

const (
	ViewerTigerVNC Viewer = "TigerVNC"
	ViewerRealVNC  Viewer = "RealVNC"
)

// SupportedViewers lists every viewer the user profile may select.
var SupportedViewers = []Viewer{ViewerTigerVNC, ViewerRealVNC}

// ViewerSupported reports whether v is a known viewer identifier.
func ViewerSupported(v Viewer) bool {
	for _, s := range SupportedViewers {
		if v == s {
			return true
		}
	}
	return false
}

// PortPair defines one local->remote forwarding mapping from a connection
// profile. On the wire it is a two-element array [local, remote] to stay
// byte-compatible with existing profile files.
type PortPair struct {
	Local  int
	Remote int
}

func (p PortPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Local, p.Remote})
}

func (p *PortPair) UnmarshalJSON(b []byte) error {
	var arr [2]int
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("forwarding port pair: %w", err)
	}
	p.Local = arr[0]
	p.Remote = arr[1]
	return nil
}

func (p PortPair) String() string {
	return fmt.Sprintf("%d->%d", p.Local, p.Remote)
}

// Session is one saved reference to a connection profile plus the
// user-specific details needed to reach it.
type Session struct {
	Name           string `json:"name"`
	ConnProfile    string `json:"conn_profile"`
	LastServer     string `json:"last_server"`
	Username       string `json:"username"`
	PrivateKeyPath string `json:"private_key_path"`
	VNCPasswdPath  string `json:"vnc_passwd_path"`
}

// SessionView is the projection of a session handed to presentation layers.
// It carries presence flags instead of the secret file paths so UI code never
// sees where keys live on disk.
type SessionView struct {
	Name       string   `json:"name"`
	Servers    []string `json:"servers"`
	LastServer string   `json:"last_server"`
	Username   string   `json:"username"`
	HasKey     bool     `json:"passwd"`
	VNCManual  bool     `json:"vnc_manual"`
	HasVNCPass bool     `json:"vnc_passwd"`
}

// TunnelState tracks one forwarded port's lifecycle.
type TunnelState string

const (
	TunnelDown     TunnelState = "down"
	TunnelStarting TunnelState = "starting"
	TunnelUp       TunnelState = "up"
	TunnelStopping TunnelState = "stopping"
	TunnelError    TunnelState = "error"
)

// TunnelRuntime is a snapshot of one managed forward.
type TunnelRuntime struct {
	ID        string      `json:"id"`
	Session   string      `json:"session"`
	Forward   PortPair    `json:"-"`
	Local     string      `json:"local"`
	Remote    string      `json:"remote"`
	State     TunnelState `json:"state"`
	UptimeSec int64       `json:"uptime_seconds"`
	LatencyMS int64       `json:"latency_ms"`
	LastError string      `json:"last_error,omitempty"`
}
