// Package profile implements the persistent, versioned configuration layer:
// connection profiles (the per-lab server catalogs) and the user profile
// (saved sessions plus viewer preference), including the reconciliation rules
// that keep saved sessions consistent with the catalogs they reference.
//
// The stores are not safe for concurrent mutation; callers serialize access.
package profile

import (
	"encoding/json"
	"fmt"
	"os"

	"remotelab/internal/model"
)

// SchemaVersion is the profile file schema this build reads and writes.
// Version mismatches are a hard reject, not a migration.
const SchemaVersion = 1

// ConnProfile is a named catalog of reachable servers for one lab/site,
// plus its VNC auto-start flag and port-forwarding rules. Server order is
// preserved and meaningful: the first entry is usually a canonical gateway.
type ConnProfile struct {
	Version         int              `json:"version"`
	Servers         []string         `json:"servers"`
	StartVNCServer  bool             `json:"start_vnc_srv"`
	ForwardingPorts []model.PortPair `json:"forwarding_ports"`
}

// NewConnProfile returns an empty profile at the current schema version.
func NewConnProfile() *ConnProfile {
	return &ConnProfile{
		Version:         SchemaVersion,
		Servers:         []string{},
		ForwardingPorts: []model.PortPair{},
	}
}

func (p *ConnProfile) reset() {
	*p = *NewConnProfile()
}

// HasServer reports whether name is a member of the catalog.
func (p *ConnProfile) HasServer(name string) bool {
	for _, s := range p.Servers {
		if s == name {
			return true
		}
	}
	return false
}

// Load replaces the profile with the contents of the file at path.
// It fails closed: on any I/O error, parse error, or schema version mismatch
// the profile is reset to the empty default and the cause is returned, so the
// receiver is always in a usable state regardless of the outcome.
func (p *ConnProfile) Load(path string) error {
	p.reset()

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read connection profile: %w", err)
	}

	// Version is a pointer so an absent field is distinguishable from 0;
	// both are rejected.
	var raw struct {
		Version         *int             `json:"version"`
		Servers         []string         `json:"servers"`
		StartVNCServer  bool             `json:"start_vnc_srv"`
		ForwardingPorts []model.PortPair `json:"forwarding_ports"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse connection profile %s: %w", path, err)
	}
	if raw.Version == nil || *raw.Version != SchemaVersion {
		return fmt.Errorf("connection profile %s: schema version mismatch", path)
	}

	p.Version = *raw.Version
	if raw.Servers != nil {
		p.Servers = raw.Servers
	}
	p.StartVNCServer = raw.StartVNCServer
	if raw.ForwardingPorts != nil {
		p.ForwardingPorts = raw.ForwardingPorts
	}
	return nil
}

// Save serializes the profile to path as pretty-printed JSON.
// Write failures propagate: losing a saved profile is user-visible data loss
// and must not be swallowed.
func (p *ConnProfile) Save(path string) error {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("encode connection profile: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write connection profile %s: %w", path, err)
	}
	return nil
}
