// Package bundle exports and imports a lab catalog (connection profiles plus,
// optionally, the user profile) as a single YAML document, for moving a setup
// between machines.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"remotelab/internal/model"
	"remotelab/internal/profile"
)

// ProfileEntry is one connection profile in bundle form.
type ProfileEntry struct {
	Servers         []string `yaml:"servers"`
	StartVNCServer  bool     `yaml:"start_vnc_srv"`
	ForwardingPorts [][2]int `yaml:"forwarding_ports,omitempty"`
}

// SessionEntry is one saved session in bundle form. Key and password paths
// travel with the bundle; reconciliation on the destination machine drops
// any path that does not exist there.
type SessionEntry struct {
	Name           string `yaml:"name"`
	ConnProfile    string `yaml:"conn_profile"`
	LastServer     string `yaml:"last_server,omitempty"`
	Username       string `yaml:"username,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	VNCPasswdPath  string `yaml:"vnc_passwd_path,omitempty"`
}

// UserEntry is the user profile portion of a bundle.
type UserEntry struct {
	Viewer      string         `yaml:"viewer"`
	LastSession int            `yaml:"last_session"`
	Sessions    []SessionEntry `yaml:"sessions"`
}

// Document is the on-disk bundle shape.
type Document struct {
	Version     int                     `yaml:"version"`
	Profiles    map[string]ProfileEntry `yaml:"profiles"`
	UserProfile *UserEntry              `yaml:"user_profile,omitempty"`
}

// Export collects every connection profile under profilesDir, and the user
// profile at userProfilePath when includeUser is set, into one Document.
func Export(profilesDir, userProfilePath string, includeUser bool) (Document, error) {
	doc := Document{Version: profile.SchemaVersion, Profiles: map[string]ProfileEntry{}}

	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return Document{}, fmt.Errorf("scan profiles directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cp := profile.NewConnProfile()
		if err := cp.Load(filepath.Join(profilesDir, name)); err != nil {
			return Document{}, fmt.Errorf("bundle profile %s: %w", name, err)
		}
		pe := ProfileEntry{Servers: cp.Servers, StartVNCServer: cp.StartVNCServer}
		for _, fwd := range cp.ForwardingPorts {
			pe.ForwardingPorts = append(pe.ForwardingPorts, [2]int{fwd.Local, fwd.Remote})
		}
		doc.Profiles[strings.TrimSuffix(name, ".json")] = pe
	}

	if includeUser {
		ue, err := readUserEntry(userProfilePath)
		if err != nil {
			return Document{}, err
		}
		doc.UserProfile = ue
	}
	return doc, nil
}

func readUserEntry(path string) (*UserEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read user profile: %w", err)
	}
	var raw struct {
		Version     *int            `json:"version"`
		Viewer      string          `json:"viewer"`
		LastSession int             `json:"last_session"`
		Sessions    []model.Session `json:"sessions"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse user profile: %w", err)
	}
	if raw.Version == nil || *raw.Version != profile.SchemaVersion {
		return nil, fmt.Errorf("user profile %s: schema version mismatch", path)
	}
	ue := &UserEntry{Viewer: raw.Viewer, LastSession: raw.LastSession, Sessions: []SessionEntry{}}
	for _, s := range raw.Sessions {
		ue.Sessions = append(ue.Sessions, SessionEntry{
			Name:           s.Name,
			ConnProfile:    s.ConnProfile,
			LastServer:     s.LastServer,
			Username:       s.Username,
			PrivateKeyPath: s.PrivateKeyPath,
			VNCPasswdPath:  s.VNCPasswdPath,
		})
	}
	return ue, nil
}

// WriteFile serializes doc to path as YAML.
func WriteFile(doc Document, path string) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ReadFile parses a bundle document from path.
func ReadFile(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("parse bundle: %w", err)
	}
	if doc.Version != profile.SchemaVersion {
		return Document{}, fmt.Errorf("bundle %s: schema version mismatch", path)
	}
	return doc, nil
}

// Import materializes the bundle: one profile JSON per catalog under
// profilesDir, and the user profile at userProfilePath when the bundle
// carries one. Existing files with the same names are overwritten.
func Import(doc Document, profilesDir, userProfilePath string) error {
	if err := os.MkdirAll(profilesDir, 0o700); err != nil {
		return err
	}
	for name, pe := range doc.Profiles {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("bundle contains a profile with an empty name")
		}
		cp := profile.NewConnProfile()
		cp.Servers = append(cp.Servers, pe.Servers...)
		cp.StartVNCServer = pe.StartVNCServer
		for _, fwd := range pe.ForwardingPorts {
			cp.ForwardingPorts = append(cp.ForwardingPorts, model.PortPair{Local: fwd[0], Remote: fwd[1]})
		}
		if err := cp.Save(filepath.Join(profilesDir, name+".json")); err != nil {
			return err
		}
	}

	if doc.UserProfile == nil {
		return nil
	}
	out := struct {
		Version     int             `json:"version"`
		Viewer      string          `json:"viewer"`
		LastSession int             `json:"last_session"`
		Sessions    []model.Session `json:"sessions"`
	}{
		Version:     profile.SchemaVersion,
		Viewer:      doc.UserProfile.Viewer,
		LastSession: doc.UserProfile.LastSession,
		Sessions:    []model.Session{},
	}
	for _, s := range doc.UserProfile.Sessions {
		out.Sessions = append(out.Sessions, model.Session{
			Name:           s.Name,
			ConnProfile:    s.ConnProfile,
			LastServer:     s.LastServer,
			Username:       s.Username,
			PrivateKeyPath: s.PrivateKeyPath,
			VNCPasswdPath:  s.VNCPasswdPath,
		})
	}
	if err := os.MkdirAll(filepath.Dir(userProfilePath), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(userProfilePath, b, 0o600)
}
