package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"remotelab/internal/model"
)

// Validation errors raised synchronously from mutating calls. The profile is
// left unchanged on any of these rejects.
var (
	// ErrUserStoreActive is returned when a second UserStore is constructed
	// while one is already live in the process.
	ErrUserStoreActive = errors.New("user store already active in this process")
	// ErrUnknownProfile marks a reference to a connection profile name that
	// was not discovered in the profiles directory.
	ErrUnknownProfile = errors.New("unknown connection profile")
	// ErrUnknownServer marks a server name that is not a member of the
	// referenced catalog.
	ErrUnknownServer = errors.New("server not in connection profile")
	// ErrInvalidSessionIndex marks an out-of-range session position.
	ErrInvalidSessionIndex = errors.New("invalid session index")
	// ErrUnsupportedViewer marks a viewer identifier outside the supported set.
	ErrUnsupportedViewer = errors.New("viewer not supported")
)

var (
	storeMu     sync.Mutex
	storeActive bool
)

// UserStore holds the user's saved sessions and viewer preference, together
// with the read-only mapping of connection profiles discovered at
// construction time. At most one UserStore may be active per process; the
// factory enforces this instead of hiding it in construction semantics.
type UserStore struct {
	viewer       model.Viewer
	lastSession  int
	sessions     []model.Session
	connProfiles map[string]*ConnProfile
}

// NewUserStore scans dir for connection profile files (*.json, keyed by file
// stem) and returns a store with default user-profile state. A directory read
// failure is fatal: the application cannot function without at least
// attempting catalog discovery. Individual profile files that fail to load
// are kept as empty defaults and logged, matching the fail-closed contract of
// ConnProfile.Load.
func NewUserStore(dir string) (*UserStore, error) {
	storeMu.Lock()
	defer storeMu.Unlock()
	if storeActive {
		return nil, ErrUserStoreActive
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan profiles directory: %w", err)
	}

	profiles := make(map[string]*ConnProfile)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cp := NewConnProfile()
		if err := cp.Load(filepath.Join(dir, name)); err != nil {
			slog.Warn("connection profile load failed, using empty default",
				"file", name, "error", err)
		}
		profiles[strings.TrimSuffix(name, ".json")] = cp
	}

	s := &UserStore{connProfiles: profiles}
	s.resetProfile()
	storeActive = true
	return s, nil
}

// Release ends this store's claim on the process-wide slot so a new store can
// be constructed. Intended for tests and controlled shutdown paths.
func (s *UserStore) Release() {
	storeMu.Lock()
	storeActive = false
	storeMu.Unlock()
}

// resetProfile restores the user-profile portion to defaults. The connection
// profile mapping survives: it belongs to construction, not to Load.
func (s *UserStore) resetProfile() {
	s.viewer = model.ViewerTigerVNC
	s.lastSession = -1
	s.sessions = []model.Session{}
}

// Viewer returns the selected VNC viewer.
func (s *UserStore) Viewer() model.Viewer { return s.viewer }

// LastSession returns the index of the last used session, -1 if none.
func (s *UserStore) LastSession() int { return s.lastSession }

// SessionCount returns how many sessions are saved.
func (s *UserStore) SessionCount() int { return len(s.sessions) }

// Session returns a copy of the session at idx.
func (s *UserStore) Session(idx int) (model.Session, error) {
	if idx < 0 || idx >= len(s.sessions) {
		return model.Session{}, fmt.Errorf("%w: %d", ErrInvalidSessionIndex, idx)
	}
	return s.sessions[idx], nil
}

// ProfileNames returns the discovered connection profile names, sorted.
func (s *UserStore) ProfileNames() []string {
	out := make([]string, 0, len(s.connProfiles))
	for name := range s.connProfiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Profile returns the named connection profile.
func (s *UserStore) Profile(name string) (*ConnProfile, bool) {
	cp, ok := s.connProfiles[name]
	return cp, ok
}

// userProfileFile is the on-disk shape of the user profile.
type userProfileFile struct {
	Version     int             `json:"version"`
	Viewer      model.Viewer    `json:"viewer"`
	LastSession int             `json:"last_session"`
	Sessions    []model.Session `json:"sessions"`
}

// Load replaces the user-profile state with the contents of the file at path.
// The whole sequence fails closed: any I/O error, parse error, schema
// mismatch, unsupported viewer, out-of-range last-session index, or
// reconciliation failure resets the store to defaults and returns the cause.
// Partial or corrupt state is never retained.
func (s *UserStore) Load(path string) error {
	s.resetProfile()

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read user profile: %w", err)
	}

	var raw struct {
		Version     *int            `json:"version"`
		Viewer      *model.Viewer   `json:"viewer"`
		LastSession *int            `json:"last_session"`
		Sessions    []model.Session `json:"sessions"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse user profile %s: %w", path, err)
	}
	if raw.Version == nil || *raw.Version != SchemaVersion {
		return fmt.Errorf("user profile %s: schema version mismatch", path)
	}
	if raw.Viewer == nil || !model.ViewerSupported(*raw.Viewer) {
		s.resetProfile()
		return fmt.Errorf("user profile %s: %w", path, ErrUnsupportedViewer)
	}
	if raw.LastSession == nil || *raw.LastSession < 0 || *raw.LastSession >= len(raw.Sessions) {
		s.resetProfile()
		return fmt.Errorf("user profile %s: invalid last_session", path)
	}

	s.viewer = *raw.Viewer
	s.lastSession = *raw.LastSession
	for _, sess := range raw.Sessions {
		loaded, err := s.reconcileSession(sess)
		if err != nil {
			s.resetProfile()
			return fmt.Errorf("user profile %s: session %q: %w", path, sess.Name, err)
		}
		s.sessions = append(s.sessions, loaded)
	}
	return nil
}

// Save serializes the user profile to path as pretty-printed JSON.
// Write failures propagate; they are user-visible data loss.
func (s *UserStore) Save(path string) error {
	out := userProfileFile{
		Version:     SchemaVersion,
		Viewer:      s.viewer,
		LastSession: s.lastSession,
		Sessions:    s.sessions,
	}
	b, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encode user profile: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write user profile %s: %w", path, err)
	}
	return nil
}

// AddNewSession appends a session with empty defaults referencing the named
// connection profile. It does not change the last-session index.
func (s *UserStore) AddNewSession(name, connProfile string) error {
	if _, ok := s.connProfiles[connProfile]; !ok {
		return fmt.Errorf("add session: %w: %s", ErrUnknownProfile, connProfile)
	}
	s.sessions = append(s.sessions, model.Session{
		Name:        name,
		ConnProfile: connProfile,
	})
	return nil
}

// ModifySession updates the session at idx and marks it as last used.
// Selecting a session for modification implicitly selecting it as "last used"
// is an intentional coupling; callers relying on last-session tracking get it
// for free from the only operation that edits a session.
//
// lastServer must be a member of the referenced catalog. privateKeyPath and
// vncPasswdPath are overwritten only when non-nil; nil means leave unchanged.
// No existence check happens here: paths are verified only on the load path,
// during reconciliation.
func (s *UserStore) ModifySession(idx int, username, lastServer string, privateKeyPath, vncPasswdPath *string) error {
	if idx < 0 || idx >= len(s.sessions) {
		return fmt.Errorf("modify session: %w: %d", ErrInvalidSessionIndex, idx)
	}
	sess := &s.sessions[idx]

	cp, ok := s.connProfiles[sess.ConnProfile]
	if !ok {
		return fmt.Errorf("modify session: %w: %s", ErrUnknownProfile, sess.ConnProfile)
	}
	if !cp.HasServer(lastServer) {
		return fmt.Errorf("modify session: %w: %s", ErrUnknownServer, lastServer)
	}

	s.lastSession = idx
	sess.Username = username
	sess.LastServer = lastServer
	if privateKeyPath != nil {
		sess.PrivateKeyPath = *privateKeyPath
	}
	if vncPasswdPath != nil {
		sess.VNCPasswdPath = *vncPasswdPath
	}
	return nil
}

// ChangeViewer selects the VNC viewer used for future sessions.
func (s *UserStore) ChangeViewer(v model.Viewer) error {
	if !model.ViewerSupported(v) {
		return fmt.Errorf("change viewer: %w: %s", ErrUnsupportedViewer, v)
	}
	s.viewer = v
	return nil
}

// QuerySessions projects every session plus its catalog data into the view
// offered to presentation layers. Secret file paths are reduced to presence
// flags so they cannot leak into UI code paths.
func (s *UserStore) QuerySessions() []model.SessionView {
	out := make([]model.SessionView, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := s.connProfiles[sess.ConnProfile]
		servers := []string{}
		vncManual := false
		if cp != nil {
			servers = append(servers, cp.Servers...)
			vncManual = cp.StartVNCServer
		}
		out = append(out, model.SessionView{
			Name:       sess.Name,
			Servers:    servers,
			LastServer: sess.LastServer,
			Username:   sess.Username,
			HasKey:     sess.PrivateKeyPath != "",
			VNCManual:  vncManual,
			HasVNCPass: sess.VNCPasswdPath != "",
		})
	}
	return out
}
