package profile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"remotelab/internal/model"
)

// newTestStore creates a store over a profiles directory containing one
// catalog named "lab" with three servers and registers cleanup of the
// process-wide slot.
func newTestStore(t *testing.T) (*UserStore, string) {
	t.Helper()
	dir := t.TempDir()

	cp := NewConnProfile()
	cp.Servers = append(cp.Servers, "host1.lab.example.edu", "host2.lab.example.edu", "host3.lab.example.edu")
	if err := cp.Save(filepath.Join(dir, "lab.json")); err != nil {
		t.Fatal(err)
	}

	store, err := NewUserStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Release)
	return store, dir
}

func TestNewUserStore_SingleActiveInstance(t *testing.T) {
	store, dir := newTestStore(t)

	if _, err := NewUserStore(dir); !errors.Is(err, ErrUserStoreActive) {
		t.Fatalf("expected ErrUserStoreActive, got %v", err)
	}

	store.Release()
	second, err := NewUserStore(dir)
	if err != nil {
		t.Fatalf("expected construction to succeed after release: %v", err)
	}
	second.Release()
}

func TestNewUserStore_MissingDirFatal(t *testing.T) {
	if _, err := NewUserStore(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for unreadable profiles directory")
	}
}

func TestNewUserStore_CorruptProfileKeptAsEmptyDefault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := NewUserStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Release()

	cp, ok := store.Profile("broken")
	if !ok {
		t.Fatal("expected broken profile to be present as empty default")
	}
	if len(cp.Servers) != 0 {
		t.Fatalf("expected empty default, got %v", cp.Servers)
	}
}

func TestUserStore_Defaults(t *testing.T) {
	store, _ := newTestStore(t)
	if store.Viewer() != model.ViewerTigerVNC {
		t.Fatalf("unexpected default viewer: %s", store.Viewer())
	}
	if store.LastSession() != -1 {
		t.Fatalf("unexpected default last session: %d", store.LastSession())
	}
	if store.SessionCount() != 0 {
		t.Fatalf("expected no sessions, got %d", store.SessionCount())
	}
}

func TestAddNewSession_UnknownProfileRejected(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.AddNewSession("s1", "nope"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
	if store.SessionCount() != 0 {
		t.Fatal("rejected add must not append a session")
	}
}

func TestAddNewSession_DoesNotTouchLastSession(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	if store.LastSession() != -1 {
		t.Fatalf("add must not change last session, got %d", store.LastSession())
	}
	sess, err := store.Session(0)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Name != "s1" || sess.ConnProfile != "lab" || sess.Username != "" {
		t.Fatalf("unexpected session defaults: %+v", sess)
	}
}

func TestModifySession_MarksLastUsed(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	key := "/tmp/id_rsa"
	if err := store.ModifySession(0, "alice", "host2.lab.example.edu", &key, nil); err != nil {
		t.Fatal(err)
	}
	if store.LastSession() != 0 {
		t.Fatalf("expected last session 0, got %d", store.LastSession())
	}
	sess, _ := store.Session(0)
	if sess.Username != "alice" || sess.LastServer != "host2.lab.example.edu" || sess.PrivateKeyPath != key {
		t.Fatalf("unexpected session after modify: %+v", sess)
	}
	if sess.VNCPasswdPath != "" {
		t.Fatal("nil vnc pointer must leave the field unchanged")
	}
}

func TestModifySession_UnknownServerLeavesSessionUnchanged(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	key := "/tmp/id_rsa"
	err := store.ModifySession(0, "alice", "other.example.edu", &key, nil)
	if !errors.Is(err, ErrUnknownServer) {
		t.Fatalf("expected ErrUnknownServer, got %v", err)
	}
	if store.LastSession() != -1 {
		t.Fatalf("rejected modify must not mark last used, got %d", store.LastSession())
	}
	sess, _ := store.Session(0)
	if sess.Username != "" || sess.LastServer != "" || sess.PrivateKeyPath != "" {
		t.Fatalf("rejected modify must not mutate the session: %+v", sess)
	}
}

func TestModifySession_InvalidIndex(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.ModifySession(0, "alice", "host1.lab.example.edu", nil, nil); !errors.Is(err, ErrInvalidSessionIndex) {
		t.Fatalf("expected ErrInvalidSessionIndex, got %v", err)
	}
}

func TestChangeViewer(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.ChangeViewer(model.ViewerRealVNC); err != nil {
		t.Fatal(err)
	}
	if store.Viewer() != model.ViewerRealVNC {
		t.Fatalf("unexpected viewer: %s", store.Viewer())
	}
	if err := store.ChangeViewer("NotAViewer"); !errors.Is(err, ErrUnsupportedViewer) {
		t.Fatalf("expected ErrUnsupportedViewer, got %v", err)
	}
	if store.Viewer() != model.ViewerRealVNC {
		t.Fatal("rejected change must not alter the viewer")
	}
}

func TestUserStore_SaveLoadRoundtrip(t *testing.T) {
	store, dir := newTestStore(t)

	keyPath := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	if err := store.ModifySession(0, "alice", "host1.lab.example.edu", &keyPath, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.ChangeViewer(model.ViewerRealVNC); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "user_profile.json")
	if err := store.Save(path); err != nil {
		t.Fatal(err)
	}

	if err := store.Load(path); err != nil {
		t.Fatal(err)
	}
	if store.Viewer() != model.ViewerRealVNC || store.LastSession() != 0 {
		t.Fatalf("unexpected state after load: viewer=%s last=%d", store.Viewer(), store.LastSession())
	}
	sess, _ := store.Session(0)
	if sess.Username != "alice" || sess.LastServer != "host1.lab.example.edu" || sess.PrivateKeyPath != keyPath {
		t.Fatalf("unexpected session after load: %+v", sess)
	}
}

func TestUserStore_LoadVersionMismatchResets(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "user_profile.json")
	content := []byte(`{"version": 99, "viewer": "TigerVNC", "last_session": 0, "sessions": [{"name": "s1", "conn_profile": "lab"}]}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(path); err == nil {
		t.Fatal("expected version mismatch error")
	}
	if store.SessionCount() != 0 || store.LastSession() != -1 || store.Viewer() != model.ViewerTigerVNC {
		t.Fatal("expected reset to defaults after rejected load")
	}
}

func TestUserStore_LoadUnsupportedViewerResets(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "user_profile.json")
	content := []byte(`{"version": 1, "viewer": "UltraVNC", "last_session": 0, "sessions": [{"name": "s1", "conn_profile": "lab"}]}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(path); !errors.Is(err, ErrUnsupportedViewer) {
		t.Fatalf("expected ErrUnsupportedViewer, got %v", err)
	}
	if store.SessionCount() != 0 {
		t.Fatal("expected reset to defaults after rejected load")
	}
}

func TestUserStore_LoadInvalidLastSessionResets(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "user_profile.json")
	for _, last := range []string{"-1", "1"} {
		content := []byte(`{"version": 1, "viewer": "TigerVNC", "last_session": ` + last +
			`, "sessions": [{"name": "s1", "conn_profile": "lab"}]}`)
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := store.Load(path); err == nil {
			t.Fatalf("expected error for last_session=%s", last)
		}
		if store.SessionCount() != 0 || store.LastSession() != -1 {
			t.Fatal("expected reset to defaults after rejected load")
		}
	}
}

func TestUserStore_LoadUnknownCatalogFailsWholeLoad(t *testing.T) {
	store, dir := newTestStore(t)

	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	if err := store.ModifySession(0, "alice", "host1.lab.example.edu", nil, nil); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "user_profile.json")
	if err := store.Save(path); err != nil {
		t.Fatal(err)
	}

	// Rewrite the saved file so the session references a catalog that was
	// never discovered.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	sessions := raw["sessions"].([]any)
	sessions[0].(map[string]any)["conn_profile"] = "ghost"
	b, err = json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.Load(path); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
	if store.SessionCount() != 0 {
		t.Fatal("a failed reconciliation must reset the whole profile")
	}
}

func TestQuerySessions(t *testing.T) {
	store, dir := newTestStore(t)

	keyPath := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.AddNewSession("s1", "lab"); err != nil {
		t.Fatal(err)
	}
	if err := store.ModifySession(0, "alice", "host3.lab.example.edu", &keyPath, nil); err != nil {
		t.Fatal(err)
	}

	views := store.QuerySessions()
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	v := views[0]
	if v.Name != "s1" || v.LastServer != "host3.lab.example.edu" || v.Username != "alice" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if !v.HasKey || v.HasVNCPass {
		t.Fatalf("unexpected credential flags: %+v", v)
	}
	if len(v.Servers) != 3 {
		t.Fatalf("expected catalog servers in view, got %v", v.Servers)
	}

	// The view carries a copy of the catalog, not the catalog itself.
	v.Servers[0] = "mutated"
	cp, _ := store.Profile("lab")
	if cp.Servers[0] == "mutated" {
		t.Fatal("view mutation must not reach the catalog")
	}
}
