package cli

import (
	"path/filepath"
	"testing"

	"remotelab/internal/model"
	"remotelab/internal/profile"
)

func newTestStore(t *testing.T) *profile.UserStore {
	t.Helper()
	dir := t.TempDir()

	cp := profile.NewConnProfile()
	cp.Servers = append(cp.Servers, "host1.lab.example.edu", "host2.lab.example.edu")
	cp.ForwardingPorts = append(cp.ForwardingPorts, model.PortPair{Local: 5901, Remote: 5901})
	if err := cp.Save(filepath.Join(dir, "lab.json")); err != nil {
		t.Fatal(err)
	}

	store, err := profile.NewUserStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Release)

	if err := store.AddNewSession("lab-a", "lab"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddNewSession("lab-b", "lab"); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestResolveSession_ByIndex(t *testing.T) {
	store := newTestStore(t)
	idx, sess, err := resolveSession(store, "1")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 || sess.Name != "lab-b" {
		t.Fatalf("unexpected resolution: %d %s", idx, sess.Name)
	}
}

func TestResolveSession_ByName(t *testing.T) {
	store := newTestStore(t)
	idx, sess, err := resolveSession(store, "lab-a")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 || sess.Name != "lab-a" {
		t.Fatalf("unexpected resolution: %d %s", idx, sess.Name)
	}
}

func TestResolveSession_UnknownNameAndIndex(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := resolveSession(store, "missing"); err == nil {
		t.Fatal("expected error for unknown name")
	}
	if _, _, err := resolveSession(store, "9"); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestTargetServer_PrefersLastServer(t *testing.T) {
	store := newTestStore(t)
	host, err := targetServer(store, model.Session{
		ConnProfile: "lab",
		LastServer:  "host2.lab.example.edu",
	})
	if err != nil {
		t.Fatal(err)
	}
	if host != "host2.lab.example.edu" {
		t.Fatalf("unexpected host: %s", host)
	}
}

func TestTargetServer_FallsBackToCatalogHead(t *testing.T) {
	store := newTestStore(t)
	host, err := targetServer(store, model.Session{ConnProfile: "lab"})
	if err != nil {
		t.Fatal(err)
	}
	if host != "host1.lab.example.edu" {
		t.Fatalf("unexpected host: %s", host)
	}
}

func TestTargetServer_UnknownProfile(t *testing.T) {
	store := newTestStore(t)
	if _, err := targetServer(store, model.Session{ConnProfile: "ghost"}); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
