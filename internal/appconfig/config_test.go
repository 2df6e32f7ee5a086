package appconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WritesDefaultsOnFirstRun(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Security.HostKeyPolicy != HostKeyPolicyAcceptNew {
		t.Fatalf("unexpected host key policy: %s", cfg.Security.HostKeyPolicy)
	}
	if !cfg.Security.RedactErrors {
		t.Fatal("expected redact_errors default true")
	}
	if cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("unexpected refresh seconds: %d", cfg.UI.RefreshSeconds)
	}
	if _, err := os.Stat(filepath.Join(xdg, "remotelab", "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml written: %v", err)
	}
}

func TestLoad_NormalizesInvalidValues(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "remotelab")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte("ui:\n  refresh_seconds: -2\nsecurity:\n  host_key_policy: invalid\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UI.RefreshSeconds != 3 {
		t.Fatalf("expected normalized refresh seconds, got %d", cfg.UI.RefreshSeconds)
	}
	if cfg.Security.HostKeyPolicy != HostKeyPolicyAcceptNew {
		t.Fatalf("expected normalized host key policy, got %s", cfg.Security.HostKeyPolicy)
	}
}

func TestPathOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	dir, err := cfg.ProfilesDirPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "profiles" {
		t.Fatalf("unexpected default profiles dir: %s", dir)
	}
	path, err := cfg.UserProfileFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "user_profile.json" {
		t.Fatalf("unexpected default user profile path: %s", path)
	}

	cfg.ProfilesDir = "/custom/profiles"
	cfg.UserProfilePath = "/custom/user.json"
	if dir, _ := cfg.ProfilesDirPath(); dir != "/custom/profiles" {
		t.Fatalf("override ignored: %s", dir)
	}
	if path, _ := cfg.UserProfileFilePath(); path != "/custom/user.json" {
		t.Fatalf("override ignored: %s", path)
	}
}
