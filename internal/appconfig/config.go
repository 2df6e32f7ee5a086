// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"remotelab/internal/util"
)

// HostKeyPolicy controls remote host key verification for new connections.
type HostKeyPolicy string

const (
	// HostKeyPolicyStrict rejects hosts missing from known_hosts.
	HostKeyPolicyStrict HostKeyPolicy = "strict"
	// HostKeyPolicyAcceptNew records unknown hosts on first contact and
	// rejects mismatches afterwards.
	HostKeyPolicyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyPolicyInsecure skips verification entirely.
	HostKeyPolicyInsecure HostKeyPolicy = "insecure"
)

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// SecurityConfig controls connection and error-reporting posture.
type SecurityConfig struct {
	HostKeyPolicy HostKeyPolicy `yaml:"host_key_policy"`
	RedactErrors  bool          `yaml:"redact_errors"`
}

// Config holds application-level configuration.
type Config struct {
	// ProfilesDir overrides where connection profile files are discovered.
	// Empty means <config dir>/profiles.
	ProfilesDir string `yaml:"profiles_dir,omitempty"`
	// UserProfilePath overrides where the user profile is persisted.
	// Empty means <config dir>/user_profile.json.
	UserProfilePath string         `yaml:"user_profile_path,omitempty"`
	UI              UIConfig       `yaml:"ui"`
	Security        SecurityConfig `yaml:"security"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		UI: UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
		Security: SecurityConfig{
			HostKeyPolicy: HostKeyPolicyAcceptNew,
			RedactErrors:  true,
		},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/remotelab.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "remotelab"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "remotelab"), nil
}

// ProfilesDir returns the directory scanned for connection profile files.
func (c Config) ProfilesDirPath() (string, error) {
	if c.ProfilesDir != "" {
		return c.ProfilesDir, nil
	}
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "profiles"), nil
}

// UserProfileFilePath returns the full path to the persisted user profile.
func (c Config) UserProfileFilePath() (string, error) {
	if c.UserProfilePath != "" {
		return c.UserProfilePath, nil
	}
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "user_profile.json"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func normalize(cfg Config) Config {
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = util.DefaultRefreshSeconds
	}
	switch cfg.Security.HostKeyPolicy {
	case HostKeyPolicyStrict, HostKeyPolicyAcceptNew, HostKeyPolicyInsecure:
	default:
		cfg.Security.HostKeyPolicy = HostKeyPolicyAcceptNew
	}
	return cfg
}
