// Package doctor runs local diagnostics: is the profile catalog present,
// does every profile file load at the supported schema version, and do the
// files saved sessions point at still exist.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remotelab/internal/appconfig"
	"remotelab/internal/model"
	"remotelab/internal/profile"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes local diagnostics for remotelab operations.
func Run() (Report, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return Report{}, err
	}

	var issues []Issue
	issues = append(issues, profileIssues(cfg)...)
	issues = append(issues, userProfileIssues(cfg)...)
	return Report{Issues: issues}, nil
}

func profileIssues(cfg appconfig.Config) []Issue {
	var issues []Issue
	dir, err := cfg.ProfilesDirPath()
	if err != nil {
		return issues
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "profiles-dir",
			Target:         dir,
			Message:        err.Error(),
			Recommendation: "create the profiles directory and add at least one connection profile",
		})
		return issues
	}

	found := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		found++
		cp := profile.NewConnProfile()
		if err := cp.Load(filepath.Join(dir, name)); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "profile-load",
				Target:         name,
				Message:        err.Error(),
				Recommendation: fmt.Sprintf("fix or regenerate the profile (schema version must be %d)", profile.SchemaVersion),
			})
			continue
		}
		if len(cp.Servers) == 0 {
			issues = append(issues, Issue{
				Severity:       SeverityLow,
				Check:          "profile-empty",
				Target:         name,
				Message:        "profile lists no servers",
				Recommendation: "add server hostnames to the profile's servers list",
			})
		}
	}
	if found == 0 {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "profiles-dir",
			Target:         dir,
			Message:        "no connection profile files found",
			Recommendation: "add <lab>.json profile files to the profiles directory",
		})
	}
	return issues
}

// userProfileIssues inspects the persisted user profile without going through
// the UserStore factory, so doctor can run alongside a live store.
func userProfileIssues(cfg appconfig.Config) []Issue {
	var issues []Issue
	path, err := cfg.UserProfileFilePath()
	if err != nil {
		return issues
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return issues
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "user-profile",
			Target:         path,
			Message:        err.Error(),
			Recommendation: "fix the user profile file permissions",
		})
		return issues
	}

	var raw struct {
		Version  *int            `json:"version"`
		Sessions []model.Session `json:"sessions"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "user-profile",
			Target:         path,
			Message:        "user profile is not valid JSON: " + err.Error(),
			Recommendation: "delete the file to start from defaults, or restore a backup",
		})
		return issues
	}
	if raw.Version == nil || *raw.Version != profile.SchemaVersion {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "user-profile",
			Target:         path,
			Message:        fmt.Sprintf("schema version mismatch (want %d)", profile.SchemaVersion),
			Recommendation: "the profile will be reset to defaults on next load",
		})
	}

	for _, sess := range raw.Sessions {
		for _, p := range []string{sess.PrivateKeyPath, sess.VNCPasswdPath} {
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				issues = append(issues, Issue{
					Severity:       SeverityLow,
					Check:          "session-file",
					Target:         sess.Name,
					Message:        fmt.Sprintf("referenced file missing: %s", p),
					Recommendation: "the path will be dropped during the next profile load",
				})
			}
		}
	}
	return issues
}
