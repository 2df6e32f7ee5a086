package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"remotelab/internal/appconfig"
	"remotelab/internal/profile"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// RunLocalAudit inspects the permission posture of the config directory, the
// profiles directory, the persisted user profile, and every private key a
// saved session references.
func RunLocalAudit(store *profile.UserStore) (AuditReport, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return AuditReport{}, err
	}

	var findings []Finding
	if cfg.Security.HostKeyPolicy == appconfig.HostKeyPolicyInsecure {
		findings = append(findings, Finding{
			Severity:       SeverityHigh,
			Target:         "config.yaml",
			Message:        "host key policy is insecure",
			Recommendation: "set security.host_key_policy to strict or accept-new",
		})
	}
	if !cfg.Security.RedactErrors {
		findings = append(findings, Finding{
			Severity:       SeverityLow,
			Target:         "config.yaml",
			Message:        "error redaction is disabled",
			Recommendation: "set security.redact_errors to true to keep key paths out of UI text",
		})
	}

	if cfgDir, err := appconfig.ConfigDir(); err == nil {
		checkPathPerm(&findings, cfgDir, 0o700, false)
		checkPathPerm(&findings, filepath.Join(cfgDir, "config.yaml"), 0o600, true)
	}
	if dir, err := cfg.ProfilesDirPath(); err == nil {
		checkPathPerm(&findings, dir, 0o700, false)
	}
	if path, err := cfg.UserProfileFilePath(); err == nil {
		checkPathPerm(&findings, path, 0o600, true)
	}

	if store != nil {
		seen := map[string]struct{}{}
		for i := 0; i < store.SessionCount(); i++ {
			sess, err := store.Session(i)
			if err != nil || sess.PrivateKeyPath == "" {
				continue
			}
			if _, ok := seen[sess.PrivateKeyPath]; ok {
				continue
			}
			seen[sess.PrivateKeyPath] = struct{}{}
			checkPathPerm(&findings, sess.PrivateKeyPath, 0o600, true)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		if findings[i].Target != findings[j].Target {
			return findings[i].Target < findings[j].Target
		}
		return findings[i].Message < findings[j].Message
	})
	return AuditReport{Findings: findings}, nil
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

func checkPathPerm(findings *[]Finding, path string, want os.FileMode, isFile bool) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if isFile && info.IsDir() {
		return
	}
	mode := info.Mode().Perm()
	if mode&^want == 0 {
		return
	}
	severity := SeverityMedium
	if isFile && mode&0o077 != 0 {
		severity = SeverityHigh
	}
	*findings = append(*findings, Finding{
		Severity:       severity,
		Target:         path,
		Message:        fmt.Sprintf("permissions %o are wider than %o", mode, want),
		Recommendation: fmt.Sprintf("chmod %o %s", want, path),
	})
}
