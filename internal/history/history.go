// Package history tracks when each saved session last connected
// successfully, so the dashboard can float recent sessions to the top.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"remotelab/internal/appconfig"
	"remotelab/internal/model"
)

type store struct {
	LastUsed map[string]int64 `json:"last_used"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Touch records a successful connection for a session name.
func Touch(session string) error {
	st, err := load()
	if err != nil {
		return err
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	st.LastUsed[session] = time.Now().Unix()
	return save(st)
}

// LastUsed returns last successful connection timestamps by session name.
func LastUsed() (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	return st.LastUsed, nil
}

// SortSessionsRecent returns a new slice sorted by recent activity (desc),
// then session name.
func SortSessionsRecent(views []model.SessionView, lastUsed map[string]int64) []model.SessionView {
	out := append([]model.SessionView(nil), views...)
	sort.SliceStable(out, func(i, j int) bool {
		ti := lastUsed[out[i].Name]
		tj := lastUsed[out[j].Name]
		if ti != tj {
			return ti > tj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastUsed: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastUsed: map[string]int64{}}, nil
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
