package profile

import (
	"fmt"
	"os"

	"remotelab/internal/model"
)

// reconcileSession normalizes one raw session from disk against the loaded
// connection profile mapping. Invoked only from the load path.
//
// Rules:
//   - name and conn_profile are copied as given (no uniqueness check).
//   - a missing catalog fails the load rather than defaulting silently.
//   - last_server is kept only if still a member of the catalog.
//   - private_key_path is kept only if the file exists right now.
//   - vnc_passwd_path is checked only when a private key survived; a VNC
//     password is meaningless without key-based login in this model, so it is
//     left empty whenever the key path was dropped, even if the password file
//     exists on disk.
func (s *UserStore) reconcileSession(raw model.Session) (model.Session, error) {
	loaded := model.Session{
		Name:        raw.Name,
		ConnProfile: raw.ConnProfile,
		Username:    raw.Username,
	}

	cp, ok := s.connProfiles[raw.ConnProfile]
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrUnknownProfile, raw.ConnProfile)
	}

	if cp.HasServer(raw.LastServer) {
		loaded.LastServer = raw.LastServer
	}

	if pathExists(raw.PrivateKeyPath) {
		loaded.PrivateKeyPath = raw.PrivateKeyPath
		if pathExists(raw.VNCPasswdPath) {
			loaded.VNCPasswdPath = raw.VNCPasswdPath
		}
	}
	return loaded, nil
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
