package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"remotelab/internal/appconfig"
	"remotelab/internal/conn"
	"remotelab/internal/events"
	"remotelab/internal/history"
	"remotelab/internal/model"
	"remotelab/internal/profile"
	"remotelab/internal/security"
	"remotelab/internal/tunnel"
)

// targetServer picks the host to connect to: the session's last-used server,
// falling back to the catalog's first entry (usually the canonical gateway).
func targetServer(store *profile.UserStore, sess model.Session) (string, error) {
	if sess.LastServer != "" {
		return sess.LastServer, nil
	}
	cp, ok := store.Profile(sess.ConnProfile)
	if !ok {
		return "", fmt.Errorf("%w: %s", profile.ErrUnknownProfile, sess.ConnProfile)
	}
	if len(cp.Servers) == 0 {
		return "", fmt.Errorf("connection profile %s lists no servers", sess.ConnProfile)
	}
	return cp.Servers[0], nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// connectSession authenticates a manager for the given session, prompting
// for a password when the session has no usable private key.
func connectSession(cfg appconfig.Config, store *profile.UserStore, sess model.Session, journal *events.Store) (*conn.Manager, string, error) {
	host, err := targetServer(store, sess)
	if err != nil {
		return nil, "", err
	}
	if sess.Username == "" {
		return nil, "", fmt.Errorf("session %q has no username; run `remotelab sessions modify`", sess.Name)
	}

	password := ""
	if sess.PrivateKeyPath == "" {
		password, err = promptPassword(fmt.Sprintf("%s@%s password: ", sess.Username, host))
		if err != nil {
			return nil, "", err
		}
	}

	mgr := conn.NewManager(conn.NewSSHDialer(cfg.Security.HostKeyPolicy))
	record(journal, events.Event{
		Session: sess.Name, Host: host, User: sess.Username,
		EventType: events.TypeConnectRequested,
	})
	reused, err := mgr.Connect(host, sess.Username, password, sess.PrivateKeyPath)
	if err != nil {
		record(journal, events.Event{
			Session: sess.Name, Host: host, User: sess.Username,
			EventType: events.TypeConnectFailed,
			Message:   security.UserMessage(err, cfg.Security.RedactErrors),
		})
		return nil, "", err
	}
	eventType := events.TypeConnectSucceeded
	if reused {
		eventType = events.TypeConnectReused
	}
	record(journal, events.Event{
		ConnectionID: mgr.ID(), Session: sess.Name, Host: host, User: sess.Username,
		EventType: eventType,
	})
	if err := history.Touch(sess.Name); err != nil {
		slog.Warn("failed to record session history", "error", err)
	}
	return mgr, host, nil
}

func record(journal *events.Store, evt events.Event) {
	if journal == nil {
		return
	}
	if err := journal.Append(evt); err != nil {
		slog.Warn("failed to record event", "error", err)
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <session> <command>",
		Short: "Run a command on the session's server and print its output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			_, sess, err := resolveSession(store, args[0])
			if err != nil {
				return err
			}
			journal := events.NewStore()
			mgr, _, err := connectSession(cfg, store, sess, journal)
			if err != nil {
				return err
			}
			defer func() {
				mgr.Disconnect()
				record(journal, events.Event{Session: sess.Name, EventType: events.TypeDisconnected})
			}()

			status, result, err := mgr.ExecCommandBlocking(args[1])
			if err != nil {
				return err
			}
			_, _ = io.Copy(os.Stdout, result.Stdout)
			_, _ = io.Copy(os.Stderr, result.Stderr)
			if status != 0 {
				return fmt.Errorf("remote command exited with status %d", status)
			}
			return nil
		},
	}
}

func newInstallKeyCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "install-key <session>",
		Short: "Generate a key pair and install it on the session's server",
		Long: "Generates a fresh RSA key pair, saves the private key locally, appends the\n" +
			"public key to the remote authorized_keys, and stores the key path in the\n" +
			"session so future connections skip the password prompt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			idx, sess, err := resolveSession(store, args[0])
			if err != nil {
				return err
			}
			if keyPath == "" {
				dir, err := appconfig.ConfigDir()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Join(dir, "keys"), 0o700); err != nil {
					return err
				}
				keyPath = filepath.Join(dir, "keys", sess.Name+"_id_rsa")
			}

			journal := events.NewStore()
			mgr, host, err := connectSession(cfg, store, sess, journal)
			if err != nil {
				return err
			}
			defer func() {
				mgr.Disconnect()
				record(journal, events.Event{Session: sess.Name, EventType: events.TypeDisconnected})
			}()

			if err := mgr.SaveKeys(keyPath); err != nil {
				evt := events.Event{
					ConnectionID: mgr.ID(), Session: sess.Name, Host: host,
					EventType: events.TypeKeyInstallFailed,
					Message:   security.UserMessage(err, cfg.Security.RedactErrors),
				}
				var exitErr *conn.RemoteExitError
				if errors.As(err, &exitErr) {
					evt.ExitStatus = exitErr.ExitStatus
				}
				record(journal, evt)
				return err
			}
			record(journal, events.Event{
				ConnectionID: mgr.ID(), Session: sess.Name, Host: host,
				EventType: events.TypeKeyInstalled,
			})

			server := sess.LastServer
			if server == "" {
				server = host
			}
			if err := store.ModifySession(idx, sess.Username, server, &keyPath, nil); err != nil {
				return err
			}
			if err := saveStore(store, cfg); err != nil {
				return err
			}
			fmt.Printf("key installed; private key at %s\n", keyPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "where to store the private key (default: config dir)")
	return cmd
}

func newTunnelCmd() *cobra.Command {
	var forwardIdx int
	cmd := &cobra.Command{
		Use:   "tunnel <session>",
		Short: "Hold the session's port forwards open until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			_, sess, err := resolveSession(store, args[0])
			if err != nil {
				return err
			}
			cp, ok := store.Profile(sess.ConnProfile)
			if !ok {
				return fmt.Errorf("%w: %s", profile.ErrUnknownProfile, sess.ConnProfile)
			}
			forwards := cp.ForwardingPorts
			if len(forwards) == 0 {
				return fmt.Errorf("connection profile %s has no forwarding ports", sess.ConnProfile)
			}
			if forwardIdx >= 0 {
				if forwardIdx >= len(forwards) {
					return fmt.Errorf("forward index %d out of range (profile has %d)", forwardIdx, len(forwards))
				}
				forwards = forwards[forwardIdx : forwardIdx+1]
			}

			journal := events.NewStore()
			mgr, _, err := connectSession(cfg, store, sess, journal)
			if err != nil {
				return err
			}
			defer func() {
				mgr.Disconnect()
				record(journal, events.Event{Session: sess.Name, EventType: events.TypeDisconnected})
			}()

			fwdMgr := tunnel.NewManager(mgr, journal)
			defer fwdMgr.StopAll()
			for _, fwd := range forwards {
				rt, err := fwdMgr.Start(sess.Name, fwd)
				if err != nil {
					return err
				}
				fmt.Printf("forwarding %s -> %s\n", rt.Local, rt.Remote)
			}

			fmt.Println("press Ctrl+C to stop")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			return nil
		},
	}
	cmd.Flags().IntVar(&forwardIdx, "forward", -1, "forward index (default: all)")
	return cmd
}
