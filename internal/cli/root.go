// Package cli provides the command-line interface for remotelab.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"remotelab/internal/appconfig"
	"remotelab/internal/model"
	"remotelab/internal/profile"
	"remotelab/internal/ui"
	"remotelab/internal/util"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "remotelab",
		Short: "Remote-lab session and connection manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run()
		},
	}

	root.AddCommand(newProfilesCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newViewerCmd())
	root.AddCommand(newExecCmd())
	root.AddCommand(newInstallKeyCmd())
	root.AddCommand(newTunnelCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newBundleCmd())
	return root
}

// openStore constructs the user store from the configured profiles directory
// and loads the persisted user profile. A missing or corrupt user profile is
// not fatal: the store falls back to defaults and the cause is logged.
func openStore() (*profile.UserStore, appconfig.Config, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, appconfig.Config{}, err
	}
	dir, err := cfg.ProfilesDirPath()
	if err != nil {
		return nil, appconfig.Config{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, appconfig.Config{}, err
	}
	store, err := profile.NewUserStore(dir)
	if err != nil {
		return nil, appconfig.Config{}, err
	}
	path, err := cfg.UserProfileFilePath()
	if err != nil {
		store.Release()
		return nil, appconfig.Config{}, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if err := store.Load(path); err != nil {
			slog.Warn("user profile load failed, using defaults", "error", err)
		}
	}
	return store, cfg, nil
}

func saveStore(store *profile.UserStore, cfg appconfig.Config) error {
	path, err := cfg.UserProfileFilePath()
	if err != nil {
		return err
	}
	return store.Save(path)
}

// resolveSession accepts a session index or name.
func resolveSession(store *profile.UserStore, arg string) (int, model.Session, error) {
	if idx, err := strconv.Atoi(arg); err == nil {
		sess, err := store.Session(idx)
		return idx, sess, err
	}
	for i := 0; i < store.SessionCount(); i++ {
		sess, _ := store.Session(i)
		if sess.Name == arg {
			return i, sess, nil
		}
	}
	return 0, model.Session{}, fmt.Errorf("no session named %q", arg)
}

func newProfilesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List discovered connection profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			if asJSON {
				out := map[string]*profile.ConnProfile{}
				for _, name := range store.ProfileNames() {
					cp, _ := store.Profile(name)
					out[name] = cp
				}
				return printJSON(out)
			}
			fmt.Printf("%-20s %-8s %-10s %s\n", "NAME", "SERVERS", "VNC-AUTO", "FORWARDS")
			for _, name := range store.ProfileNames() {
				cp, _ := store.Profile(name)
				fmt.Printf("%-20s %-8d %-10v %d\n", name, len(cp.Servers), cp.StartVNCServer, len(cp.ForwardingPorts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	root := &cobra.Command{Use: "sessions", Short: "Manage saved sessions"}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			views := store.QuerySessions()
			if asJSON {
				return printJSON(views)
			}
			fmt.Printf("%-4s %-16s %-24s %-16s %-5s %-5s\n", "IDX", "NAME", "LAST SERVER", "USER", "KEY", "VNCPW")
			for i, v := range views {
				fmt.Printf("%-4d %-16s %-24s %-16s %-5v %-5v\n",
					i, v.Name, util.EmptyDash(v.LastServer), util.EmptyDash(v.Username), v.HasKey, v.HasVNCPass)
			}
			if last := store.LastSession(); last >= 0 {
				fmt.Printf("last used: %d\n", last)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "emit JSON")

	add := &cobra.Command{
		Use:   "add <name> <profile>",
		Short: "Add a session referencing a connection profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			if err := store.AddNewSession(args[0], args[1]); err != nil {
				return err
			}
			return saveStore(store, cfg)
		},
	}

	var username, server, keyPath, vncPasswdPath string
	modify := &cobra.Command{
		Use:   "modify <session>",
		Short: "Update a session's username, server, and credential paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			idx, _, err := resolveSession(store, args[0])
			if err != nil {
				return err
			}
			// A flag left unset means "leave the field unchanged".
			var keyPtr, vncPtr *string
			if cmd.Flags().Changed("key") {
				keyPtr = &keyPath
			}
			if cmd.Flags().Changed("vnc-passwd") {
				vncPtr = &vncPasswdPath
			}
			if err := store.ModifySession(idx, username, server, keyPtr, vncPtr); err != nil {
				return err
			}
			return saveStore(store, cfg)
		},
	}
	modify.Flags().StringVar(&username, "username", "", "remote username")
	modify.Flags().StringVar(&server, "server", "", "server hostname (must be in the profile's catalog)")
	modify.Flags().StringVar(&keyPath, "key", "", "private key path")
	modify.Flags().StringVar(&vncPasswdPath, "vnc-passwd", "", "VNC password file path")
	_ = modify.MarkFlagRequired("username")
	_ = modify.MarkFlagRequired("server")

	root.AddCommand(list)
	root.AddCommand(add)
	root.AddCommand(modify)
	return root
}

func newViewerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "viewer <name>",
		Short: "Select the VNC viewer (TigerVNC or RealVNC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			if err := store.ChangeViewer(model.Viewer(args[0])); err != nil {
				return err
			}
			return saveStore(store, cfg)
		},
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
