package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"remotelab/internal/appconfig"
	"remotelab/internal/bundle"
	"remotelab/internal/doctor"
	"remotelab/internal/events"
	"remotelab/internal/security"
	"remotelab/internal/util"
)

func newEventsCmd() *cobra.Command {
	var (
		session   string
		eventType string
		since     string
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the connection lifecycle journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{Session: session, EventType: eventType, Limit: limit}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("parse --since: %w", err)
				}
				q.Since = t
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(evts)
			}
			for _, evt := range evts {
				fmt.Printf("%s  %-18s %-16s %s@%s %s\n",
					evt.Timestamp.Local().Format(time.RFC3339),
					evt.EventType,
					util.EmptyDash(evt.Session),
					util.EmptyDash(evt.User), util.EmptyDash(evt.Host),
					evt.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "filter by session name")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&since, "since", "", "only events after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 50, "keep only the most recent N events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local profile setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Printf("[%s] %s: %s\n    %s\n    fix: %s\n",
					issue.Severity, issue.Check, issue.Target, issue.Message, issue.Recommendation)
			}
			return fmt.Errorf("%d issue(s) found", len(report.Issues))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit config, profile, and key file permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Release()

			report, err := security.RunLocalAudit(store)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(report); err != nil {
					return err
				}
			} else if len(report.Findings) == 0 {
				fmt.Println("no findings")
			} else {
				for _, f := range report.Findings {
					fmt.Printf("[%s] %s: %s\n    fix: %s\n", f.Severity, f.Target, f.Message, f.Recommendation)
				}
			}
			if report.HasHigh() {
				return fmt.Errorf("high severity findings present")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newBundleCmd() *cobra.Command {
	root := &cobra.Command{Use: "bundle", Short: "Export or import the catalog as a single YAML file"}

	var includeUser bool
	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write all connection profiles (and optionally the user profile) to a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			dir, err := cfg.ProfilesDirPath()
			if err != nil {
				return err
			}
			userPath, err := cfg.UserProfileFilePath()
			if err != nil {
				return err
			}
			doc, err := bundle.Export(dir, userPath, includeUser)
			if err != nil {
				return err
			}
			if err := bundle.WriteFile(doc, args[0]); err != nil {
				return err
			}
			fmt.Printf("exported %d profile(s) to %s\n", len(doc.Profiles), args[0])
			return nil
		},
	}
	export.Flags().BoolVar(&includeUser, "include-user", false, "also bundle the user profile")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Materialize a bundle into the local profiles directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			dir, err := cfg.ProfilesDirPath()
			if err != nil {
				return err
			}
			userPath, err := cfg.UserProfileFilePath()
			if err != nil {
				return err
			}
			doc, err := bundle.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := bundle.Import(doc, dir, userPath); err != nil {
				return err
			}
			fmt.Printf("imported %d profile(s)\n", len(doc.Profiles))
			return nil
		},
	}

	root.AddCommand(export)
	root.AddCommand(importCmd)
	return root
}
