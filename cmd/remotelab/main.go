// Package main is the entry point for the remotelab binary.
//
// remotelab is a terminal application that combines a TUI dashboard (built
// with Bubble Tea) and a CLI (built with Cobra) for managing remote lab
// sessions: versioned connection profiles, saved sessions, SSH connections
// with key provisioning, and local port forwards.
//
// When invoked without arguments, it launches the interactive TUI dashboard.
// With subcommands (e.g. "sessions list", "exec", "install-key", "tunnel"),
// it runs the corresponding CLI operation and exits.
//
// Usage:
//
//	remotelab                  # launch the TUI dashboard
//	remotelab sessions list    # list saved sessions
//	remotelab tunnel lab-a     # hold lab-a's port forwards open
//
// The CLI is constructed in internal/cli and the TUI in internal/ui. This
// file simply wires them together and handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"remotelab/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
