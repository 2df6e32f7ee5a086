package util

import "time"

const (
	// TunnelProbeTimeout is the maximum time allowed for a single TCP
	// health-check probe against a forward's local endpoint. If the connection
	// is not established within this duration, the probe is considered failed.
	//
	// Used by internal/tunnel/manager.go (Snapshot), both as the dial timeout
	// and as the base for the overall probe collection timeout
	// (TunnelProbeTimeout + 100ms). The 500ms value keeps the dashboard
	// responsive while still being generous for loopback connections.
	TunnelProbeTimeout = 500 * time.Millisecond

	// DefaultRefreshSeconds is the fallback interval (in seconds) for the TUI
	// dashboard's periodic tunnel status refresh, used when config.yaml has an
	// invalid or missing refresh_seconds value.
	// Used by: internal/ui/ui.go and internal/appconfig/config.go.
	DefaultRefreshSeconds = 3
)
