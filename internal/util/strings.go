// Package util provides common utility functions and constants used across the
// remotelab application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// This is a general-purpose "coalesce" helper used when a value might be
// missing or blank and a sensible default should be substituted. It is the
// foundation for EmptyDash and similar display-formatting functions.
//
// Examples:
//
//	DefaultString("hello", "world")  → "hello"   // non-empty → kept
//	DefaultString("",      "world")  → "world"   // empty → fallback
//	DefaultString("  ",    "world")  → "world"   // whitespace-only → fallback
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace;
// otherwise it returns s unchanged.
//
// Used by the CLI and TUI to display a visible placeholder when an optional
// field (such as a session's username or last-used server) has no value.
// Showing "-" instead of a blank space makes table output easier to read and
// avoids ambiguity about whether a field was omitted versus set to "".
//
// Call sites:
//   - internal/cli/root.go: session list columns.
//   - internal/ui/ui.go: the session detail panel.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}
