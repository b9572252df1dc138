// Package version exposes the embedded release version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// UserAgent identifies waypoint on outbound coordination calls.
func UserAgent() string {
	return "waypoint/" + Get()
}
