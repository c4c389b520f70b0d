// Package version exposes the opsmesh release embedded from the VERSION file.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release with whitespace trimmed, e.g. "0.1.0".
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String is the line printed by `opsmesh version`.
func String() string {
	return "opsmesh version " + Get()
}

// AppID tags outbound AWS calls so they can be traced to an opsmesh release.
// The SDK allows at most 50 characters without slashes or spaces.
func AppID() string {
	return "opsmesh-" + Get()
}
