// Package version provides build information for vk-async.
package version

import "strings"

var (
	// Version is the semantic version (injected at build time via ldflags).
	Version = "dev"
	// Commit is the git commit hash (injected at build time via ldflags).
	Commit = "none"
	// BuildDate is the build timestamp (injected at build time via ldflags).
	BuildDate = "unknown"
)

// UserAgent is sent with API requests when the config does not set one.
func UserAgent() string {
	return "vk-async/" + strings.TrimPrefix(Version, "v")
}

// String returns formatted version information.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
