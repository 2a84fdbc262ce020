// Package version exposes build metadata stamped in via ldflags.
package version

//nolint:revive // Overwritten at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Full renders the three build fields as a single human-readable string.
func Full() string {
	return Version + " (" + Commit + ", built " + Date + ")"
}
