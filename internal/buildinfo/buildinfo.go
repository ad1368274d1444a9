// Package buildinfo carries build identification injected at link time,
// surfaced through the build_version parameter and the host panel title.
package buildinfo

// Set via -ldflags "-X picorom/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the most specific identifier available.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}
