// Package buildinfo carries version metadata stamped at link time.
package buildinfo

// Set via -ldflags, e.g.:
//
//	-X 'github.com/m3rciful/reservebot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/reservebot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/reservebot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)
