// Package version exposes build metadata stamped in via -ldflags.
package version

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Build carries the metadata of a compiled gallery binary.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current reports the metadata of the running binary. Without stamping
// it falls back to the dev placeholders.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// String renders the build as a single log-friendly line.
func (b Build) String() string {
	return "version=" + b.Version + " commit=" + b.Commit + " date=" + b.Date
}
