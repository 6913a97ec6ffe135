// Package version carries build metadata for the coracle binary, stamped
// through -ldflags at release time.
package version

var (
	// Version is the semantic version of the coracle binary.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)
