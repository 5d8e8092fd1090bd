// Package version holds build metadata for the bookstore binary.
package version

import "fmt"

// Stamped with -ldflags "-X github.com/GoCodeAlone/bookstore/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
