// Package version holds build metadata injected with -ldflags, e.g.
// go build -ldflags "-X kcexplore/pkg/version.Version=v0.3.0".
package version

import "fmt"

//nolint:gochecknoglobals // set by the linker
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("kcexplore %s (commit %s, built %s)", Version, Commit, Date)
}
