package version

import "fmt"

var (
	// Version is overridden at build time via -ldflags.
	Version = "0.1.0-dev"
	Commit  = ""
)

func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
