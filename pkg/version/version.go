// Package version carries build information set with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersionInfo returns the line printed by the version command.
func GetVersionInfo() string {
	return fmt.Sprintf("inputright version %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}

// UserAgent is sent by outbound HTTP clients.
func UserAgent() string {
	return "inputright/" + Version
}
