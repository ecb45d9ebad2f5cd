package version

import (
	"fmt"
	"runtime"
)

// Build information set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is reported by the health endpoint and at startup
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the current version, suffixed with the short commit for dev builds
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if len(GitCommit) >= 8 && GitCommit != "unknown" {
		return fmt.Sprintf("dev-%s", GitCommit[:8])
	}
	return "dev-" + GitCommit
}

// GetBuildInfo returns all build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}
