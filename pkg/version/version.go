// Package version exposes the application version derived from build metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev" fallback.
//
// Usage:
//
//	version.GitCommit  // "a3f8c2d1" or "dev"
//	version.Full()     // "overseer/a3f8c2d1" or "overseer/dev"
package version

import (
	"runtime"
	"runtime/debug"
)

// AppName is the application name used in version strings and log lines.
const AppName = "overseer"

// Overridable via -ldflags at build time for container builds where .git
// is unavailable. Empty string means no override.
var (
	versionOverride   string
	gitCommitOverride string
	buildDateOverride string
)

// Version is the release version, "dev" when not stamped.
var Version = initVersion()

// GitCommit is the short git commit hash (8 chars) from build info.
// Set to "dev" when build info is unavailable (e.g., `go test`, non-git builds).
var GitCommit = initGitCommit()

// BuildDate is the build timestamp, "unknown" when not stamped.
var BuildDate = initBuildDate()

func initVersion() string {
	if versionOverride != "" {
		return versionOverride
	}
	return "dev"
}

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func initBuildDate() string {
	if buildDateOverride != "" {
		return buildDateOverride
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.time" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

func shorten(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

// Info is the full build identity snapshot.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build identity.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// Full returns "overseer/<commit>" for use in user-agent strings, logging, etc.
func Full() string {
	return AppName + "/" + GitCommit
}
