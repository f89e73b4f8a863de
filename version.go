package mailkit

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Version information for the mailkit library.
// These values are injected during build time via ldflags, e.g.
//
//	-ldflags "-X github.com/lattiq/mailkit.Version=v1.2.0"
var (
	// Version is the semantic version of the library.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	// Platform is the target platform (GOOS/GOARCH).
	Platform string `json:"platform"`
}

var versionInfo = sync.OnceValue(readVersionInfo)

// GetVersionInfo returns version information, filling gaps left by ldflags
// from the VCS data embedded by the Go toolchain.
func GetVersionInfo() VersionInfo {
	return versionInfo()
}

func readVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildDate = t.UTC().Format("2006-01-02T15:04:05Z")
				}
			}
		case "vcs.modified":
			if setting.Value == "true" && !strings.HasSuffix(info.GitCommit, "-dirty") {
				info.GitCommit += "-dirty"
			}
		}
	}

	return info
}

// String returns a human-readable version string.
func (v VersionInfo) String() string {
	parts := []string{"Version: " + v.Version}

	if v.GitCommit != "unknown" && v.GitCommit != "" {
		parts = append(parts, "Commit: "+v.GitCommit)
	}
	if v.BuildDate != "unknown" && v.BuildDate != "" {
		parts = append(parts, "Built: "+v.BuildDate)
	}
	if v.GoVersion != "" {
		parts = append(parts, "Go: "+v.GoVersion)
	}
	parts = append(parts, "Platform: "+v.Platform)

	return strings.Join(parts, ", ")
}

// UserAgent returns the identifier sent in the X-Mailer header.
func (v VersionInfo) UserAgent() string {
	return fmt.Sprintf("mailkit/%s (%s)", v.Version, v.Platform)
}
