// Package version holds build metadata injected at link time:
//
//	-ldflags "-X commandcenter/internal/version.version=v1.0.0 \
//	          -X commandcenter/internal/version.commit=abc123 \
//	          -X commandcenter/internal/version.buildTime=2026-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
)

//nolint:gochecknoglobals // Set via ldflags during build.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the name shown in version output.
const ApplicationName = "Command Center"

// Defaults used when build metadata is absent.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// Info is a snapshot of the build metadata with defaults applied.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   orDefault(version, DefaultVersion),
		Commit:    orDefault(commit, DefaultCommit),
		BuildTime: orDefault(buildTime, DefaultBuildTime),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// IsDevelopment reports whether this is an unversioned local build.
func (i Info) IsDevelopment() bool {
	return i.Version == DefaultVersion
}

// Write prints the version, either the bare number or the full block.
func (i Info) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, i.Version)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\nVersion: %s\nCommit: %s\nBuilt: %s\n",
		ApplicationName, i.Version, i.Commit, i.BuildTime)
	return err
}

// SetBuildVars overrides the build metadata. Test use only.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}

// ResetBuildVars clears the build metadata. Test use only.
func ResetBuildVars() {
	version = ""
	commit = ""
	buildTime = ""
}
