// Package buildinfo contains build-time information embedded via ldflags
package buildinfo

// Version is the application version, set at build time via ldflags
// Example: go build -ldflags "-X github.com/foreverwb/swing-workflow/internal/buildinfo.Version=v1.0.0"
var Version = "dev"

// Commit is the short git commit hash, set at build time via ldflags
var Commit = ""

// GetVersion returns the current version, with "dev" as default for development builds
func GetVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// GetCommit returns the build commit hash or "unknown" when not embedded
func GetCommit() string {
	if Commit == "" {
		return "unknown"
	}
	return Commit
}
