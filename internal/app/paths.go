package app

import (
	"os"
	"path/filepath"
)

// DefaultHomeName is the per-user state directory created under $HOME.
const DefaultHomeName = ".swingq"

// Paths holds all resolved locations under the swingq home directory.
type Paths struct {
	Home  string // ~/.swingq
	Cache string // ~/.swingq/cache

	// Key files
	Config  string // ~/.swingq/swingq.yaml
	Journal string // ~/.swingq/cache/journal.ndjson
}

// ResolvePaths builds the path set rooted at home. An empty home falls
// back to DefaultHome.
func ResolvePaths(home string) Paths {
	if home == "" {
		home = DefaultHome()
	}

	p := Paths{
		Home:  home,
		Cache: filepath.Join(home, "cache"),
	}

	p.Config = filepath.Join(p.Home, "swingq.yaml")
	p.Journal = filepath.Join(p.Cache, "journal.ndjson")

	return p
}

// DefaultHome returns $SWINGQ_HOME when set, otherwise ~/.swingq. When the
// user home directory cannot be determined a relative .swingq is used so
// the CLI still works in constrained environments.
func DefaultHome() string {
	if h := os.Getenv("SWINGQ_HOME"); h != "" {
		return h
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return DefaultHomeName
	}
	return filepath.Join(userHome, DefaultHomeName)
}
