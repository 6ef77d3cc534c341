package common

import (
	"github.com/foreverwb/swing-workflow/internal/app"
)

// globalConfig and globalPaths hold the runtime loaded by the root command
// for all subcommands.
var (
	globalConfig app.Config
	globalPaths  app.Paths
	runtimeSet   bool
)

// SetRuntime stores the loaded configuration and resolved paths.
func SetRuntime(cfg app.Config, paths app.Paths) {
	globalConfig = cfg
	globalPaths = paths
	runtimeSet = true
}

// Runtime returns the loaded configuration and paths. Commands invoked
// outside the root (tests, mostly) fall back to defaults.
func Runtime() (app.Config, app.Paths) {
	if !runtimeSet {
		return app.DefaultConfig(), app.ResolvePaths("")
	}
	return globalConfig, globalPaths
}
