// Package cli assembles the swingq command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/foreverwb/swing-workflow/internal/app"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/analyze"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/backtest"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/history"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/initcmd"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/refresh"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/version"
	"github.com/foreverwb/swing-workflow/internal/pkg/logger"
)

// NewRoot builds the root command. Configuration is loaded once in
// PersistentPreRunE so every subcommand sees the same runtime.
func NewRoot() *cobra.Command {
	var (
		home     string
		cfgFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "swingq",
		Short:        "Swing trade analysis runs for a single symbol",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, paths, err := app.Load(app.LoadOptions{Home: home, File: cfgFile})
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger.SetGlobalLogger(logger.New(logger.Config{
				Level:  cfg.LogLevel,
				Pretty: cfg.LogPretty,
			}))
			common.SetRuntime(cfg, paths)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	cmd.PersistentFlags().StringVar(&home, "home", "", "State directory (default $SWINGQ_HOME or ~/.swingq)")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default <home>/swingq.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, or error")

	cmd.AddCommand(analyze.NewCommand())
	cmd.AddCommand(refresh.NewCommand())
	cmd.AddCommand(history.NewCommand())
	cmd.AddCommand(backtest.NewCommand())
	cmd.AddCommand(initcmd.NewCommand())
	cmd.AddCommand(version.NewCommand())
	return cmd
}

// ExitCode maps an error from Execute to the process exit code: 2 for
// bad input or missing cache, 3 for a stage failure, 4 for cache IO,
// 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case workflow.IsParameterError(err), workflow.IsModeError(err), workflow.IsNotFoundError(err):
		return 2
	case workflow.IsStageError(err):
		return 3
	case workflow.IsCacheIOError(err):
		return 4
	}
	return 1
}
