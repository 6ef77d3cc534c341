// Package initcmd implements the init command: creating the workspace
// directories and a starter config file.
package initcmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foreverwb/swing-workflow/internal/app"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
)

// NewCommand creates the init command.
func NewCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace directories and a starter config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			return Run(c.Fs, c.Paths, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// Run creates the workspace under paths.Home and writes a starter
// config unless one already exists.
func Run(fsys afero.Fs, paths app.Paths, force bool) error {
	for _, dir := range []string{paths.Home, paths.Cache} {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	exists, err := afero.Exists(fsys, paths.Config)
	if err != nil {
		return fmt.Errorf("stat %s: %w", paths.Config, err)
	}
	switch {
	case exists && !force:
		fmt.Printf("SKIP: %s (exists; use --force to overwrite)\n", paths.Config)
	default:
		data, err := yaml.Marshal(app.DefaultConfig())
		if err != nil {
			return fmt.Errorf("marshal default config: %w", err)
		}
		if err := afero.WriteFile(fsys, paths.Config, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", paths.Config, err)
		}
		if exists {
			fmt.Printf("WROTE (force): %s\n", paths.Config)
		} else {
			fmt.Printf("WROTE: %s\n", paths.Config)
		}
	}

	fmt.Printf("Initialized %s:\n", paths.Home)
	fmt.Println("  ├── swingq.yaml       # Configuration file")
	fmt.Println("  └── cache/            # Analysis documents, one per symbol per day")
	fmt.Println("      └── journal.ndjson")
	return nil
}
