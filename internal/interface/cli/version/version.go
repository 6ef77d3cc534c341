package version

import (
	"fmt"
	"runtime"

	"github.com/foreverwb/swing-workflow/internal/buildinfo"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, build information, and runtime details",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("swingq version %s\n", buildinfo.GetVersion())
			if commit := buildinfo.GetCommit(); commit != "unknown" {
				fmt.Printf("  Commit:        %s\n", commit)
			}
			fmt.Printf("  Go version:    %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("  Compiler:      %s\n", runtime.Compiler)
		},
	}
}
