// Package history implements the history command: a listing of the
// cached analysis documents on disk.
package history

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/render"
	"github.com/foreverwb/swing-workflow/internal/pkg/symbol"
)

// NewCommand creates the history command.
func NewCommand() *cobra.Command {
	var (
		sym        string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List cached analysis runs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if sym != "" {
				normalized, err := symbol.Normalize(sym)
				if err != nil {
					return err
				}
				filter = normalized
			}

			c, err := common.InitializeContainer()
			if err != nil {
				return err
			}

			entries, err := c.Reader.List(filter)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			if jsonOutput {
				return render.JSON(os.Stdout, entries)
			}
			render.History(os.Stdout, entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sym, "symbol", "s", "", "Only list runs for this symbol")
	cmd.Flags().IntVar(&limit, "limit", 0, "Keep only the newest N entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the listing as JSON")

	return cmd
}
