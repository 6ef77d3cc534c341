// Package refresh implements the refresh command: an intraday re-read
// that compares fresh market readings against today's cached document.
package refresh

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/render"
)

// NewCommand creates the refresh command.
func NewCommand() *cobra.Command {
	var (
		symbol     string
		input      string
		cacheFile  string
		setFlags   []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read intraday market data and compare against the cached run",
		Long: `Merge fresh market readings over today's cached document, rerun the
pipeline with a comparison stage, and append an intraday snapshot. The
document must already exist; run analyze --mode full first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := common.InitializeContainer()
			if err != nil {
				return err
			}

			marketParams, dynParams, err := common.BuildRunInput(c.Fs, c.Config, input, setFlags, false)
			if err != nil {
				return err
			}

			res, err := c.Runner.Execute(cmd.Context(), run.Request{
				Symbol:       symbol,
				Mode:         workflow.ModeRefresh,
				MarketParams: marketParams,
				DynParams:    dynParams,
				CacheFile:    cacheFile,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return render.JSON(os.Stdout, render.NewRunOutput(res))
			}
			render.Run(os.Stdout, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Ticker symbol to refresh")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Market readings JSON file, or a directory holding params.json")
	cmd.Flags().StringVar(&cacheFile, "cache-file", "", "Cache file name (default SYMBOL_YYYYMMDD.json)")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "Override a derived parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run result as JSON")

	return cmd
}
