// Package analyze implements the analyze command: a full or update
// analysis run for one symbol.
package analyze

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/render"
)

// NewCommand creates the analyze command.
func NewCommand() *cobra.Command {
	var (
		symbol     string
		mode       string
		input      string
		cacheFile  string
		overwrite  bool
		setFlags   []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a full or update analysis for one symbol",
		Long: `Run the analysis pipeline for one symbol.

A full run needs the complete market readings from --input and replaces
nothing unless --overwrite is set. An update run merges partial readings
over the cached document and keeps the stored strategy when the score
barely moves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := workflow.ParseMode(mode)
			if err != nil {
				return err
			}
			if m == workflow.ModeRefresh || m == workflow.ModeBacktest {
				return workflow.NewModeError(mode, "use the refresh or backtest command instead")
			}

			c, err := common.InitializeContainer()
			if err != nil {
				return err
			}

			marketParams, dynParams, err := common.BuildRunInput(c.Fs, c.Config, input, setFlags, m == workflow.ModeFull)
			if err != nil {
				return err
			}

			res, err := c.Runner.Execute(cmd.Context(), run.Request{
				Symbol:       symbol,
				Mode:         m,
				MarketParams: marketParams,
				DynParams:    dynParams,
				CacheFile:    cacheFile,
				Overwrite:    overwrite,
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

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Ticker symbol to analyze")
	cmd.Flags().StringVar(&mode, "mode", string(workflow.ModeFull), "Run mode: full or update")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Market readings JSON file, or a directory holding params.json")
	cmd.Flags().StringVar(&cacheFile, "cache-file", "", "Cache file name (default SYMBOL_YYYYMMDD.json)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing cache document on a full run")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "Override a derived parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run result as JSON")

	return cmd
}
