// Package backtest implements the backtest command: replaying a
// historical cached analysis and grading it against what happened.
package backtest

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/history"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/common"
	"github.com/foreverwb/swing-workflow/internal/interface/cli/render"
)

const dateLayout = "2006-01-02"

// NewCommand creates the backtest command.
func NewCommand() *cobra.Command {
	var (
		symbol     string
		date       string
		input      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the newest cached run at or before a test date",
		Long: `Replay the stored market readings through the current pipeline and
report how far today's engine drifts from the score the run recorded.
Pass actual readings with --input to grade the stored view against what
the market really did. Backtests never write to the cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var testDate time.Time
			if date != "" {
				parsed, err := time.Parse(dateLayout, date)
				if err != nil {
					return workflow.NewParameterError(
						fmt.Sprintf("bad --date %q, want YYYY-MM-DD", date)).WithDetail("date", date)
				}
				testDate = parsed
			}

			c, err := common.InitializeContainer()
			if err != nil {
				return err
			}

			var actuals map[string]any
			if input != "" {
				actuals, err = common.LoadParams(c.Fs, input)
				if err != nil {
					return err
				}
			}

			res, err := c.Backtest.Execute(cmd.Context(), history.Request{
				Symbol:       symbol,
				TestDate:     testDate,
				Actuals:      actuals,
				ThresholdPct: c.Config.Compare.MaterialChangePct,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return render.JSON(os.Stdout, render.NewBacktestOutput(res))
			}
			render.Backtest(os.Stdout, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Ticker symbol to backtest")
	cmd.Flags().StringVar(&date, "date", "", "Test date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Actual market readings JSON file, or a directory holding params.json")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the backtest result as JSON")

	return cmd
}
