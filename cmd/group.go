package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/analyze"
	"github.com/derickschaefer/stationcube/internal/model"
)

var (
	groupInput longInput
	groupVars  string
)

var groupCmd = &cobra.Command{
	Use:   "group [FILE]",
	Short: "Group a long table into one time-series container per station",
	Long: `Group widens the long table, then splits the module frame by station into
time-indexed containers keyed by station id. The output summarises each
container column: count, missing values, mean, spread and time range.`,
	Example: `  stationcube group obs.csv --vars temp,rh
  stationcube group --dataset lausanne --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		long, err := groupInput.load(deps, args)
		if err != nil {
			return err
		}
		vars, err := resolveVars(long, deps.Transformer.Columns(), groupVars)
		if err != nil {
			return err
		}

		wide, err := deps.Transformer.ToModuleFrame(long, vars)
		if err != nil {
			return fmt.Errorf("group: %w", err)
		}
		series, err := deps.Transformer.TSSeries(wide)
		if err != nil {
			return fmt.Errorf("group: %w", err)
		}
		deps.Logger.Debug("containers built",
			zap.Int("rows_in", long.Len()),
			zap.Int("stations", series.Len()),
		)

		sums, err := analyze.SummarizeSeries(series)
		if err != nil {
			return err
		}
		result := newResult(model.KindSummary, "group", sums, series.Len(), start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupInput.register(groupCmd)
	groupCmd.Flags().StringVar(&groupVars, "vars", "", "comma-separated variables to keep (default: all)")
}
