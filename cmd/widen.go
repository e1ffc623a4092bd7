package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/model"
)

var (
	widenInput longInput
	widenVars  string
)

var widenCmd = &cobra.Command{
	Use:   "widen [FILE]",
	Short: "Pivot a long observation table into a module frame",
	Long: `Widen reads a long table (one row per station, variable, timestamp and value)
and pivots the requested variables into columns: one row per (station, time)
pair, one float column per variable, sorted by name.

A variable observed twice for the same station and time is an error.
Requested variables absent from the input are skipped.`,
	Example: `  stationcube widen obs.csv --vars temp,rh
  stationcube widen obs.jsonl --format csv --out wide.csv
  cat obs.csv | stationcube widen --vars temp
  stationcube widen --dataset lausanne --vars temp,rh --format jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		long, err := widenInput.load(deps, args)
		if err != nil {
			return err
		}
		vars, err := resolveVars(long, deps.Transformer.Columns(), widenVars)
		if err != nil {
			return err
		}

		wide, err := deps.Transformer.ToModuleFrame(long, vars)
		if err != nil {
			return fmt.Errorf("widen: %w", err)
		}
		deps.Logger.Debug("module frame built",
			zap.Int("rows_in", long.Len()),
			zap.Int("rows_out", wide.Len()),
			zap.Int("variables", len(vars)),
		)

		result := newResult(model.KindWide, "widen", wide, wide.Len(), start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(widenCmd)
	widenInput.register(widenCmd)
	widenCmd.Flags().StringVar(&widenVars, "vars", "", "comma-separated variables to keep (default: all)")
}
