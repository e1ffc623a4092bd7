package cmd

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/config"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/source"
	"github.com/derickschaefer/stationcube/internal/util"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve stations and observations from the source service",
	Long: `Commands for pulling data from the station-data service configured with
--source-url, ` + config.EnvSourceURL + ` or config.json.

fetch stations — the station catalogue (GeoJSON)
fetch obs      — a long observation table, one request per variable

Use --save to keep observations in the local database for offline reshaping.`,
}

// ─── fetch stations ───────────────────────────────────────────────────────────

var fetchStationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Fetch the station catalogue",
	Example: `  stationcube fetch stations
  stationcube fetch stations --format geojson --out stations.geojson`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.ValidateSource(); err != nil {
			return err
		}

		start := time.Now()
		stations, err := deps.Client.GetStations(cmd.Context(), deps.Config.StationIDProperty)
		if err != nil {
			return err
		}
		geoms := make([]orb.Geometry, stations.Len())
		for i := range geoms {
			geoms[i] = stations.At(i)
		}
		g, err := geo.NewFrame(stations.IDs(), geoms)
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindGeoFrame, "fetch stations", g, g.Len(), start))
	},
}

// ─── fetch obs ────────────────────────────────────────────────────────────────

var (
	fetchStart    string
	fetchEnd      string
	fetchVars     string
	fetchStations string
	fetchSave     string
)

var fetchObsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Fetch a long observation table",
	Long: `Fetch observations as a long table. With --vars, one request per variable
is issued concurrently (bounded by --concurrency and --rate); failed
variables are reported as warnings as long as one succeeds.`,
	Example: `  stationcube fetch obs --vars temp,rh --start 2024-01-01 --end 2024-02-01
  stationcube fetch obs --vars temp --stations 06610,06700 --format csv --out obs.csv
  stationcube fetch obs --vars temp,rh --start 2024-01-01 --save lausanne`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.ValidateSource(); err != nil {
			return err
		}

		opts := source.ObsOptions{
			Variables: parseList(fetchVars),
			Stations:  parseList(fetchStations),
		}
		if fetchStart != "" {
			if opts.Start, err = util.ParseTime(fetchStart); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
		}
		if fetchEnd != "" {
			if opts.End, err = util.ParseTime(fetchEnd); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
		}
		if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
			return fmt.Errorf("--end %s is before --start %s", fetchEnd, fetchStart)
		}

		start := time.Now()
		long, warnings, err := batchGetObs(cmd.Context(), deps, opts)
		if err != nil {
			return err
		}
		deps.Logger.Debug("observations fetched",
			zap.Int("rows", long.Len()),
			zap.Int("variables", len(opts.Variables)),
			zap.Int("warnings", len(warnings)),
		)

		if fetchSave != "" {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			info, err := deps.Store.PutDataset(fetchSave, long)
			if err != nil {
				return err
			}
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored dataset %q (%d rows, %s, %s) to %s\n",
					info.Name, info.Rows, info.Codec, humanBytes(int64(info.Bytes)), deps.Config.DBPath)
				for _, w := range warnings {
					fmt.Fprintf(cmd.OutOrStdout(), "  ⚠  %s\n", w)
				}
			}
			return nil
		}

		result := newResult(model.KindLong, "fetch obs", long, long.Len(), start)
		result.Warnings = warnings
		return emit(cmd, deps, result)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchStationsCmd)
	fetchCmd.AddCommand(fetchObsCmd)

	fetchObsCmd.Flags().StringVar(&fetchStart, "start", "", "observation start (YYYY-MM-DD or RFC 3339)")
	fetchObsCmd.Flags().StringVar(&fetchEnd, "end", "", "observation end (YYYY-MM-DD or RFC 3339)")
	fetchObsCmd.Flags().StringVar(&fetchVars, "vars", "", "comma-separated variables (default: all, in one request)")
	fetchObsCmd.Flags().StringVar(&fetchStations, "stations", "", "comma-separated station ids (default: all)")
	fetchObsCmd.Flags().StringVar(&fetchSave, "save", "", "store the table in the local database under this name")
}
