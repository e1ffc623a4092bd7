package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/analyze"
	"github.com/derickschaefer/stationcube/internal/app"
	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
)

var cubeCmd = &cobra.Command{
	Use:   "cube",
	Short: "Build and inspect geo-referenced time-series cubes",
	Long: `A cube is a geo-referenced table: one row per station, a geometry column
and, per variable, one time-series container per station.

cube build   — build a cube from a long table and a station catalogue
cube inspect — summarise or fit trends to a saved cube
cube list    — list saved cubes
cube delete  — remove a saved cube`,
}

// ─── cube build ───────────────────────────────────────────────────────────────

var (
	cubeBuildInput    longInput
	cubeBuildVars     string
	cubeBuildStations string
	cubeBuildSave     string
)

var cubeBuildCmd = &cobra.Command{
	Use:   "build [FILE]",
	Short: "Build a geo frame of per-station containers",
	Long: `Build splits the long table by variable, groups each variable's rows into
per-station containers and aligns them with the station geometries.

Rows are the stations seen in the observations, sorted by id. Catalogue
stations without observations are not added. A station without geometry,
or without observations for one variable, gets an empty cell instead of
an error.

Without --stations the catalogue is fetched from the source service.`,
	Example: `  stationcube cube build obs.csv --stations stations.geojson
  stationcube cube build obs.csv --stations stations.geojson --vars temp --format geojson
  stationcube cube build --dataset lausanne --save lausanne-2024`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		long, err := cubeBuildInput.load(deps, args)
		if err != nil {
			return err
		}
		vars, err := resolveVars(long, deps.Transformer.Columns(), cubeBuildVars)
		if err != nil {
			return err
		}
		stations, err := loadStations(cmd.Context(), deps, cubeBuildStations)
		if err != nil {
			return fmt.Errorf("loading stations: %w", err)
		}

		g, err := deps.Transformer.ToTSGeoFrame(long, stations, vars)
		if err != nil {
			return fmt.Errorf("cube build: %w", err)
		}
		deps.Logger.Debug("geo frame built",
			zap.Int("rows_in", long.Len()),
			zap.Int("stations", g.Len()),
			zap.Int("variables", len(g.Columns())),
		)

		result := newResult(model.KindGeoFrame, "cube build", g, g.Len(), start)
		result.Warnings = coverageWarnings(g)

		if cubeBuildSave != "" {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			info, err := deps.Store.PutCube(cubeBuildSave, g)
			if err != nil {
				return err
			}
			deps.Logger.Debug("cube saved", zap.String("name", info.Name), zap.Int("blobs", info.Blobs))
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved cube %q (%d stations, %d containers) to %s\n",
					info.Name, info.Stations, info.Blobs, deps.Config.DBPath)
			}
		}
		return emit(cmd, deps, result)
	},
}

// coverageWarnings reports stations lacking geometry and variables with no
// container at all.
func coverageWarnings(g *geo.Frame) []string {
	var warnings []string
	noGeom := 0
	for i := 0; i < g.Len(); i++ {
		if g.Geometry(i) == nil {
			noGeom++
		}
	}
	if noGeom > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d stations have no geometry", noGeom, g.Len()))
	}
	for _, v := range g.Columns() {
		col, err := g.Column(v)
		if err == nil && col.Valid() == 0 {
			warnings = append(warnings, fmt.Sprintf("variable %q has no observations", v))
		}
	}
	return warnings
}

// ─── cube inspect ─────────────────────────────────────────────────────────────

var (
	cubeInspectSummary bool
	cubeInspectTrend   string
)

var cubeInspectCmd = &cobra.Command{
	Use:   "inspect <NAME>",
	Short: "Show a saved cube, its container summaries or trends",
	Example: `  stationcube cube inspect lausanne-2024
  stationcube cube inspect lausanne-2024 --summary
  stationcube cube inspect lausanne-2024 --trend theil-sen --format csv
  stationcube cube inspect lausanne-2024 --format geojson --out cube.geojson`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		g, err := loadCube(deps, args[0])
		if err != nil {
			return err
		}
		command := "cube inspect " + args[0]

		switch {
		case cubeInspectTrend != "":
			method := analyze.TrendMethod(cubeInspectTrend)
			if method != analyze.TrendLinear && method != analyze.TrendTheilSen {
				return fmt.Errorf("unknown trend method %q (use linear or theil-sen)", cubeInspectTrend)
			}
			trends, warnings, err := analyze.TrendFrame(g, method)
			if err != nil {
				return err
			}
			result := newResult(model.KindTrend, command, trends, len(trends), start)
			result.Warnings = warnings
			return emit(cmd, deps, result)

		case cubeInspectSummary:
			sums, err := analyze.SummarizeFrame(g)
			if err != nil {
				return err
			}
			return emit(cmd, deps, newResult(model.KindSummary, command, sums, len(sums), start))

		default:
			result := newResult(model.KindGeoFrame, command, g, g.Len(), start)
			result.Warnings = coverageWarnings(g)
			return emit(cmd, deps, result)
		}
	},
}

func loadCube(deps *app.Deps, name string) (*geo.Frame, error) {
	if err := deps.RequireStore(); err != nil {
		return nil, err
	}
	g, _, ok, err := deps.Store.GetCube(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cube %q not found\n\n  Use: stationcube cube list", name)
	}
	return g, nil
}

// ─── cube list ────────────────────────────────────────────────────────────────

var cubeListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved cubes",
	Example: `  stationcube cube list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		cubes, err := deps.Store.ListCubes()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(cubes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cubes in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: stationcube cube build <FILE> --save <NAME>")
			return nil
		}
		return emit(cmd, deps, newResult(model.KindCube, "cube list", cubes, len(cubes), start))
	},
}

// ─── cube delete ──────────────────────────────────────────────────────────────

var cubeDeleteCmd = &cobra.Command{
	Use:     "delete <NAME>",
	Short:   "Delete a saved cube",
	Example: `  stationcube cube delete lausanne-2024`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		ok, err := deps.Store.DeleteCube(args[0])
		if err != nil {
			return fmt.Errorf("deleting cube: %w", err)
		}
		if !ok {
			return fmt.Errorf("cube %q not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted cube %s\n", args[0])
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cubeCmd)
	cubeCmd.AddCommand(cubeBuildCmd)
	cubeCmd.AddCommand(cubeInspectCmd)
	cubeCmd.AddCommand(cubeListCmd)
	cubeCmd.AddCommand(cubeDeleteCmd)

	cubeBuildInput.register(cubeBuildCmd)
	cubeBuildCmd.Flags().StringVar(&cubeBuildVars, "vars", "", "comma-separated variables to include (default: all)")
	cubeBuildCmd.Flags().StringVar(&cubeBuildStations, "stations", "", "GeoJSON station catalogue (default: fetch from source)")
	cubeBuildCmd.Flags().StringVar(&cubeBuildSave, "save", "", "save the cube to the local database under this name")

	cubeInspectCmd.Flags().BoolVar(&cubeInspectSummary, "summary", false, "summarise every container")
	cubeInspectCmd.Flags().StringVar(&cubeInspectTrend, "trend", "", "fit a trend to every container: linear|theil-sen")
}
