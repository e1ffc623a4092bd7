// Package cmd implements the stationcube CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/stationcube/internal/app"
	"github.com/derickschaefer/stationcube/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	SourceURL   string
	DBPath      string
	Format      string
	Out         string
	Timeout     string
	Concurrency int
	Rate        float64
	Compression string
	IDCol       string
	TimeCol     string
	VariableCol string
	ValueCol    string
	Quiet       bool
	Verbose     bool
	Debug       bool
}

// rootCmd is the base command. Running `stationcube` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "stationcube",
	Short: "stationcube — reshape long station observations into time-series cubes",
	Long: `stationcube turns long-format weather station observations (one row per
station, variable, timestamp and value) into analysis-ready shapes:

  module frames   one row per (station, time), one column per variable
  series          one time-series container per station
  cubes           a geo-referenced table: station geometry plus one
                  time-series container per variable

Input comes from CSV, JSONL or Arrow IPC files, or from a station-data
service over HTTP. Results can be kept in a local database.

Quick start:
  stationcube config init                              # create a config.json
  stationcube widen obs.csv --vars temp,rh             # long → module frame
  stationcube cube build obs.csv --stations st.geojson # long → geo frame`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Overrides{
		SourceURL: globalFlags.SourceURL,
		DBPath:    globalFlags.DBPath,
	})
	if err != nil {
		return nil, err
	}

	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.Compression != "" {
		cfg.Compression = globalFlags.Compression
	}
	if globalFlags.IDCol != "" {
		cfg.Columns.ID = globalFlags.IDCol
	}
	if globalFlags.TimeCol != "" {
		cfg.Columns.Time = globalFlags.TimeCol
	}
	if globalFlags.VariableCol != "" {
		cfg.Columns.Variable = globalFlags.VariableCol
	}
	if globalFlags.ValueCol != "" {
		cfg.Columns.Value = globalFlags.ValueCol
	}
	return cfg, cfg.Validate()
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.SourceURL, "source-url", "",
		"station-data service base URL (overrides env "+config.EnvSourceURL+" and config.json)")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"local database path (overrides env "+config.EnvDBPath+" and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md|geojson (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel requests for batch fetches (default: 4)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max requests per second to the source service (default: 5.0)")
	pf.StringVar(&globalFlags.Compression, "compression", "",
		"codec for new store payloads: none|zstd|s2|lz4 (default: zstd)")
	pf.StringVar(&globalFlags.IDCol, "id-col", "",
		"name of the station id column (default: id)")
	pf.StringVar(&globalFlags.TimeCol, "time-col", "",
		"name of the timestamp column (default: time)")
	pf.StringVar(&globalFlags.VariableCol, "variable-col", "",
		"name of the variable column (default: variable)")
	pf.StringVar(&globalFlags.ValueCol, "value-col", "",
		"name of the value column (default: value)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output and log to stderr")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log reshape stages and HTTP requests to stderr")
}
