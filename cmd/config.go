package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/stationcube/internal/codec"
	"github.com/derickschaefer/stationcube/internal/config"
	"github.com/derickschaefer/stationcube/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stationcube configuration",
	Long:  `Read and write stationcube configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit the column names to match your input files,")
		fmt.Fprintln(cmd.OutOrStdout(), "  and set source_url to fetch from a station-data service.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		sourceURL := cfg.SourceURL
		if sourceURL == "" {
			sourceURL = "(not set)"
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			type configOut struct {
				Format            string  `json:"default_format"`
				IDColumn          string  `json:"id_column"`
				TimeColumn        string  `json:"time_column"`
				VariableColumn    string  `json:"variable_column"`
				ValueColumn       string  `json:"value_column"`
				SourceURL         string  `json:"source_url"`
				Timeout           string  `json:"timeout"`
				Concurrency       int     `json:"concurrency"`
				Rate              float64 `json:"rate"`
				DBPath            string  `json:"db_path"`
				Compression       string  `json:"compression"`
				StationIDProperty string  `json:"station_id_property"`
				ConfigFile        string  `json:"config_file"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(configOut{
				Format:            cfg.Format,
				IDColumn:          cfg.Columns.ID,
				TimeColumn:        cfg.Columns.Time,
				VariableColumn:    cfg.Columns.Variable,
				ValueColumn:       cfg.Columns.Value,
				SourceURL:         cfg.SourceURL,
				Timeout:           cfg.Timeout.String(),
				Concurrency:       cfg.Concurrency,
				Rate:              cfg.Rate,
				DBPath:            cfg.DBPath,
				Compression:       cfg.Compression,
				StationIDProperty: cfg.StationIDProperty,
				ConfigFile:        src,
			})
		}

		idProp := cfg.StationIDProperty
		if idProp == "" {
			idProp = "(feature id)"
		}
		rows := [][]string{
			{"default_format", cfg.Format},
			{"id_column", cfg.Columns.ID},
			{"time_column", cfg.Columns.Time},
			{"variable_column", cfg.Columns.Variable},
			{"value_column", cfg.Columns.Value},
			{"source_url", sourceURL},
			{"timeout", cfg.Timeout.String()},
			{"concurrency", fmt.Sprintf("%d", cfg.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"db_path", cfg.DBPath},
			{"compression", cfg.Compression},
			{"station_id_property", idProp},
			{"config_file", src},
		}
		printKVTable(cmd.OutOrStdout(), rows)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val := args[1]

		// Load existing file or start from template
		var f config.File
		existing, path, err := loadConfigFile()
		if err != nil {
			path = config.DefaultConfigFile
			f = config.Template()
		} else {
			f = *existing
		}

		if err := setConfigKey(&f, key, val); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setConfigKey assigns val to the config.json field named key.
func setConfigKey(f *config.File, key, val string) error {
	switch key {
	case "default_format", "format":
		f.DefaultFormat = val
	case "id_column":
		f.IDColumn = val
	case "time_column":
		f.TimeColumn = val
	case "variable_column":
		f.VariableColumn = val
	case "value_column":
		f.ValueColumn = val
	case "source_url":
		f.SourceURL = val
	case "timeout":
		f.Timeout = val
	case "concurrency":
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("concurrency must be a positive integer")
		}
		f.Concurrency = n
	case "rate":
		var r float64
		if _, err := fmt.Sscanf(val, "%f", &r); err != nil || r <= 0 {
			return fmt.Errorf("rate must be a positive number")
		}
		f.Rate = r
	case "db_path":
		f.DBPath = val
	case "compression":
		if _, err := codec.Get(val); err != nil {
			return err
		}
		f.Compression = val
	case "station_id_property":
		f.StationIDProperty = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: default_format, id_column, time_column, variable_column, value_column, source_url, timeout, concurrency, rate, db_path, compression, station_id_property", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// loadConfigFile reads config.json from cwd; used by configSetCmd.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", err
	}
	return &f, path, nil
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
