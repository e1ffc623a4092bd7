package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/stationcube/internal/codec"
	"github.com/derickschaefer/stationcube/internal/store"
)

// Version is the canonical release string. The default here is the fallback
// for `go run` and untagged builds. Production builds overwrite this via:
//
//	go build -ldflags "-X github.com/derickschaefer/stationcube/cmd.Version=v0.2.0"
var Version = "v0.1.0"

// versionInfo is the structured payload for --format json output.
type versionInfo struct {
	Version      string          `json:"version"`
	GoVersion    string          `json:"go_version"`
	GOOS         string          `json:"goos"`
	GOARCH       string          `json:"goarch"`
	StoreSchema  int             `json:"store_schema"`
	Codecs       []string        `json:"codecs"`
	DefaultCodec string          `json:"default_codec"`
	Database     *databaseDetail `json:"database,omitempty"`
}

// databaseDetail describes the configured database when it already exists.
type databaseDetail struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// inspectDatabase reports on the database at path without creating it.
func inspectDatabase(path string) (*databaseDetail, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	st, err := store.Open(path, nil)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	meta, err := st.Meta()
	if err != nil {
		return nil, err
	}
	d := &databaseDetail{Path: path, SchemaVersion: meta.SchemaVersion}
	if !meta.CreatedAt.IsZero() {
		d.CreatedAt = meta.CreatedAt.Format(time.RFC3339)
	}
	return d, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stationcube version, store schema and codecs",
	Long: `Print the stationcube version string, the store schema this build writes
and the payload codecs it can read. When the configured database exists,
its recorded schema version is shown too.

Default output is plain text, suitable for shell scripts and pipelines.
Use --format json for structured output.

Examples:
  stationcube version
  stationcube version --format json
  stationcube version --db ./archive.db --format json | jq .database`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info := versionInfo{
			Version:      Version,
			GoVersion:    runtime.Version(),
			GOOS:         runtime.GOOS,
			GOARCH:       runtime.GOARCH,
			StoreSchema:  store.SchemaVersion,
			Codecs:       codec.Names(),
			DefaultCodec: cfg.Compression,
		}
		if info.Database, err = inspectDatabase(cfg.DBPath); err != nil {
			return fmt.Errorf("reading %s: %w", cfg.DBPath, err)
		}

		switch globalFlags.Format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)

		case "jsonl":
			// Single object, one line.
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
			return nil

		default:
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "stationcube %s\n", info.Version)
			fmt.Fprintf(w, "go      %s\n", info.GoVersion)
			fmt.Fprintf(w, "os      %s/%s\n", info.GOOS, info.GOARCH)
			fmt.Fprintf(w, "schema  %d\n", info.StoreSchema)
			fmt.Fprintf(w, "codecs  %s (default %s)\n", strings.Join(info.Codecs, ","), info.DefaultCodec)
			if d := info.Database; d != nil {
				fmt.Fprintf(w, "db      %s (schema %d)\n", d.Path, d.SchemaVersion)
				if d.SchemaVersion != info.StoreSchema {
					fmt.Fprintf(w, "  ⚠  database schema %d differs from this build's %d\n", d.SchemaVersion, info.StoreSchema)
				}
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
