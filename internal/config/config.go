// Package config handles loading and resolving stationcube configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--source-url, --db)
//  2. Environment variables STATIONCUBE_SOURCE_URL and STATIONCUBE_DB_PATH
//  3. config.json in the current working directory
//  4. Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/derickschaefer/stationcube/internal/codec"
	"github.com/derickschaefer/stationcube/internal/transform"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultFormat      = "table"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	DefaultRate        = 5.0
	DefaultCompression = codec.Zstd
	EnvSourceURL       = "STATIONCUBE_SOURCE_URL"
	EnvDBPath          = "STATIONCUBE_DB_PATH"
)

// File is the on-disk representation of config.json.
type File struct {
	DefaultFormat     string  `json:"default_format"`
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
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Format            string
	Columns           transform.Columns
	SourceURL         string
	Timeout           time.Duration
	Concurrency       int
	Rate              float64
	DBPath            string
	Compression       string
	StationIDProperty string
	ConfigPath        string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Overrides carries the CLI flag values that take part in resolution.
// Empty fields do not override.
type Overrides struct {
	SourceURL string
	DBPath    string
}

// Load resolves configuration from all sources.
func Load(flags Overrides) (*Config, error) {
	cfg := &Config{
		Format:      DefaultFormat,
		Columns:     transform.New(transform.Columns{}).Columns(),
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
		Compression: DefaultCompression,
	}

	// Layer 1: config.json (lowest priority)
	f, path, err := loadFile()
	switch {
	case err == nil:
		applyFile(cfg, f, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: environment variables
	if v := os.Getenv(EnvSourceURL); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}

	// Layer 3: CLI flags (highest priority)
	if flags.SourceURL != "" {
		cfg.SourceURL = flags.SourceURL
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".stationcube", "stationcube.db")
		}
	}

	return cfg, nil
}

// Validate returns an error if a resolved value cannot be used.
func (c *Config) Validate() error {
	if _, err := codec.Get(c.Compression); err != nil {
		return fmt.Errorf("config: compression: %w", err)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("config: rate must be positive, got %g", c.Rate)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ValidateSource returns an error if no station-data service is configured.
func (c *Config) ValidateSource() error {
	if c.SourceURL == "" {
		return errors.New(
			"source URL not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        stationcube --source-url https://host/api/ ...\n" +
				"  2. Environment:     export " + EnvSourceURL + "=https://host/api/\n" +
				"  3. config.json:     {\"source_url\": \"https://host/api/\"}",
		)
	}
	return nil
}

// loadFile attempts to read config.json from the current working directory.
// A missing file yields an error matching os.ErrNotExist.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	cfg.Columns = transform.New(transform.Columns{
		ID:       f.IDColumn,
		Time:     f.TimeColumn,
		Variable: f.VariableColumn,
		Value:    f.ValueColumn,
	}).Columns()
	if f.SourceURL != "" {
		cfg.SourceURL = f.SourceURL
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.Compression != "" {
		cfg.Compression = f.Compression
	}
	if f.StationIDProperty != "" {
		cfg.StationIDProperty = f.StationIDProperty
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `stationcube config init`.
func Template() File {
	return File{
		DefaultFormat:  DefaultFormat,
		IDColumn:       transform.DefaultIDCol,
		TimeColumn:     transform.DefaultTimeCol,
		VariableColumn: transform.DefaultVariableCol,
		ValueColumn:    transform.DefaultValueCol,
		Timeout:        "30s",
		Concurrency:    DefaultConcurrency,
		Rate:           DefaultRate,
		Compression:    DefaultCompression,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
