// Package app wires together configuration, the source client, the logger,
// the reshaping layer and the local store into a single Deps struct that
// commands receive at runtime.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/derickschaefer/stationcube/internal/codec"
	"github.com/derickschaefer/stationcube/internal/config"
	"github.com/derickschaefer/stationcube/internal/source"
	"github.com/derickschaefer/stationcube/internal/store"
	"github.com/derickschaefer/stationcube/internal/transform"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore is called.
type Deps struct {
	Config      *config.Config
	Client      *source.Client
	Logger      *zap.Logger
	Transformer *transform.Transformer
	Store       *store.Store
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) (*Deps, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	client := source.NewClient(
		cfg.SourceURL,
		cfg.Timeout,
		cfg.Rate,
		source.WithLogger(logger.Named("source")),
	)
	return &Deps{
		Config:      cfg,
		Client:      client,
		Logger:      logger,
		Transformer: transform.New(cfg.Columns),
	}, nil
}

// newLogger returns a no-op logger unless --debug or --verbose is set.
// Logs go to stderr so they never mix with rendered output.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	switch {
	case cfg.Debug:
		return zap.NewDevelopment()
	case cfg.Verbose:
		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stderr"}
		return zc.Build()
	default:
		return zap.NewNop(), nil
	}
}

// RequireStore opens the local database.
// Calling it twice is a no-op.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	if d.Config.DBPath == "" {
		return fmt.Errorf("no database path: set --db or %s", config.EnvDBPath)
	}
	c, err := codec.Get(d.Config.Compression)
	if err != nil {
		return fmt.Errorf("store compression: %w", err)
	}
	s, err := store.Open(d.Config.DBPath, c)
	if err != nil {
		return err
	}
	d.Logger.Debug("store opened",
		zap.String("path", d.Config.DBPath),
		zap.String("codec", c.Name()),
	)
	d.Store = s
	return nil
}

// Close releases the store and flushes the logger.
func (d *Deps) Close() error {
	_ = d.Logger.Sync()
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}
