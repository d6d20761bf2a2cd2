// Package commands implements the leaplineage subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cache"
	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/cli/config"
	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/state"
)

// env bundles what every command reads from its context.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	out    *output.Renderer
}

func envOf(cmd *cobra.Command) env {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.GetConfig(ctx)
	r, ok := output.Lookup(ctx)
	if !ok {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
	}
	return env{
		cfg:    cfg,
		logger: config.GetLogger(ctx),
		out:    r,
	}
}

// readJSONFile decodes a JSON file; "-" reads standard input.
func readJSONFile(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func readGraph(cmd *cobra.Command, path string) (lineage.Graph, error) {
	var g lineage.Graph
	if err := readJSONFile(cmd, path, &g); err != nil {
		return lineage.Graph{}, err
	}
	return g, nil
}

func readColumns(cmd *cobra.Command, path string) (map[string][]lineage.Column, error) {
	if path == "" {
		return nil, nil
	}
	var cols map[string][]lineage.Column
	if err := readJSONFile(cmd, path, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// newClient creates a catalog client from the configuration.
func newClient(cfg *config.Config, logger *slog.Logger) *catalog.Client {
	return catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Token,
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithLogger(logger),
	)
}

// openCache opens the configured lineage cache. The returned close func is
// never nil.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Cache, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache.Backend {
	case intconfig.CacheSQLite:
		store, err := state.Open(ctx, cfg.StatePath, state.WithTTL(cfg.Cache.TTL), state.WithLogger(logger))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open state store: %w", err)
		}
		return store, store.Close, nil
	case intconfig.CacheRedis:
		rc, err := cache.New(ctx, cache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		return rc, rc.Close, nil
	default:
		return nil, noop, nil
	}
}

// newCatalog creates a cache-backed catalog client.
func newCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.CachedClient, func() error, error) {
	c, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return nil, closeCache, err
	}
	return catalog.NewCached(newClient(cfg, logger), c, logger), closeCache, nil
}
