package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/state"
)

// fetchColumnLimit bounds concurrent column requests.
const fetchColumnLimit = 8

// FetchOptions holds options for the fetch command.
type FetchOptions struct {
	Upstream   int
	Downstream int
	Out        string
	ColumnsOut string
	List       bool
	Clear      bool
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand() *cobra.Command {
	opts := &FetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <type> <fqn>",
		Short: "Fetch the lineage of an entity from the catalog",
		Long: `Fetch the lineage of an entity and the columns of every table in it.
Responses are cached in the configured cache backend.

--out and --columns-out save the responses as JSON for the project, layout
and merge commands.`,
		Example: `  # Fetch and show the lineage of a table
  leaplineage fetch table sample_data.ecommerce_db.shopify.fact_session

  # Save the responses for offline use
  leaplineage fetch table sample_data.ecommerce_db.shopify.fact_session \
    --out fact_session.json --columns-out columns.json

  # List cached responses
  leaplineage fetch --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.List || opts.Clear {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List || opts.Clear {
				return runStoredGraphs(cmd, opts)
			}
			return runFetch(cmd, lineage.EntityType(args[0]), args[1], opts)
		},
	}

	cmd.Flags().IntVar(&opts.Upstream, "upstream", 0, "Upstream depth (default from config)")
	cmd.Flags().IntVar(&opts.Downstream, "downstream", 0, "Downstream depth (default from config)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the lineage response to a file")
	cmd.Flags().StringVar(&opts.ColumnsOut, "columns-out", "", "Write the fetched columns to a file")
	cmd.Flags().BoolVar(&opts.List, "list", false, "List cached lineage responses")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "Clear cached lineage responses")
	return cmd
}

func runFetch(cmd *cobra.Command, entityType lineage.EntityType, fqn string, opts *FetchOptions) error {
	e := envOf(cmd)
	ctx := cmd.Context()

	client, closeCache, err := newCatalog(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeCache() }()

	up, down := e.cfg.Catalog.UpstreamDepth, e.cfg.Catalog.DownstreamDepth
	if opts.Upstream > 0 {
		up = opts.Upstream
	}
	if opts.Downstream > 0 {
		down = opts.Downstream
	}

	start := time.Now()
	g, err := client.GetLineage(ctx, entityType, fqn, up, down)
	if err != nil {
		return fmt.Errorf("failed to fetch lineage of %s: %w", fqn, err)
	}
	cols, err := fetchAllColumns(ctx, client, g.Entities())
	if err != nil {
		return err
	}
	e.logger.Debug("fetched lineage",
		"fqn", fqn,
		"nodes", len(g.Nodes),
		"columns", len(cols),
		"duration", time.Since(start))

	if opts.Out != "" {
		if err := writeJSONFile(opts.Out, g); err != nil {
			return err
		}
	}
	if opts.ColumnsOut != "" {
		if err := writeJSONFile(opts.ColumnsOut, cols); err != nil {
			return err
		}
	}

	if e.out.Structured() {
		return e.out.Encode(g)
	}
	p := lineage.Project(g, lineage.ProjectOptions{Columns: cols})
	return renderProjection(e.out, "Lineage of "+lineage.DataLabel(g.Entity), p, false)
}

// fetchAllColumns fetches the columns of every table entity.
func fetchAllColumns(ctx context.Context, client *catalog.CachedClient, entities []lineage.EntityRef) (map[string][]lineage.Column, error) {
	var mu sync.Mutex
	out := make(map[string][]lineage.Column)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchColumnLimit)
	for _, ent := range entities {
		if ent.Type != lineage.EntityTable {
			continue
		}
		g.Go(func() error {
			cols, err := client.GetColumns(ctx, ent.Type, ent.ID)
			if err != nil {
				return fmt.Errorf("failed to fetch columns of %s: %w", lineage.DataLabel(ent), err)
			}
			mu.Lock()
			out[ent.ID] = cols
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func runStoredGraphs(cmd *cobra.Command, opts *FetchOptions) error {
	e := envOf(cmd)
	store, err := state.Open(cmd.Context(), e.cfg.StatePath, state.WithLogger(e.logger))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if opts.Clear {
		if err := store.ClearGraphs(cmd.Context()); err != nil {
			return err
		}
		e.out.Println(e.out.Styles().Success.Render("Cleared cached lineage"))
		return nil
	}

	records, err := store.ListGraphs(cmd.Context())
	if err != nil {
		return err
	}
	if e.out.Structured() {
		return e.out.Encode(records)
	}
	if len(records) == 0 {
		e.out.Println(e.out.Styles().Muted.Render("No cached lineage"))
		return nil
	}

	t := e.out.Table()
	t.AppendHeader([]any{"TYPE", "FQN", "UP", "DOWN", "ENTITY", "FETCHED"})
	for _, r := range records {
		t.AppendRow([]any{r.Key.Type, r.Key.FQN, r.Key.UpstreamDepth, r.Key.DownstreamDepth, r.EntityID, r.FetchedAt.Format(time.RFC3339)})
	}
	t.Render()
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
