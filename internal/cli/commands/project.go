package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// ProjectOptions holds options for the project and layout commands.
type ProjectOptions struct {
	Columns  string
	EditMode bool
	Watch    bool
}

// NewProjectCommand creates the project command.
func NewProjectCommand() *cobra.Command {
	opts := &ProjectOptions{}

	cmd := &cobra.Command{
		Use:   "project <graph.json>",
		Short: "Project a lineage graph into render nodes and edges",
		Long: `Classify every entity of a lineage graph as input, output or default,
compute column connectivity and produce the de-duplicated edge list.

The graph is the JSON lineage response of the catalog. Use "-" to read it
from standard input.`,
		Example: `  # Project a saved lineage response
  leaplineage project fact_session.json

  # Include catalog columns and emit YAML
  leaplineage project fact_session.json --columns columns.json -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFile(cmd, args[0], opts)
			if err != nil {
				return err
			}
			return renderProjection(envOf(cmd).out, "Lineage of "+p.root, p.Projection, false)
		},
	}

	addProjectFlags(cmd, opts)
	return cmd
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand() *cobra.Command {
	opts := &ProjectOptions{}

	cmd := &cobra.Command{
		Use:   "layout <graph.json>",
		Short: "Project a lineage graph and position its nodes",
		Long: `Project a lineage graph and assign every node a position with a layered
layout. The direction comes from --direction or layout.direction in the
config file.`,
		Example: `  # Top-to-bottom layout as JSON
  leaplineage layout fact_session.json --direction TB -o json

  # Re-run whenever the file changes
  leaplineage layout fact_session.json --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runLayout(cmd, args[0], opts); err != nil {
				return err
			}
			if !opts.Watch || args[0] == "-" {
				return nil
			}
			return watchFile(cmd.Context(), args[0], func() {
				if err := runLayout(cmd, args[0], opts); err != nil {
					envOf(cmd).out.Warnf("layout failed: %v", err)
				}
			}, envOf(cmd).logger.Debug)
		},
	}

	addProjectFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-run on file changes")
	return cmd
}

func addProjectFlags(cmd *cobra.Command, opts *ProjectOptions) {
	cmd.Flags().StringVar(&opts.Columns, "columns", "", "JSON file of catalog columns keyed by entity id")
	cmd.Flags().BoolVar(&opts.EditMode, "edit", false, "Project in edit mode (every node default)")
}

type projected struct {
	lineage.Projection
	root string
}

func projectFile(cmd *cobra.Command, path string, opts *ProjectOptions) (projected, error) {
	g, err := readGraph(cmd, path)
	if err != nil {
		return projected{}, err
	}
	cols, err := readColumns(cmd, opts.Columns)
	if err != nil {
		return projected{}, err
	}
	p := lineage.Project(g, lineage.ProjectOptions{Columns: cols, EditMode: opts.EditMode})
	return projected{Projection: p, root: lineage.DataLabel(g.Entity)}, nil
}

func runLayout(cmd *cobra.Command, path string, opts *ProjectOptions) error {
	e := envOf(cmd)
	p, err := projectFile(cmd, path, opts)
	if err != nil {
		return err
	}

	start := time.Now()
	p.Nodes = layout.Layout(p.Nodes, p.Edges, e.cfg.Layout)
	e.logger.Debug("laid out lineage", "nodes", len(p.Nodes), "edges", len(p.Edges), "duration", time.Since(start))

	return renderProjection(e.out, fmt.Sprintf("Layout of %s (%s)", p.root, e.cfg.Layout.Direction), p.Projection, true)
}

// watchFile calls onChange after path is written, debounced, until ctx is
// done. The parent directory is watched so editors that replace the file
// are followed.
func watchFile(ctx context.Context, path string, onChange func(), debug func(string, ...any)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	// Debounce timer
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != abs {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				debug("file changed, re-running", "file", event.Name)
				onChange()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug("watcher error", "error", err)
		}
	}
}
