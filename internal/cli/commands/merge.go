package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	var direction string
	var project bool

	cmd := &cobra.Command{
		Use:   "merge <graph.json> <fetched.json>",
		Short: "Merge the lineage fetched for an expanded node into a graph",
		Long: `Fold the lineage fetched for one node into an existing graph. With
--direction from the fetched upstream edges are merged, with to the
downstream ones. The merged graph is written in the output format.`,
		Example: `  # Merge an upstream expansion
  leaplineage merge fact_session.json dim_address.json --direction from -o json > merged.json

  # Show the projected result instead of the graph
  leaplineage merge fact_session.json dim_address.json --direction to --project`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envOf(cmd)
			dir, err := lineage.ParseDirection(direction)
			if err != nil {
				return err
			}
			g, err := readGraph(cmd, args[0])
			if err != nil {
				return err
			}
			fetched, err := readGraph(cmd, args[1])
			if err != nil {
				return err
			}

			merged := lineage.MergeExpansion(g, fetched, dir)
			e.logger.Debug("merged expansion",
				"direction", dir,
				"nodes_before", len(g.Nodes),
				"nodes_after", len(merged.Nodes))

			if project {
				p := lineage.Project(merged, lineage.ProjectOptions{})
				return renderProjection(e.out, "Lineage of "+lineage.DataLabel(merged.Entity), p, false)
			}
			if e.out.Structured() {
				return e.out.Encode(merged)
			}
			e.out.Printf("%s: %d nodes, %d upstream edges, %d downstream edges\n",
				lineage.DataLabel(merged.Entity), len(merged.Nodes), len(merged.UpstreamEdges), len(merged.DownstreamEdges))
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "from", "Expansion direction (from or to)")
	cmd.Flags().BoolVar(&project, "project", false, "Render the projected graph")
	return cmd
}
