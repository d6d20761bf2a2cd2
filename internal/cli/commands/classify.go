package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

type classifyResult struct {
	Source lineage.Handle   `json:"source" yaml:"source"`
	Target lineage.Handle   `json:"target" yaml:"target"`
	EdgeID string           `json:"edgeId" yaml:"edgeId"`
	Kind   lineage.EdgeKind `json:"kind" yaml:"kind"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <graph.json> <source> <target>",
		Short: "Classify a connection as upstream or downstream of the root",
		Long: `Decide which edge list a new connection between two handles belongs to.

A handle is an entity id, or entityId:columnFQN for a column.`,
		Example: `  # Table level connection
  leaplineage classify fact_session.json presto_etl dim_address

  # Column level connection
  leaplineage classify fact_session.json \
    dim_address:sample_data.ecommerce_db.shopify.dim_address.address_id \
    fact_session:sample_data.ecommerce_db.shopify.fact_session.user_id`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envOf(cmd)
			g, err := readGraph(cmd, args[0])
			if err != nil {
				return err
			}

			conn := lineage.Connection{
				Source: lineage.ParseHandle(args[1]),
				Target: lineage.ParseHandle(args[2]),
			}
			res := classifyResult{
				Source: conn.Source,
				Target: conn.Target,
				EdgeID: conn.EdgeID(),
				Kind:   lineage.Classify(g, conn),
			}

			if e.out.Structured() {
				return e.out.Encode(res)
			}
			styles := e.out.Styles()
			e.out.Printf("%s -> %s: %s\n", res.Source, res.Target, styles.EdgeKind(res.Kind).Render(string(res.Kind)))
			e.out.Println(styles.Muted.Render("edge " + res.EdgeID))
			return nil
		},
	}
	return cmd
}
