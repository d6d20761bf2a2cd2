package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// renderProjection writes nodes and edges; positions are shown when
// withPositions is set.
func renderProjection(r *output.Renderer, title string, p lineage.Projection, withPositions bool) error {
	if r.Structured() {
		return r.Encode(p)
	}
	styles := r.Styles()

	r.Println(styles.Header1.Render(title))
	r.Println("")

	nodes := r.Table()
	header := []any{"ID", "LABEL", "TYPE", "KIND", "COLUMNS"}
	if withPositions {
		header = append(header, "X", "Y")
	}
	nodes.AppendHeader(header)
	for _, n := range p.Nodes {
		label := n.Label
		if n.IsRoot {
			label = styles.Root.Render(label)
		}
		row := []any{n.ID, label, lineage.EntityTypeLabel(n.Type), styles.Kind(n.Kind).Render(string(n.Kind)), columnSummary(n)}
		if withPositions {
			row = append(row, fmt.Sprintf("%.0f", n.Position.X), fmt.Sprintf("%.0f", n.Position.Y))
		}
		nodes.AppendRow(row)
	}
	nodes.Render()
	r.Println("")

	if len(p.Edges) == 0 {
		r.Println(styles.Muted.Render("No edges"))
		return nil
	}
	edges := r.Table()
	edges.AppendHeader([]any{"SOURCE", "TARGET", "COLUMNS", "KIND"})
	for _, e := range p.Edges {
		cols := ""
		if e.IsColumnLineage {
			cols = shortName(e.SourceHandle) + " -> " + shortName(e.TargetHandle)
		}
		edges.AppendRow([]any{e.Source, e.Target, cols, string(e.Kind)})
	}
	edges.Render()
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d edges", len(p.Nodes), len(p.Edges))))
	return nil
}

// columnSummary lists a node's column kinds, e.g. "2 input, 1 output".
func columnSummary(n lineage.RenderNode) string {
	if len(n.Columns) == 0 {
		return ""
	}
	counts := map[lineage.NodeKind]int{}
	for _, c := range n.Columns {
		counts[c.Connectivity]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[lineage.NodeKind(k)], k))
	}
	return strings.Join(parts, ", ")
}

// shortName is the last part of a fully qualified name.
func shortName(fqn string) string {
	parts := lineage.SplitFQN(fqn)
	if len(parts) == 0 {
		return fqn
	}
	return parts[len(parts)-1]
}
