package dag

import "github.com/leapstack-labs/leaplineage/internal/lineage"

// FromLineage indexes a lineage graph. Node data is the lineage.EntityRef.
// Edges whose endpoints are unknown, and self-loops, are left out.
func FromLineage(g lineage.Graph) *Graph {
	out := NewGraph()
	for _, e := range g.Entities() {
		out.AddNode(e.ID, e)
	}
	for _, e := range g.Edges() {
		_ = out.AddEdge(e.FromEntity, e.ToEntity)
	}
	return out
}

// FromProjection indexes the table-level edges of a projection.
func FromProjection(p lineage.Projection) *Graph {
	out := NewGraph()
	for _, n := range p.Nodes {
		out.AddNode(n.ID, n)
	}
	for _, e := range p.Edges {
		if e.IsColumnLineage {
			continue
		}
		_ = out.AddEdge(e.Source, e.Target)
	}
	return out
}
