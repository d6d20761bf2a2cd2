package lineage

// NewEdge is a connection drawn between two entities, optionally between
// two of their columns.
type NewEdge struct {
	From       EntityRef `json:"from" yaml:"from" validate:"required"`
	To         EntityRef `json:"to" yaml:"to" validate:"required"`
	FromColumn string    `json:"fromColumn,omitempty" yaml:"fromColumn,omitempty"`
	ToColumn   string    `json:"toColumn,omitempty" yaml:"toColumn,omitempty"`
	SQLQuery   string    `json:"sqlQuery,omitempty" yaml:"sqlQuery,omitempty"`
}

// Connection returns the handles of the drawn edge.
func (n NewEdge) Connection() Connection {
	if n.FromColumn != "" && n.ToColumn != "" {
		return Connection{
			Source: ColumnHandle(n.From.ID, n.FromColumn),
			Target: ColumnHandle(n.To.ID, n.ToColumn),
		}
	}
	return Connection{Source: EntityHandle(n.From.ID), Target: EntityHandle(n.To.ID)}
}

// AddEdge adds the drawn edge to g and returns the new graph together with
// the classification that decided which edge list received it.
//
// An edge for the same pair is updated in place: the column mapping is
// merged into its detail. A NoStream edge goes to whichever list already
// holds the pair, otherwise to the downstream edges.
func AddEdge(g Graph, ne NewEdge) (Graph, EdgeKind) {
	out := g.Clone()
	kind := Classify(g, ne.Connection())

	for _, ref := range []EntityRef{ne.From, ne.To} {
		if ref.ID == "" {
			continue
		}
		if _, ok := out.Lookup(ref.ID); !ok {
			out.Nodes = append(out.Nodes, ref)
		}
	}

	switch kind {
	case UpStream:
		out.UpstreamEdges = upsertEdge(out.UpstreamEdges, ne)
	case DownStream:
		out.DownstreamEdges = upsertEdge(out.DownstreamEdges, ne)
	default:
		if _, ok := FindEdge(out.UpstreamEdges, ne.From.ID, ne.To.ID); ok {
			out.UpstreamEdges = upsertEdge(out.UpstreamEdges, ne)
		} else {
			out.DownstreamEdges = upsertEdge(out.DownstreamEdges, ne)
		}
	}
	return out, kind
}

func upsertEdge(edges []Edge, ne NewEdge) []Edge {
	for i, e := range edges {
		if e.FromEntity != ne.From.ID || e.ToEntity != ne.To.ID {
			continue
		}
		edges[i].LineageDetails = mergeDetail(e.LineageDetails, ne)
		return edges
	}
	return append(edges, Edge{
		FromEntity:     ne.From.ID,
		ToEntity:       ne.To.ID,
		LineageDetails: mergeDetail(nil, ne),
	})
}

func mergeDetail(existing *LineageDetail, ne NewEdge) *LineageDetail {
	hasColumns := ne.FromColumn != "" && ne.ToColumn != ""
	if existing == nil && !hasColumns && ne.SQLQuery == "" {
		return nil
	}

	var d LineageDetail
	if existing != nil {
		d = existing.Clone()
	}
	if d.ColumnsLineage == nil {
		d.ColumnsLineage = []ColumnMapping{}
	}
	if ne.SQLQuery != "" {
		d.SQLQuery = ne.SQLQuery
	}
	if hasColumns {
		d = AddColumnMapping(d, ne.FromColumn, ne.ToColumn)
	}
	return &d
}

// RemoveEdge removes every edge from fromID to toID in both directions'
// lists.
func RemoveEdge(g Graph, fromID, toID string) Graph {
	keep := func(e Edge) bool {
		return e.FromEntity != fromID || e.ToEntity != toID
	}
	out := g.Clone()
	out.UpstreamEdges = filterEdges(out.UpstreamEdges, keep)
	out.DownstreamEdges = filterEdges(out.DownstreamEdges, keep)
	return out
}

// UpdateColumnMapping removes one column mapping from the edge holding it.
// The edge itself stays even when no column lineage is left.
func UpdateColumnMapping(g Graph, sel ColumnSelection) Graph {
	out := g.Clone()
	apply := func(edges []Edge) []Edge {
		e, ok := FindEdge(edges, sel.Source, sel.Target)
		if !ok {
			return edges
		}
		var d LineageDetail
		if e.LineageDetails != nil {
			d = *e.LineageDetails
		}
		return ApplyColumnMapping(edges, sel, RemoveColumnMapping(d, sel))
	}
	out.UpstreamEdges = apply(out.UpstreamEdges)
	out.DownstreamEdges = apply(out.DownstreamEdges)
	return out
}

// RemoveNode removes a node and every edge touching it. The root cannot be
// removed.
func RemoveNode(g Graph, id string) Graph {
	out := g.Clone()
	if id == "" || id == g.Entity.ID {
		return out
	}

	nodes := out.Nodes[:0]
	for _, n := range out.Nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	out.Nodes = nodes

	keep := func(e Edge) bool {
		return e.FromEntity != id && e.ToEntity != id
	}
	out.UpstreamEdges = filterEdges(out.UpstreamEdges, keep)
	out.DownstreamEdges = filterEdges(out.DownstreamEdges, keep)
	return out
}

// RemovedEdgeEndpoints resolves the entities at both ends of a render edge
// that is about to be removed. An endpoint that is not in the graph falls
// back to selected, or to the root when nothing is selected.
func RemovedEdgeEndpoints(g Graph, edge RenderEdge, selected EntityRef) (from, to EntityRef) {
	fallback := selected
	if fallback.IsZero() {
		fallback = g.Entity
	}
	resolve := func(id string) EntityRef {
		if ref, ok := g.Lookup(id); ok {
			return ref
		}
		return fallback
	}
	return resolve(edge.Source), resolve(edge.Target)
}

func filterEdges(edges []Edge, keep func(Edge) bool) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
