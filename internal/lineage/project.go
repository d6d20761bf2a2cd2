package lineage

// NodeKind is the directional role of a node or the connectivity of a column.
type NodeKind string

// Node kinds.
const (
	KindInput        NodeKind = "input"
	KindOutput       NodeKind = "output"
	KindDefault      NodeKind = "default"
	KindNotConnected NodeKind = "not-connected"
)

// Position is the top-left corner of a node box.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// RenderColumn is a column of a render node with its connectivity.
type RenderColumn struct {
	Column       `yaml:",inline"`
	Connectivity NodeKind `json:"connectivity" yaml:"connectivity"`
}

// RenderNode is the display-ready projection of an entity.
type RenderNode struct {
	ID                  string                  `json:"id" yaml:"id"`
	Type                EntityType              `json:"type" yaml:"type"`
	Label               string                  `json:"label" yaml:"label"`
	Position            Position                `json:"position" yaml:"position"`
	Kind                NodeKind                `json:"kind" yaml:"kind"`
	IsRoot              bool                    `json:"isRoot" yaml:"isRoot"`
	IsExpanded          bool                    `json:"isExpanded" yaml:"isExpanded"`
	Deleted             bool                    `json:"deleted" yaml:"deleted"`
	CanExpandUpstream   bool                    `json:"canExpandUpstream" yaml:"canExpandUpstream"`
	CanExpandDownstream bool                    `json:"canExpandDownstream" yaml:"canExpandDownstream"`
	Loading             bool                    `json:"loading" yaml:"loading"`
	Entity              EntityRef               `json:"entity" yaml:"entity"`
	Columns             map[string]RenderColumn `json:"columns,omitempty" yaml:"columns,omitempty"`
	// ColumnOrder lists Columns keys in catalog order.
	ColumnOrder []string `json:"columnOrder,omitempty" yaml:"columnOrder,omitempty"`
}

// RenderEdge is the display-ready projection of an edge or of one column
// mapping inside an edge.
type RenderEdge struct {
	ID              string     `json:"id" yaml:"id"`
	Source          string     `json:"source" yaml:"source"`
	Target          string     `json:"target" yaml:"target"`
	SourceHandle    string     `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle    string     `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
	SourceType      EntityType `json:"sourceType" yaml:"sourceType"`
	TargetType      EntityType `json:"targetType" yaml:"targetType"`
	IsColumnLineage bool       `json:"isColumnLineage" yaml:"isColumnLineage"`
	Kind            EdgeKind   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// ProjectOptions controls Project.
type ProjectOptions struct {
	// Columns holds the catalog columns of each entity by id.
	Columns map[string][]Column
	// EditMode forces every node and column to KindDefault.
	EditMode bool
	// Previous is the last projection's node list; IsExpanded is carried over by id.
	Previous []RenderNode
	// Leaves suppresses expand affordances of verified leaves.
	Leaves *LeafNodes
	// Loading holds ids of nodes with an expansion in flight.
	Loading map[string]bool
}

// Projection is the render-layer view of a graph.
type Projection struct {
	Nodes []RenderNode `json:"nodes" yaml:"nodes"`
	Edges []RenderEdge `json:"edges" yaml:"edges"`
}

// Project converts g into render nodes and edges. Positions are left at the
// origin.
//
// The root comes first, followed by the other nodes in graph order. Edges
// are emitted downstream first, each edge's column mappings before the edge
// itself. Edges with an endpoint that is not a known node are skipped, and
// render edges sharing an id keep the first occurrence.
func Project(g Graph, opts ProjectOptions) Projection {
	entities := g.Entities()
	index := make(map[string]EntityRef, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}

	edges := projectEdges(g, index)
	handles := columnHandles(edges)

	expanded := make(map[string]bool, len(opts.Previous))
	for _, n := range opts.Previous {
		expanded[n.ID] = n.IsExpanded
	}

	nodes := make([]RenderNode, 0, len(entities))
	for _, e := range entities {
		kind := KindDefault
		if !opts.EditMode {
			kind = NodeKindOf(g, e.ID)
		}
		loading := opts.Loading[e.ID]

		n := RenderNode{
			ID:         e.ID,
			Type:       e.Type,
			Label:      DataLabel(e),
			Kind:       kind,
			IsRoot:     e.ID == g.Entity.ID,
			IsExpanded: expanded[e.ID],
			Deleted:    e.Deleted,
			Loading:    loading,
			Entity:     e,
		}
		if !opts.EditMode && !loading {
			n.CanExpandUpstream = kind == KindInput && !opts.Leaves.IsLeaf(e.ID, Upstream)
			n.CanExpandDownstream = kind == KindOutput && !opts.Leaves.IsLeaf(e.ID, Downstream)
		}

		if cols := opts.Columns[e.ID]; len(cols) > 0 {
			n.Columns = make(map[string]RenderColumn, len(cols))
			n.ColumnOrder = make([]string, 0, len(cols))
			for _, c := range cols {
				key := c.Key()
				if _, dup := n.Columns[key]; !dup {
					n.ColumnOrder = append(n.ColumnOrder, key)
				}
				conn := KindDefault
				if !opts.EditMode {
					conn = handles.kind(key)
				}
				n.Columns[key] = RenderColumn{Column: c, Connectivity: conn}
			}
		}
		nodes = append(nodes, n)
	}

	return Projection{Nodes: nodes, Edges: edges}
}

// NodeKindOf returns the directional kind of the entity with the given id.
//
// A node is an output when a downstream edge ends at it and none starts
// there, and an input when an upstream edge starts at it and none ends
// there. The root follows the same rules. Every other node is KindDefault.
func NodeKindOf(g Graph, id string) NodeKind {
	var downIn, downOut, upIn, upOut bool
	for _, e := range g.DownstreamEdges {
		downIn = downIn || e.ToEntity == id
		downOut = downOut || e.FromEntity == id
	}
	for _, e := range g.UpstreamEdges {
		upIn = upIn || e.ToEntity == id
		upOut = upOut || e.FromEntity == id
	}

	switch {
	case downIn && !downOut:
		return KindOutput
	case upOut && !upIn:
		return KindInput
	default:
		return KindDefault
	}
}

func projectEdges(g Graph, index map[string]EntityRef) []RenderEdge {
	all := g.Edges()
	out := make([]RenderEdge, 0, len(all))
	seen := make(map[string]struct{}, len(all))

	add := func(e RenderEdge) {
		if _, ok := seen[e.ID]; ok {
			return
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}

	for _, e := range all {
		from, ok := index[e.FromEntity]
		if !ok {
			continue
		}
		to, ok := index[e.ToEntity]
		if !ok {
			continue
		}

		if e.LineageDetails != nil {
			for _, m := range e.LineageDetails.ColumnsLineage {
				for _, fc := range m.FromColumns {
					add(RenderEdge{
						ID:              ColumnEdgeID(fc, m.ToColumn, from.ID, to.ID),
						Source:          from.ID,
						Target:          to.ID,
						SourceHandle:    fc,
						TargetHandle:    m.ToColumn,
						SourceType:      from.Type,
						TargetType:      to.Type,
						IsColumnLineage: true,
					})
				}
			}
		}
		add(RenderEdge{
			ID:         TableEdgeID(from.ID, to.ID),
			Source:     from.ID,
			Target:     to.ID,
			SourceType: from.Type,
			TargetType: to.Type,
		})
	}
	return out
}

type handleSet struct {
	sources map[string]struct{}
	targets map[string]struct{}
}

func columnHandles(edges []RenderEdge) handleSet {
	hs := handleSet{sources: map[string]struct{}{}, targets: map[string]struct{}{}}
	for _, e := range edges {
		if !e.IsColumnLineage {
			continue
		}
		hs.sources[e.SourceHandle] = struct{}{}
		hs.targets[e.TargetHandle] = struct{}{}
	}
	return hs
}

func (hs handleSet) kind(key string) NodeKind {
	_, src := hs.sources[key]
	_, tgt := hs.targets[key]
	switch {
	case src && tgt:
		return KindDefault
	case src:
		return KindInput
	case tgt:
		return KindOutput
	default:
		return KindNotConnected
	}
}
