package lineage

// EdgeKind tells where a drawn connection belongs relative to the root.
type EdgeKind string

// Edge kinds.
const (
	UpStream   EdgeKind = "upstream"
	DownStream EdgeKind = "downstream"
	NoStream   EdgeKind = "nostream"
)

// Classify decides whether conn is upstream or downstream of the graph root.
//
// An endpoint "touches" an edge list when some edge in it starts or ends at
// the endpoint's entity; the root itself never counts as touching. A target
// at the root, or a source touching upstream edges, makes the connection
// upstream. Otherwise a source at the root, or an endpoint touching
// downstream edges, makes it downstream.
func Classify(g Graph, conn Connection) EdgeKind {
	root := g.Entity.ID
	source, target := conn.Source.EntityID, conn.Target.EntityID

	sourceDown := touches(g.DownstreamEdges, source, root)
	sourceUp := touches(g.UpstreamEdges, source, root)
	targetDown := touches(g.DownstreamEdges, target, root)
	targetUp := touches(g.UpstreamEdges, target, root)

	isUpstream := (sourceUp && targetDown) || sourceUp || targetUp || (root != "" && target == root)
	isDownstream := (sourceDown && targetUp) || sourceDown || targetDown || (root != "" && source == root)

	switch {
	case isUpstream:
		return UpStream
	case isDownstream:
		return DownStream
	default:
		return NoStream
	}
}

func touches(edges []Edge, id, root string) bool {
	if id == "" || id == root {
		return false
	}
	for _, e := range edges {
		if e.FromEntity == id || e.ToEntity == id {
			return true
		}
	}
	return false
}
