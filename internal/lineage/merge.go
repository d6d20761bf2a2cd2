package lineage

import (
	"fmt"
	"sort"
	"sync"
)

// Direction is the direction a node is expanded in.
type Direction string

// Directions use the catalog's wording: upstream lineage is fetched "from"
// a node, downstream lineage "to" it.
const (
	Upstream   Direction = "from"
	Downstream Direction = "to"
)

// ParseDirection accepts from/to as well as upstream/downstream.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "from", "upstream", "up":
		return Upstream, nil
	case "to", "downstream", "down":
		return Downstream, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want from or to)", s)
	}
}

// MergeExpansion folds the lineage fetched for an expanded node into g.
//
// The fetched edge list for dir is appended as is; duplicate edges are
// collapsed later by render edge ids. Entities taking part in those edges are
// appended to Nodes unless their id is already present. g and fetched are
// not modified.
func MergeExpansion(g Graph, fetched Graph, dir Direction) Graph {
	out := g.Clone()

	var edges []Edge
	switch dir {
	case Upstream:
		edges = fetched.UpstreamEdges
		out.UpstreamEdges = append(out.UpstreamEdges, cloneEdges(edges)...)
	case Downstream:
		edges = fetched.DownstreamEdges
		out.DownstreamEdges = append(out.DownstreamEdges, cloneEdges(edges)...)
	default:
		return out
	}

	present := make(map[string]struct{}, len(out.Nodes)+1)
	present[out.Entity.ID] = struct{}{}
	nodes := out.Nodes[:0]
	for _, n := range out.Nodes {
		if _, ok := present[n.ID]; ok {
			continue
		}
		present[n.ID] = struct{}{}
		nodes = append(nodes, n)
	}
	out.Nodes = nodes

	involved := make(map[string]struct{}, len(edges)*2)
	for _, e := range edges {
		involved[e.FromEntity] = struct{}{}
		involved[e.ToEntity] = struct{}{}
	}

	for _, n := range fetched.Entities() {
		if _, ok := involved[n.ID]; !ok {
			continue
		}
		if _, ok := present[n.ID]; ok {
			continue
		}
		present[n.ID] = struct{}{}
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

// LeafNodes records nodes verified to have no further lineage in a
// direction. Ids are only ever added. The zero value is ready to use and a
// nil *LeafNodes reports no leaves.
type LeafNodes struct {
	mu         sync.RWMutex
	upstream   map[string]struct{}
	downstream map[string]struct{}
}

// Record marks fetched.Entity as a leaf in dir when the fetched lineage has
// no edges in that direction. It reports whether a leaf was recorded.
func (l *LeafNodes) Record(fetched Graph, dir Direction) bool {
	var edges []Edge
	switch dir {
	case Upstream:
		edges = fetched.UpstreamEdges
	case Downstream:
		edges = fetched.DownstreamEdges
	default:
		return false
	}
	if len(edges) > 0 || fetched.Entity.ID == "" {
		return false
	}
	l.Add(fetched.Entity.ID, dir)
	return true
}

// Add marks id as a leaf in dir.
func (l *LeafNodes) Add(id string, dir Direction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch dir {
	case Upstream:
		if l.upstream == nil {
			l.upstream = make(map[string]struct{})
		}
		l.upstream[id] = struct{}{}
	case Downstream:
		if l.downstream == nil {
			l.downstream = make(map[string]struct{})
		}
		l.downstream[id] = struct{}{}
	}
}

// IsLeaf reports whether id is a verified leaf in dir.
func (l *LeafNodes) IsLeaf(id string, dir Direction) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ok bool
	switch dir {
	case Upstream:
		_, ok = l.upstream[id]
	case Downstream:
		_, ok = l.downstream[id]
	}
	return ok
}

// IDs returns the sorted leaf ids of a direction.
func (l *LeafNodes) IDs(dir Direction) []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	set := l.upstream
	if dir == Downstream {
		set = l.downstream
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
