// Package layout assigns positions to projected lineage nodes using a
// layered (Sugiyama) graph drawing pipeline.
//
// Each weakly connected component is laid out separately by autog after its
// back edges have been reversed, then components are packed side by side
// along the cross axis. Output is deterministic for a given input.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nulab/autog"
	"github.com/nulab/autog/graph"

	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// Direction is the flow direction of edges.
type Direction string

// Flow directions.
const (
	LeftToRight Direction = "LR"
	TopToBottom Direction = "TB"
)

// ParseDirection accepts LR/TB in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "LR", "":
		return LeftToRight, nil
	case "TB":
		return TopToBottom, nil
	default:
		return "", fmt.Errorf("unknown layout direction %q (want LR or TB)", s)
	}
}

// Default node box and spacing.
const (
	DefaultNodeWidth    = 400
	DefaultNodeHeight   = 50
	DefaultNodeSpacing  = 40
	DefaultLayerSpacing = 100
)

// Options controls Layout.
type Options struct {
	Direction    Direction `json:"direction" yaml:"direction" koanf:"direction" validate:"omitempty,oneof=LR TB"`
	NodeWidth    float64   `json:"nodeWidth" yaml:"node_width" koanf:"node_width" validate:"gte=0"`
	NodeHeight   float64   `json:"nodeHeight" yaml:"node_height" koanf:"node_height" validate:"gte=0"`
	NodeSpacing  float64   `json:"nodeSpacing" yaml:"node_spacing" koanf:"node_spacing" validate:"gte=0"`
	LayerSpacing float64   `json:"layerSpacing" yaml:"layer_spacing" koanf:"layer_spacing" validate:"gte=0"`
}

// DefaultOptions returns left-to-right layout with 400x50 boxes.
func DefaultOptions() Options {
	return Options{
		Direction:    LeftToRight,
		NodeWidth:    DefaultNodeWidth,
		NodeHeight:   DefaultNodeHeight,
		NodeSpacing:  DefaultNodeSpacing,
		LayerSpacing: DefaultLayerSpacing,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Direction == "" {
		o.Direction = d.Direction
	}
	if o.NodeWidth <= 0 {
		o.NodeWidth = d.NodeWidth
	}
	if o.NodeHeight <= 0 {
		o.NodeHeight = d.NodeHeight
	}
	if o.NodeSpacing <= 0 {
		o.NodeSpacing = d.NodeSpacing
	}
	if o.LayerSpacing <= 0 {
		o.LayerSpacing = d.LayerSpacing
	}
	return o
}

// box is a node rectangle in top-to-bottom space: layers grow along y.
type box struct {
	id         string
	x, y, w, h float64
}

// Layout returns a copy of nodes with positions assigned. Edges whose
// endpoints are not among nodes are ignored, as are column edges, which
// always duplicate a table edge.
func Layout(nodes []lineage.RenderNode, edges []lineage.RenderEdge, opts Options) []lineage.RenderNode {
	opts = opts.withDefaults()
	out := append([]lineage.RenderNode(nil), nodes...)
	if len(out) == 0 {
		return out
	}

	g := dag.FromProjection(lineage.Projection{Nodes: nodes, Edges: edges})

	// Lay out top to bottom; for LR swap the box and transpose afterwards.
	w, h := opts.NodeWidth, opts.NodeHeight
	if opts.Direction == LeftToRight {
		w, h = h, w
	}

	positions := make(map[string]box, g.NodeCount())
	offset := 0.0
	for _, ids := range g.Components() {
		boxes := layoutComponent(g.Subgraph(ids).Acyclic(), w, h, opts)
		separate(boxes, opts.NodeSpacing)

		minX, maxX := math.Inf(1), math.Inf(-1)
		minY := math.Inf(1)
		for _, b := range boxes {
			minX = math.Min(minX, b.x)
			maxX = math.Max(maxX, b.x+b.w)
			minY = math.Min(minY, b.y)
		}
		for _, b := range boxes {
			b.x += offset - minX
			b.y -= minY
			positions[b.id] = b
		}
		offset += maxX - minX + opts.NodeSpacing
	}

	for i := range out {
		b, ok := positions[out[i].ID]
		if !ok {
			continue
		}
		if opts.Direction == LeftToRight {
			out[i].Position = lineage.Position{X: b.y, Y: b.x}
		} else {
			out[i].Position = lineage.Position{X: b.x, Y: b.y}
		}
	}
	return out
}

func layoutComponent(g *dag.Graph, w, h float64, opts Options) []box {
	ids := g.IDs()
	if len(ids) == 1 {
		return []box{{id: ids[0], w: w, h: h}}
	}

	var adj [][]string
	for _, e := range g.Edges() {
		adj = append(adj, []string{e.From, e.To})
	}

	l := autog.Layout(
		graph.EdgeSlice(adj),
		autog.WithCycleBreaking(autog.CycleBreakingDepthFirst),
		autog.WithLayering(autog.LayeringLongestPath),
		autog.WithOrdering(autog.OrderingWMedian),
		autog.WithPositioning(autog.PositioningBrandesKoepf),
		autog.WithEdgeRouting(autog.EdgeRoutingNoop),
		autog.WithNodeFixedSize(w, h),
		autog.WithLayerSpacing(opts.LayerSpacing),
		autog.WithNodeSpacing(opts.NodeSpacing),
	)

	// autog orders nodes within layers; layers themselves follow the
	// longest-path ranks so that every node sits one layer below its
	// deepest parent.
	ranks := g.Ranks()
	xs := make(map[string]float64, len(l.Nodes))
	for _, n := range l.Nodes {
		xs[n.ID] = finite(n.X)
	}

	boxes := make([]box, 0, len(ids))
	for _, id := range ids {
		boxes = append(boxes, box{
			id: id,
			x:  xs[id],
			y:  float64(ranks[id]) * (h + opts.LayerSpacing),
			w:  w,
			h:  h,
		})
	}
	return boxes
}

// separate pushes apart boxes that share a layer so that neighbours are at
// least spacing apart.
func separate(boxes []box, spacing float64) {
	layers := make(map[float64][]int)
	var keys []float64
	for i, b := range boxes {
		y := b.y
		if _, ok := layers[y]; !ok {
			keys = append(keys, y)
		}
		layers[y] = append(layers[y], i)
	}
	sort.Float64s(keys)

	for _, y := range keys {
		idx := layers[y]
		sort.Slice(idx, func(a, b int) bool {
			ba, bb := boxes[idx[a]], boxes[idx[b]]
			if ba.x != bb.x {
				return ba.x < bb.x
			}
			return ba.id < bb.id
		})
		for k := 1; k < len(idx); k++ {
			prev, cur := boxes[idx[k-1]], &boxes[idx[k]]
			if minX := prev.x + prev.w + spacing; cur.x < minX {
				cur.x = minX
			}
		}
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
