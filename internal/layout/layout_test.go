package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
)

func project(g lineage.Graph) lineage.Projection {
	return lineage.Project(g, lineage.ProjectOptions{Columns: testutil.FactSessionColumns()})
}

func assertNoOverlap(t *testing.T, nodes []lineage.RenderNode, w, h float64) {
	t.Helper()
	for i := range nodes {
		a := nodes[i].Position
		assert.False(t, math.IsNaN(a.X) || math.IsInf(a.X, 0), "x of %s", nodes[i].ID)
		assert.False(t, math.IsNaN(a.Y) || math.IsInf(a.Y, 0), "y of %s", nodes[i].ID)
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j].Position
			overlap := a.X < b.X+w && b.X < a.X+w && a.Y < b.Y+h && b.Y < a.Y+h
			assert.False(t, overlap, "%s overlaps %s", nodes[i].ID, nodes[j].ID)
		}
	}
}

func positions(nodes []lineage.RenderNode) map[string]lineage.Position {
	out := make(map[string]lineage.Position, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Position
	}
	return out
}

func TestLayout_FactSession(t *testing.T) {
	p := project(testutil.FactSession())

	for _, dir := range []Direction{LeftToRight, TopToBottom} {
		t.Run(string(dir), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Direction = dir

			nodes := Layout(p.Nodes, p.Edges, opts)

			require.Len(t, nodes, len(p.Nodes))
			assertNoOverlap(t, nodes, DefaultNodeWidth, DefaultNodeHeight)
			for i := range nodes {
				assert.Equal(t, p.Nodes[i].ID, nodes[i].ID, "order kept")
			}
		})
	}
}

func TestLayout_Deterministic(t *testing.T) {
	p := project(testutil.FactSession())

	first := Layout(p.Nodes, p.Edges, DefaultOptions())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Layout(p.Nodes, p.Edges, DefaultOptions()))
	}
}

func TestLayout_FlowDirection(t *testing.T) {
	g := lineage.Graph{
		Entity: lineage.EntityRef{ID: "mart"},
		Nodes:  []lineage.EntityRef{{ID: "raw"}, {ID: "staging"}, {ID: "other"}},
		UpstreamEdges: []lineage.Edge{
			{FromEntity: "raw", ToEntity: "staging"},
			{FromEntity: "staging", ToEntity: "mart"},
			{FromEntity: "other", ToEntity: "mart"},
		},
	}
	p := lineage.Project(g, lineage.ProjectOptions{})

	lr := positions(Layout(p.Nodes, p.Edges, Options{Direction: LeftToRight}))
	assert.Less(t, lr["raw"].X, lr["staging"].X)
	assert.Less(t, lr["staging"].X, lr["mart"].X)
	assert.Less(t, lr["other"].X, lr["mart"].X)
	assert.Equal(t, lr["raw"].X, lr["other"].X, "sources share the first layer")

	tb := positions(Layout(p.Nodes, p.Edges, Options{Direction: TopToBottom}))
	assert.Less(t, tb["raw"].Y, tb["staging"].Y)
	assert.Less(t, tb["staging"].Y, tb["mart"].Y)
}

func TestLayout_Cycle(t *testing.T) {
	g := lineage.Graph{
		Entity: lineage.EntityRef{ID: "a"},
		Nodes:  []lineage.EntityRef{{ID: "b"}, {ID: "c"}},
		DownstreamEdges: []lineage.Edge{
			{FromEntity: "a", ToEntity: "b"},
			{FromEntity: "b", ToEntity: "c"},
			{FromEntity: "c", ToEntity: "a"},
		},
	}
	p := lineage.Project(g, lineage.ProjectOptions{})

	nodes := Layout(p.Nodes, p.Edges, Options{Direction: TopToBottom})

	require.Len(t, nodes, 3)
	assertNoOverlap(t, nodes, DefaultNodeWidth, DefaultNodeHeight)
}

func TestLayout_EmptyAndSingle(t *testing.T) {
	assert.Empty(t, Layout(nil, nil, DefaultOptions()))

	nodes := Layout([]lineage.RenderNode{{ID: "root"}}, nil, DefaultOptions())
	require.Len(t, nodes, 1)
	assert.Equal(t, lineage.Position{}, nodes[0].Position)
}

func TestLayout_DisconnectedComponents(t *testing.T) {
	nodes := []lineage.RenderNode{{ID: "a"}, {ID: "b"}, {ID: "lonely"}, {ID: "x"}, {ID: "y"}}
	edges := []lineage.RenderEdge{
		{ID: "edge-a-b", Source: "a", Target: "b"},
		{ID: "edge-x-y", Source: "x", Target: "y"},
		{ID: "edge-ghost-a", Source: "ghost", Target: "a"},
	}

	opts := Options{Direction: LeftToRight, NodeWidth: 120, NodeHeight: 30}
	laid := Layout(nodes, edges, opts)

	assertNoOverlap(t, laid, 120, 30)
	pos := positions(laid)
	assert.Less(t, pos["a"].X, pos["b"].X)
	assert.Less(t, pos["x"].X, pos["y"].X)
}

func TestLayout_DoesNotModifyInput(t *testing.T) {
	p := project(testutil.FactSession())
	_ = Layout(p.Nodes, p.Edges, DefaultOptions())

	for _, n := range p.Nodes {
		assert.Equal(t, lineage.Position{}, n.Position)
	}
}

func TestSeparate(t *testing.T) {
	boxes := []box{
		{id: "b", x: 0, y: 0, w: 10, h: 5},
		{id: "a", x: 0, y: 0, w: 10, h: 5},
		{id: "c", x: 100, y: 0, w: 10, h: 5},
		{id: "d", x: 0, y: 50, w: 10, h: 5},
	}

	separate(boxes, 2)

	assert.Equal(t, 12.0, boxes[0].x, "b follows a by id")
	assert.Equal(t, 0.0, boxes[1].x)
	assert.Equal(t, 100.0, boxes[2].x)
	assert.Equal(t, 0.0, boxes[3].x)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("tb")
	require.NoError(t, err)
	assert.Equal(t, TopToBottom, d)

	d, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, LeftToRight, d)

	_, err = ParseDirection("diagonal")
	assert.Error(t, err)
}
