package lineage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
)

func nodeByID(t *testing.T, p lineage.Projection, id string) lineage.RenderNode {
	t.Helper()
	for _, n := range p.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %s not projected", id)
	return lineage.RenderNode{}
}

func edgeIDs(p lineage.Projection) []string {
	ids := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		ids[i] = e.ID
	}
	return ids
}

func TestProject_SingleUpstreamEdge(t *testing.T) {
	g := lineage.Graph{
		Entity:        lineage.EntityRef{ID: "R", Type: lineage.EntityTable, FullyQualifiedName: "svc.db.sch.r"},
		Nodes:         []lineage.EntityRef{{ID: "A", Type: lineage.EntityTable, FullyQualifiedName: "svc.db.sch.a"}},
		UpstreamEdges: []lineage.Edge{{FromEntity: "A", ToEntity: "R"}},
	}

	p := lineage.Project(g, lineage.ProjectOptions{})

	require.Len(t, p.Nodes, 2)
	require.Len(t, p.Edges, 1)
	assert.Equal(t, "edge-A-R", p.Edges[0].ID)
	assert.False(t, p.Edges[0].IsColumnLineage)

	assert.Equal(t, "R", p.Nodes[0].ID)
	assert.True(t, p.Nodes[0].IsRoot)
	assert.Equal(t, lineage.KindDefault, p.Nodes[0].Kind)
	assert.Equal(t, lineage.KindInput, p.Nodes[1].Kind)
	assert.Equal(t, lineage.Position{}, p.Nodes[1].Position)
}

func TestProject_FactSession(t *testing.T) {
	g := testutil.FactSession()

	p := lineage.Project(g, lineage.ProjectOptions{Columns: testutil.FactSessionColumns()})

	require.Len(t, p.Nodes, 8)
	assert.Equal(t, testutil.FactSessionID, p.Nodes[0].ID)

	assert.Equal(t, []string{
		lineage.TableEdgeID(testutil.FactSessionID, testutil.StorageServiceID),
		lineage.ColumnEdgeID(testutil.AddressIDColumn, testutil.TotalOrderValueColumn, testutil.DimAddressID, testutil.DimCustomerID),
		lineage.TableEdgeID(testutil.DimAddressID, testutil.DimCustomerID),
		lineage.ColumnEdgeID(testutil.CustomerIDColumn, testutil.DerivedSessionTokenColumn, testutil.DimCustomerID, testutil.FactSessionID),
		lineage.TableEdgeID(testutil.DimCustomerID, testutil.FactSessionID),
		lineage.TableEdgeID(testutil.StorageServiceID, testutil.FactSessionID),
		lineage.ColumnEdgeID(testutil.DashboardServiceIDColumn, testutil.AddressShopIDColumn, testutil.DashboardServiceID, testutil.DimAddressID),
		lineage.TableEdgeID(testutil.DashboardServiceID, testutil.DimAddressID),
		lineage.ColumnEdgeID(testutil.ProductShopIDColumn, testutil.AddressFirstNameColumn, testutil.DimProductID, testutil.DimAddressID),
		lineage.TableEdgeID(testutil.DimProductID, testutil.DimAddressID),
		lineage.TableEdgeID(testutil.DimAddressETLID, testutil.DimAddressID),
		lineage.TableEdgeID(testutil.PrestoETLID, testutil.StorageServiceID),
	}, edgeIDs(p))

	kinds := map[string]lineage.NodeKind{
		testutil.FactSessionID:      lineage.KindDefault,
		testutil.DimCustomerID:      lineage.KindDefault,
		testutil.StorageServiceID:   lineage.KindOutput,
		testutil.DimAddressID:       lineage.KindDefault,
		testutil.DashboardServiceID: lineage.KindInput,
		testutil.DimProductID:       lineage.KindInput,
		testutil.DimAddressETLID:    lineage.KindInput,
		testutil.PrestoETLID:        lineage.KindInput,
	}
	for id, want := range kinds {
		assert.Equal(t, want, nodeByID(t, p, id).Kind, id)
	}

	customer := nodeByID(t, p, testutil.DimCustomerID)
	assert.Equal(t, "ecommerce_db.shopify.dim_customer", customer.Label)
	assert.Equal(t, lineage.KindInput, customer.Columns[testutil.CustomerIDColumn].Connectivity)
	assert.Equal(t, lineage.KindOutput, customer.Columns[testutil.TotalOrderValueColumn].Connectivity)
	assert.Equal(t, lineage.KindNotConnected, customer.Columns["sample_data.ecommerce_db.shopify.dim_customer.first_name"].Connectivity)
	assert.Len(t, customer.ColumnOrder, 3)

	root := nodeByID(t, p, testutil.FactSessionID)
	assert.Equal(t, lineage.KindOutput, root.Columns[testutil.DerivedSessionTokenColumn].Connectivity)

	presto := nodeByID(t, p, testutil.PrestoETLID)
	assert.Equal(t, "Presto ETL", presto.Label)
	assert.Nil(t, presto.Columns)
	assert.True(t, presto.CanExpandUpstream)
	assert.False(t, presto.CanExpandDownstream)

	storage := nodeByID(t, p, testutil.StorageServiceID)
	assert.True(t, storage.CanExpandDownstream)
	assert.False(t, storage.CanExpandUpstream)
}

func TestProject_ColumnEdgeFields(t *testing.T) {
	g := testutil.FactSession()
	p := lineage.Project(g, lineage.ProjectOptions{})

	var found bool
	for _, e := range p.Edges {
		if !e.IsColumnLineage || e.Source != testutil.DimCustomerID {
			continue
		}
		found = true
		assert.Equal(t, testutil.FactSessionID, e.Target)
		assert.Equal(t, testutil.CustomerIDColumn, e.SourceHandle)
		assert.Equal(t, testutil.DerivedSessionTokenColumn, e.TargetHandle)
		assert.Equal(t, lineage.EntityTable, e.SourceType)
		assert.Equal(t, lineage.EntityTable, e.TargetType)
	}
	assert.True(t, found)
}

func TestProject_EditModeForcesDefault(t *testing.T) {
	p := lineage.Project(testutil.FactSession(), lineage.ProjectOptions{
		Columns:  testutil.FactSessionColumns(),
		EditMode: true,
	})

	for _, n := range p.Nodes {
		assert.Equal(t, lineage.KindDefault, n.Kind, n.ID)
		assert.False(t, n.CanExpandUpstream)
		assert.False(t, n.CanExpandDownstream)
		for key, c := range n.Columns {
			assert.Equal(t, lineage.KindDefault, c.Connectivity, key)
		}
	}
}

func TestProject_PreservesExpanded(t *testing.T) {
	g := testutil.FactSession()
	first := lineage.Project(g, lineage.ProjectOptions{})
	for i := range first.Nodes {
		first.Nodes[i].IsExpanded = first.Nodes[i].ID == testutil.DimAddressID
	}

	second := lineage.Project(g, lineage.ProjectOptions{Previous: first.Nodes})

	assert.True(t, nodeByID(t, second, testutil.DimAddressID).IsExpanded)
	assert.False(t, nodeByID(t, second, testutil.DimCustomerID).IsExpanded)
}

func TestProject_LeavesAndLoading(t *testing.T) {
	leaves := &lineage.LeafNodes{}
	leaves.Add(testutil.PrestoETLID, lineage.Upstream)

	p := lineage.Project(testutil.FactSession(), lineage.ProjectOptions{
		Leaves:  leaves,
		Loading: map[string]bool{testutil.DimProductID: true},
	})

	assert.False(t, nodeByID(t, p, testutil.PrestoETLID).CanExpandUpstream)
	product := nodeByID(t, p, testutil.DimProductID)
	assert.True(t, product.Loading)
	assert.False(t, product.CanExpandUpstream)
	assert.True(t, nodeByID(t, p, testutil.DashboardServiceID).CanExpandUpstream)
}

func TestProject_SkipsUnknownEndpoints(t *testing.T) {
	g := lineage.Graph{
		Entity: lineage.EntityRef{ID: "root"},
		Nodes:  []lineage.EntityRef{{ID: "a"}},
		UpstreamEdges: []lineage.Edge{
			{FromEntity: "a", ToEntity: "root"},
			{FromEntity: "deleted", ToEntity: "a", LineageDetails: &lineage.LineageDetail{
				ColumnsLineage: []lineage.ColumnMapping{{FromColumns: []string{"d.x"}, ToColumn: "a.x"}},
			}},
		},
	}

	var p lineage.Projection
	assert.NotPanics(t, func() { p = lineage.Project(g, lineage.ProjectOptions{}) })
	assert.Equal(t, []string{"edge-a-root"}, edgeIDs(p))
}

func TestProject_DeduplicatesEdges(t *testing.T) {
	g := lineage.Graph{
		Entity:          lineage.EntityRef{ID: "root"},
		Nodes:           []lineage.EntityRef{{ID: "a"}, {ID: "a"}},
		UpstreamEdges:   []lineage.Edge{{FromEntity: "a", ToEntity: "root"}, {FromEntity: "a", ToEntity: "root"}},
		DownstreamEdges: []lineage.Edge{{FromEntity: "a", ToEntity: "root"}},
	}

	p := lineage.Project(g, lineage.ProjectOptions{})

	assert.Len(t, p.Nodes, 2)
	assert.Equal(t, []string{"edge-a-root"}, edgeIDs(p))
}

func TestProject_EmptyGraph(t *testing.T) {
	p := lineage.Project(lineage.Graph{}, lineage.ProjectOptions{})
	assert.Empty(t, p.Nodes)
	assert.Empty(t, p.Edges)

	p = lineage.Project(lineage.Graph{Entity: lineage.EntityRef{ID: "root"}}, lineage.ProjectOptions{})
	require.Len(t, p.Nodes, 1)
	assert.Empty(t, p.Edges)
	assert.Equal(t, lineage.KindDefault, p.Nodes[0].Kind)
}

func TestNodeKindOf(t *testing.T) {
	tests := []struct {
		name string
		g    lineage.Graph
		want lineage.NodeKind
	}{
		{
			name: "downstream sink",
			g:    lineage.Graph{DownstreamEdges: []lineage.Edge{{FromEntity: "r", ToEntity: "n"}}},
			want: lineage.KindOutput,
		},
		{
			name: "downstream pass-through",
			g: lineage.Graph{DownstreamEdges: []lineage.Edge{
				{FromEntity: "r", ToEntity: "n"}, {FromEntity: "n", ToEntity: "m"},
			}},
			want: lineage.KindDefault,
		},
		{
			name: "upstream source",
			g:    lineage.Graph{UpstreamEdges: []lineage.Edge{{FromEntity: "n", ToEntity: "r"}}},
			want: lineage.KindInput,
		},
		{
			name: "both directions",
			g: lineage.Graph{
				UpstreamEdges:   []lineage.Edge{{FromEntity: "n", ToEntity: "r"}},
				DownstreamEdges: []lineage.Edge{{FromEntity: "r", ToEntity: "n"}},
			},
			want: lineage.KindOutput,
		},
		{
			name: "unconnected",
			g:    lineage.Graph{},
			want: lineage.KindDefault,
		},
		{
			name: "root with only an outgoing upstream edge",
			g: lineage.Graph{
				Entity:        lineage.EntityRef{ID: "n"},
				UpstreamEdges: []lineage.Edge{{FromEntity: "n", ToEntity: "m"}},
			},
			want: lineage.KindInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lineage.NodeKindOf(tt.g, "n"))
		})
	}
}
