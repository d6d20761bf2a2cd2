package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitestutil "github.com/leapstack-labs/leaplineage/internal/cli/testutil"
	"github.com/leapstack-labs/leaplineage/internal/explorer"
	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/leapstack-labs/leaplineage/internal/ui/features"
)

func setupREPL(t *testing.T) (*exploreREPL, *features.FakeCatalog, *clitestutil.TestRenderer) {
	t.Helper()

	fake := features.NewFakeCatalog()
	g := fake.Graphs[features.FactSessionFQN]
	for i, n := range g.Nodes {
		if n.ID == testutil.PrestoETLID {
			g.Nodes[i].Description = "<p>Loads <b>orders</b> nightly</p>"
		}
	}
	fake.Graphs[features.FactSessionFQN] = g

	s := explorer.NewSession("test", explorer.Options{
		Fetcher:   fake,
		Persister: fake,
		Layout:    layout.DefaultOptions(),
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, s.Load(context.Background(), lineage.EntityTable, features.FactSessionFQN))

	tr := clitestutil.NewTestRendererText()
	return &exploreREPL{env: env{cfg: testConfig(t), logger: testutil.NewTestLogger(t), out: tr.Renderer}, session: s}, fake, tr
}

func TestExploreREPL_Show(t *testing.T) {
	repl, _, tr := setupREPL(t)

	assert.False(t, repl.exec(context.Background(), ".show"))

	assert.Contains(t, tr.Output(), "Lineage of")
	assert.Contains(t, tr.Output(), "Total: 8 nodes")
	assert.Empty(t, tr.ErrorOutput())
}

func TestExploreREPL_Connect(t *testing.T) {
	repl, fake, tr := setupREPL(t)

	repl.exec(context.Background(), ".connect "+testutil.PrestoETLID+" "+testutil.DimCustomerID+" insert into dim_customer")

	require.Empty(t, tr.ErrorOutput())
	assert.Contains(t, tr.Output(), "upstream")
	writes := fake.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "add", writes[0].Op)
	assert.Equal(t, testutil.PrestoETLID, writes[0].From)
	require.NotNil(t, writes[0].Detail)
	assert.Equal(t, "insert into dim_customer", writes[0].Detail.SQLQuery)
}

func TestExploreREPL_ConnectUnknownEntity(t *testing.T) {
	repl, fake, tr := setupREPL(t)

	repl.exec(context.Background(), ".connect nope "+testutil.DimCustomerID)

	assert.Contains(t, tr.ErrorOutput(), "node not found")
	assert.Empty(t, fake.Writes())
}

func TestExploreREPL_DisconnectAndRemove(t *testing.T) {
	repl, fake, tr := setupREPL(t)
	ctx := context.Background()

	repl.exec(ctx, ".disconnect "+testutil.PrestoETLID+" "+testutil.StorageServiceID)
	repl.exec(ctx, ".remove "+testutil.DimAddressETLID)
	repl.exec(ctx, ".remove "+testutil.FactSessionID)

	assert.Contains(t, tr.Output(), "Removed edge")
	assert.Contains(t, tr.ErrorOutput(), "root")
	ops := make([]string, 0)
	for _, w := range fake.Writes() {
		ops = append(ops, w.Op)
	}
	assert.Equal(t, []string{"delete", "delete"}, ops)
	_, ok := repl.session.Graph().Lookup(testutil.DimAddressETLID)
	assert.False(t, ok)
}

func TestExploreREPL_DisconnectColumn(t *testing.T) {
	repl, fake, tr := setupREPL(t)
	var asked []string
	repl.confirm = func(q string) bool {
		asked = append(asked, q)
		return true
	}

	source := lineage.ColumnHandle(testutil.DimCustomerID, testutil.CustomerIDColumn)
	target := lineage.ColumnHandle(testutil.FactSessionID, testutil.DerivedSessionTokenColumn)
	repl.exec(context.Background(), ".disconnect "+source.String()+" "+target.String())

	require.Empty(t, tr.ErrorOutput())
	assert.Equal(t, []string{`Are you sure you want to remove the edge between "customer_id and derived_session_token"?`}, asked)
	assert.Contains(t, tr.Output(), "Removed column lineage customer_id -> derived_session_token")

	writes := fake.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "add", writes[0].Op)
	require.NotNil(t, writes[0].Detail)
	assert.Empty(t, writes[0].Detail.ColumnsLineage)

	e, ok := lineage.FindEdge(repl.session.Graph().UpstreamEdges, testutil.DimCustomerID, testutil.FactSessionID)
	require.True(t, ok, "table edge is kept")
	assert.Empty(t, e.LineageDetails.ColumnsLineage)
}

func TestExploreREPL_DisconnectCancelled(t *testing.T) {
	repl, fake, tr := setupREPL(t)
	var asked string
	repl.confirm = func(q string) bool {
		asked = q
		return false
	}

	repl.exec(context.Background(), ".disconnect "+testutil.PrestoETLID+" "+testutil.StorageServiceID)

	assert.Equal(t, `Are you sure you want to remove the edge between "Presto ETL and storage_service_entity"?`, asked)
	assert.Contains(t, tr.Output(), "Cancelled")
	assert.Empty(t, fake.Writes())
	_, ok := lineage.FindEdge(repl.session.Graph().UpstreamEdges, testutil.PrestoETLID, testutil.StorageServiceID)
	assert.True(t, ok)
}

func TestExploreREPL_UpstreamDownstream(t *testing.T) {
	repl, _, tr := setupREPL(t)
	ctx := context.Background()

	repl.exec(ctx, ".upstream "+testutil.DimAddressID)
	require.Empty(t, tr.ErrorOutput())
	out := tr.Output()
	assert.Contains(t, out, testutil.DashboardServiceID)
	assert.Contains(t, out, testutil.DimProductID)
	assert.Contains(t, out, "dim_address etl")
	assert.Contains(t, out, "Total: 3 entities")

	tr.Reset()
	repl.exec(ctx, ".downstream "+testutil.DimAddressID)
	out = tr.Output()
	assert.Contains(t, out, testutil.DimCustomerID)
	assert.Contains(t, out, testutil.FactSessionID)
	assert.Contains(t, out, testutil.StorageServiceID)
	assert.NotContains(t, out, testutil.PrestoETLID)
	assert.Contains(t, out, "Total: 3 entities")

	tr.Reset()
	repl.exec(ctx, ".upstream "+testutil.PrestoETLID)
	assert.Contains(t, tr.Output(), "No entities")
}

func TestExploreREPL_Levels(t *testing.T) {
	repl, _, tr := setupREPL(t)

	repl.exec(context.Background(), ".levels")

	require.Empty(t, tr.ErrorOutput())
	assert.Contains(t, tr.Output(), "0: ")
	assert.Contains(t, tr.Output(), "Presto ETL")
}

func TestExploreREPL_Describe(t *testing.T) {
	repl, _, tr := setupREPL(t)

	repl.exec(context.Background(), ".describe "+testutil.PrestoETLID)

	require.Empty(t, tr.ErrorOutput())
	assert.Contains(t, tr.Output(), "Presto ETL")
	assert.Contains(t, tr.Output(), "Loads **orders** nightly")
	assert.Contains(t, tr.Output(), "Pipeline")
}

func TestExploreREPL_EditAndToggle(t *testing.T) {
	repl, _, tr := setupREPL(t)
	ctx := context.Background()

	repl.exec(ctx, ".edit on")
	assert.True(t, repl.session.EditMode())
	repl.exec(ctx, ".edit")
	assert.False(t, repl.session.EditMode())

	repl.exec(ctx, ".toggle "+testutil.DimCustomerID)
	assert.Contains(t, tr.Output(), "columns expanded: true")
	assert.Empty(t, tr.ErrorOutput())
}

func TestExploreREPL_Errors(t *testing.T) {
	tests := []struct {
		line    string
		wantErr string
	}{
		{line: ".bogus", wantErr: "unknown command"},
		{line: ".expand " + testutil.DimAddressID, wantErr: "usage: .expand"},
		{line: ".expand " + testutil.DimAddressID + " sideways", wantErr: "unknown direction"},
		{line: ".describe nope", wantErr: "node not found"},
		{line: ".edit maybe", wantErr: "usage: .edit"},
		{line: ".toggle", wantErr: "usage: .toggle"},
		{line: ".disconnect " + testutil.DimAddressID + " " + testutil.FactSessionID, wantErr: "no edge between"},
		{line: ".upstream", wantErr: "usage: .upstream"},
		{line: ".downstream nope", wantErr: "node not found"},
		{
			line:    ".connect " + testutil.DimCustomerID + ":" + testutil.AddressIDColumn + " " + testutil.FactSessionID + ":" + testutil.DerivedSessionTokenColumn,
			wantErr: "is not a column of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			repl, _, tr := setupREPL(t)
			assert.False(t, repl.exec(context.Background(), tt.line))
			assert.Contains(t, tr.ErrorOutput(), tt.wantErr)
		})
	}
}

func TestExploreREPL_Quit(t *testing.T) {
	repl, _, _ := setupREPL(t)

	assert.False(t, repl.exec(context.Background(), "   "))
	assert.True(t, repl.exec(context.Background(), ".quit"))
	assert.True(t, repl.exec(context.Background(), ".EXIT"))
}

func TestNewExploreCompleter(t *testing.T) {
	repl, _, _ := setupREPL(t)

	c := newExploreCompleter(repl.session)
	names := make([]string, 0)
	for _, child := range c.GetChildren() {
		names = append(names, string(child.GetName()))
	}
	assert.Contains(t, names, ".expand ")
	assert.Contains(t, names, ".quit ")
	assert.Contains(t, names, ".upstream ")
	assert.Contains(t, names, ".levels ")
}
