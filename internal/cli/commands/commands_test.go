package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/cli/config"
	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	clitestutil "github.com/leapstack-labs/leaplineage/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/state"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := intconfig.Default()
	cfg.StatePath = filepath.Join(t.TempDir(), "state.db")
	return cfg
}

// run executes cmd with cfg and tr in its context.
func run(t *testing.T, cmd *cobra.Command, cfg *config.Config, tr *clitestutil.TestRenderer, args ...string) error {
	t.Helper()
	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))
	ctx = output.WithRenderer(ctx, tr.Renderer)
	cmd.SetArgs(args)
	cmd.SetOut(tr.Out)
	cmd.SetErr(tr.ErrOut)
	return cmd.ExecuteContext(ctx)
}

func decode[T any](t *testing.T, tr *clitestutil.TestRenderer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &v), tr.Output())
	return v
}

func nodeByID(nodes []lineage.RenderNode, id string) (lineage.RenderNode, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return lineage.RenderNode{}, false
}

func TestProjectCommand_JSON(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererJSON()

	err := run(t, NewProjectCommand(), testConfig(t), tr,
		filepath.Join(dir, "graph.json"), "--columns", filepath.Join(dir, "columns.json"))
	require.NoError(t, err)

	p := decode[lineage.Projection](t, tr)
	require.Len(t, p.Nodes, 8)
	root, ok := nodeByID(p.Nodes, testutil.FactSessionID)
	require.True(t, ok)
	assert.True(t, root.IsRoot)
	assert.NotEmpty(t, root.Columns)

	ids := make([]string, 0, len(p.Edges))
	for _, e := range p.Edges {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, lineage.TableEdgeID(testutil.StorageServiceID, testutil.FactSessionID))
	clitestutil.AssertNoANSI(t, tr.Output())
}

func TestProjectCommand_EditMode(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererJSON()

	require.NoError(t, run(t, NewProjectCommand(), testConfig(t), tr, filepath.Join(dir, "graph.json"), "--edit"))

	p := decode[lineage.Projection](t, tr)
	for _, n := range p.Nodes {
		assert.Equal(t, lineage.KindDefault, n.Kind, n.ID)
	}
}

func TestProjectCommand_Text(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererText()

	require.NoError(t, run(t, NewProjectCommand(), testConfig(t), tr, filepath.Join(dir, "graph.json")))

	out := tr.Output()
	assert.Contains(t, out, "Lineage of")
	assert.Contains(t, out, "fact_session")
	assert.Contains(t, out, "Presto ETL")
	assert.Contains(t, out, "Total: 8 nodes")
	clitestutil.AssertNoANSI(t, out)
}

func TestProjectCommand_Stdin(t *testing.T) {
	data, err := json.Marshal(testutil.FactSession())
	require.NoError(t, err)
	tr := clitestutil.NewTestRendererJSON()

	cmd := NewProjectCommand()
	cmd.SetIn(bytes.NewReader(data))
	require.NoError(t, run(t, cmd, testConfig(t), tr, "-"))

	assert.Len(t, decode[lineage.Projection](t, tr).Nodes, 8)
}

func TestProjectCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, writeJSONFile(bad, "not a graph"))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing file", args: []string{filepath.Join(dir, "nope.json")}, wantErr: "no such file"},
		{name: "not a graph", args: []string{bad}, wantErr: "failed to decode"},
		{name: "no args", args: nil, wantErr: "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, NewProjectCommand(), testConfig(t), clitestutil.NewTestRendererJSON(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLayoutCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererJSON()

	require.NoError(t, run(t, NewLayoutCommand(), testConfig(t), tr, filepath.Join(dir, "graph.json")))

	p := decode[lineage.Projection](t, tr)
	require.Len(t, p.Nodes, 8)
	seen := make(map[lineage.Position]string)
	for _, n := range p.Nodes {
		other, dup := seen[n.Position]
		assert.False(t, dup, "%s and %s share a position", n.ID, other)
		seen[n.Position] = n.ID
	}
}

func TestLayoutCommand_TextShowsPositions(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererText()

	require.NoError(t, run(t, NewLayoutCommand(), testConfig(t), tr, filepath.Join(dir, "graph.json")))

	assert.Contains(t, tr.Output(), "Layout of")
	assert.Contains(t, tr.Output(), "(LR)")
}

func TestClassifyCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	graph := filepath.Join(dir, "graph.json")

	tests := []struct {
		name       string
		source     string
		target     string
		wantKind   lineage.EdgeKind
		wantEdgeID string
	}{
		{
			name:       "pipeline into an upstream table",
			source:     testutil.PrestoETLID,
			target:     testutil.StorageServiceID,
			wantKind:   lineage.UpStream,
			wantEdgeID: lineage.TableEdgeID(testutil.PrestoETLID, testutil.StorageServiceID),
		},
		{
			name:       "root to a new table",
			source:     testutil.FactSessionID,
			target:     "new-table",
			wantKind:   lineage.DownStream,
			wantEdgeID: lineage.TableEdgeID(testutil.FactSessionID, "new-table"),
		},
		{
			name:     "outside the graph",
			source:   "a",
			target:   "b",
			wantKind: lineage.NoStream,
		},
		{
			name:     "column handles",
			source:   testutil.DimCustomerID + ":" + testutil.CustomerIDColumn,
			target:   testutil.FactSessionID + ":" + testutil.DerivedSessionTokenColumn,
			wantKind: lineage.UpStream,
			wantEdgeID: lineage.ColumnEdgeID(testutil.CustomerIDColumn, testutil.DerivedSessionTokenColumn,
				testutil.DimCustomerID, testutil.FactSessionID),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := clitestutil.NewTestRendererJSON()
			require.NoError(t, run(t, NewClassifyCommand(), testConfig(t), tr, graph, tt.source, tt.target))

			res := decode[classifyResult](t, tr)
			assert.Equal(t, tt.wantKind, res.Kind)
			if tt.wantEdgeID != "" {
				assert.Equal(t, tt.wantEdgeID, res.EdgeID)
			}
		})
	}
}

func TestClassifyCommand_Text(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRendererText()

	require.NoError(t, run(t, NewClassifyCommand(), testConfig(t), tr,
		filepath.Join(dir, "graph.json"), testutil.PrestoETLID, testutil.StorageServiceID))

	assert.Contains(t, tr.Output(), "upstream")
	assert.Contains(t, tr.Output(), "edge "+lineage.TableEdgeID(testutil.PrestoETLID, testutil.StorageServiceID))
}

func TestMergeCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	const rawAddressID = "7d1f9a0e-3c42-4a8b-9e6f-0a1b2c3d4e5f"
	fetched := lineage.Graph{
		Entity: lineage.EntityRef{ID: testutil.DimAddressID, Type: lineage.EntityTable},
		Nodes:  []lineage.EntityRef{{ID: rawAddressID, Type: lineage.EntityTable, Name: "raw_address"}},
		UpstreamEdges: []lineage.Edge{
			{FromEntity: rawAddressID, ToEntity: testutil.DimAddressID},
		},
	}
	clitestutil.WriteJSON(t, filepath.Join(dir, "fetched.json"), fetched)

	tr := clitestutil.NewTestRendererJSON()
	require.NoError(t, run(t, NewMergeCommand(), testConfig(t), tr,
		filepath.Join(dir, "graph.json"), filepath.Join(dir, "fetched.json"), "--direction", "from"))

	merged := decode[lineage.Graph](t, tr)
	assert.Len(t, merged.Nodes, 8)
	_, ok := merged.Lookup(rawAddressID)
	assert.True(t, ok)
	assert.Len(t, merged.UpstreamEdges, 8)
	assert.Len(t, merged.DownstreamEdges, 1)
}

func TestMergeCommand_BadDirection(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	graph := filepath.Join(dir, "graph.json")

	err := run(t, NewMergeCommand(), testConfig(t), clitestutil.NewTestRendererJSON(), graph, graph, "--direction", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown direction")
}

// catalogServer serves the fact_session sample like the catalog API and
// counts lineage requests.
func catalogServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var lineageCalls atomic.Int32
	cols := testutil.FactSessionColumns()

	r := chi.NewRouter()
	r.Get("/lineage/{type}/name/{fqn}", func(w http.ResponseWriter, r *http.Request) {
		lineageCalls.Add(1)
		if !strings.HasSuffix(chi.URLParam(r, "fqn"), "fact_session") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"message":"entity not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(testutil.FactSession())
	})
	r.Get("/tables/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"columns": cols[chi.URLParam(r, "id")]})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &lineageCalls
}

func TestFetchCommand(t *testing.T) {
	srv, calls := catalogServer(t)
	cfg := testConfig(t)
	cfg.Catalog.BaseURL = srv.URL
	out := t.TempDir()

	tr := clitestutil.NewTestRendererJSON()
	require.NoError(t, run(t, NewFetchCommand(), cfg, tr,
		"table", "sample_data.ecommerce_db.shopify.fact_session",
		"--out", filepath.Join(out, "graph.json"),
		"--columns-out", filepath.Join(out, "columns.json")))

	g := decode[lineage.Graph](t, tr)
	assert.Equal(t, testutil.FactSessionID, g.Entity.ID)
	assert.Equal(t, int32(1), calls.Load())

	// saved files feed the offline commands
	tr = clitestutil.NewTestRendererJSON()
	require.NoError(t, run(t, NewProjectCommand(), cfg, tr,
		filepath.Join(out, "graph.json"), "--columns", filepath.Join(out, "columns.json")))
	root, ok := nodeByID(decode[lineage.Projection](t, tr).Nodes, testutil.FactSessionID)
	require.True(t, ok)
	assert.NotEmpty(t, root.Columns)

	// second fetch is served from the state store
	tr = clitestutil.NewTestRendererJSON()
	require.NoError(t, run(t, NewFetchCommand(), cfg, tr, "table", "sample_data.ecommerce_db.shopify.fact_session"))
	assert.Equal(t, int32(1), calls.Load())

	tr = clitestutil.NewTestRendererJSON()
	require.NoError(t, run(t, NewFetchCommand(), cfg, tr, "--list"))
	records := decode[[]state.GraphRecord](t, tr)
	require.Len(t, records, 1)
	assert.Equal(t, testutil.FactSessionID, records[0].EntityID)

	tr = clitestutil.NewTestRendererText()
	require.NoError(t, run(t, NewFetchCommand(), cfg, tr, "--clear"))
	assert.Contains(t, tr.Output(), "Cleared")

	tr = clitestutil.NewTestRendererText()
	require.NoError(t, run(t, NewFetchCommand(), cfg, tr, "--list"))
	assert.Contains(t, tr.Output(), "No cached lineage")
}

func TestFetchCommand_NotFound(t *testing.T) {
	srv, _ := catalogServer(t)
	cfg := testConfig(t)
	cfg.Catalog.BaseURL = srv.URL
	cfg.Cache.Backend = intconfig.CacheNone

	err := run(t, NewFetchCommand(), cfg, clitestutil.NewTestRendererJSON(), "table", "missing.table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity not found")
}

func TestFetchCommand_Args(t *testing.T) {
	err := run(t, NewFetchCommand(), testConfig(t), clitestutil.NewTestRendererJSON(), "table")
	require.Error(t, err)

	err = run(t, NewFetchCommand(), testConfig(t), clitestutil.NewTestRendererJSON(), "--list", "extra")
	require.Error(t, err)
}
