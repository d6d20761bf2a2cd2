package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

type fakeCatalog struct {
	mu       sync.Mutex
	requests []recorded
	server   *httptest.Server
}

func newFakeCatalog(t *testing.T, handler http.HandlerFunc) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) calls() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_GetLineage(t *testing.T) {
	want := testutil.FactSession()
	f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, want)
	})

	c := New(f.server.URL+"/", "opaque-token", WithLogger(testutil.NewTestLogger(t)))
	got, err := c.GetLineage(context.Background(), lineage.EntityTable, "sample_data.ecommerce_db.shopify.fact_session", 2, 1)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, "/lineage/table/name/sample_data.ecommerce_db.shopify.fact_session", calls[0].path)
	assert.Equal(t, "downstreamDepth=1&upstreamDepth=2", calls[0].query)
	assert.Equal(t, "Bearer opaque-token", calls[0].auth)
}

func TestClient_GetColumns(t *testing.T) {
	cols := testutil.FactSessionColumns()[testutil.DimCustomerID]
	f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": testutil.DimCustomerID, "columns": cols})
	})
	c := New(f.server.URL, "")

	got, err := c.GetColumns(context.Background(), lineage.EntityTable, testutil.DimCustomerID)
	require.NoError(t, err)
	assert.Equal(t, cols, got)

	none, err := c.GetColumns(context.Background(), lineage.EntityDashboard, testutil.DashboardServiceID)
	require.NoError(t, err)
	assert.Nil(t, none)

	calls := f.calls()
	require.Len(t, calls, 1, "non-table types are not fetched")
	assert.Equal(t, "/tables/"+testutil.DimCustomerID, calls[0].path)
	assert.Equal(t, "fields=columns", calls[0].query)
	assert.Empty(t, calls[0].auth)
}

func TestClient_AddLineage(t *testing.T) {
	f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := New(f.server.URL, "")

	from := lineage.EntityRef{ID: "a", Type: lineage.EntityTable, Name: "a"}
	to := lineage.EntityRef{ID: "b", Type: lineage.EntityDashboard}
	detail := &lineage.LineageDetail{
		SQLQuery:       "select 1",
		ColumnsLineage: []lineage.ColumnMapping{{FromColumns: []string{"a.x"}, ToColumn: "b.y"}},
	}
	require.NoError(t, c.AddLineage(context.Background(), from, to, detail))

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].method)
	assert.Equal(t, "/lineage", calls[0].path)
	assert.JSONEq(t, `{"edge":{
		"fromEntity":{"id":"a","type":"table"},
		"toEntity":{"id":"b","type":"dashboard"},
		"lineageDetails":{"sqlQuery":"select 1","columnsLineage":[{"fromColumns":["a.x"],"toColumn":"b.y"}]}
	}}`, string(calls[0].body))
}

func TestClient_DeleteLineage(t *testing.T) {
	f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := New(f.server.URL, "")

	require.NoError(t, c.DeleteLineage(context.Background(), lineage.EntityTable, "a", lineage.EntityPipeline, "b"))

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodDelete, calls[0].method)
	assert.Equal(t, "/lineage/table/a/pipeline/b", calls[0].path)
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "json message", status: http.StatusNotFound, body: `{"code":404,"message":"table instance for x not found"}`, message: "table instance for x not found"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down\n", message: "upstream down"},
		{name: "empty body", status: http.StatusUnauthorized, body: "", message: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			c := New(f.server.URL, "")

			_, err := c.GetLineage(context.Background(), lineage.EntityTable, "x", 1, 1)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestClient_TokenExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "expired", token: signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), wantErr: true},
		{name: "valid", token: signed(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})},
		{name: "no exp", token: signed(t, jwt.MapClaims{"sub": "bot"})},
		{name: "opaque", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, lineage.Graph{Entity: lineage.EntityRef{ID: "x", Type: lineage.EntityTable}})
			})
			c := New(f.server.URL, tt.token)
			c.now = func() time.Time { return now }

			_, err := c.GetLineage(context.Background(), lineage.EntityTable, "x", 1, 1)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTokenExpired)
				assert.Empty(t, f.calls(), "no request with an expired token")
				return
			}
			assert.NoError(t, err)
		})
	}
}

type memoryCache struct {
	graphs  map[GraphKey]lineage.Graph
	columns map[string][]lineage.Column
	cleared int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{graphs: map[GraphKey]lineage.Graph{}, columns: map[string][]lineage.Column{}}
}

func (m *memoryCache) GetGraph(_ context.Context, key GraphKey) (lineage.Graph, error) {
	g, ok := m.graphs[key]
	if !ok {
		return lineage.Graph{}, ErrCacheMiss
	}
	return g, nil
}

func (m *memoryCache) SaveGraph(_ context.Context, key GraphKey, g lineage.Graph) error {
	m.graphs[key] = g
	return nil
}

func (m *memoryCache) GetColumns(_ context.Context, id string) ([]lineage.Column, error) {
	cols, ok := m.columns[id]
	if !ok {
		return nil, ErrCacheMiss
	}
	return cols, nil
}

func (m *memoryCache) SaveColumns(_ context.Context, id string, cols []lineage.Column) error {
	m.columns[id] = cols
	return nil
}

func (m *memoryCache) ClearGraphs(context.Context) error {
	m.graphs = map[GraphKey]lineage.Graph{}
	m.cleared++
	return nil
}

func TestCachedClient(t *testing.T) {
	graph := testutil.FactSession()
	cols := testutil.FactSessionColumns()[testutil.FactSessionID]
	f := newFakeCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("fields") == "columns" {
				writeJSON(w, map[string]any{"columns": cols})
				return
			}
			writeJSON(w, graph)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	cache := newMemoryCache()
	c := NewCached(New(f.server.URL, ""), cache, testutil.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g, err := c.GetLineage(ctx, lineage.EntityTable, "fact_session", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, graph, g)
	}
	_, err := c.GetLineage(ctx, lineage.EntityTable, "fact_session", 2, 1)
	require.NoError(t, err)
	assert.Len(t, f.calls(), 2, "one fetch per distinct depth")

	for i := 0; i < 2; i++ {
		got, err := c.GetColumns(ctx, lineage.EntityTable, testutil.FactSessionID)
		require.NoError(t, err)
		assert.Equal(t, cols, got)
	}
	assert.Len(t, f.calls(), 3)

	require.NoError(t, c.AddLineage(ctx, lineage.EntityRef{ID: "a", Type: lineage.EntityTable}, lineage.EntityRef{ID: "b", Type: lineage.EntityTable}, nil))
	assert.Equal(t, 1, cache.cleared)
	assert.Empty(t, cache.graphs)

	_, err = c.GetLineage(ctx, lineage.EntityTable, "fact_session", 1, 1)
	require.NoError(t, err)
	assert.Len(t, f.calls(), 5, "refetched after a write")
}

func TestCachedClient_NoCache(t *testing.T) {
	f := newFakeCatalog(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, testutil.FactSession())
	})
	c := NewCached(New(f.server.URL, ""), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := c.GetLineage(context.Background(), lineage.EntityTable, "fact_session", 1, 1)
		require.NoError(t, err)
	}
	assert.Len(t, f.calls(), 2)
}
