// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/explorer"
	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/metrics"
	"github.com/leapstack-labs/leaplineage/internal/testutil"
	"github.com/leapstack-labs/leaplineage/internal/ui/notifier"
)

// FactSessionFQN is the fully qualified name the fake catalog serves the
// sample lineage under.
const FactSessionFQN = "sample_data.ecommerce_db.shopify.fact_session"

// PersistCall is one write received by the fake catalog.
type PersistCall struct {
	Op     string
	From   string
	To     string
	Detail *lineage.LineageDetail
}

// FakeCatalog is an in-memory catalog serving lineage by FQN and columns by
// entity id. It records every write.
type FakeCatalog struct {
	mu       sync.Mutex
	Graphs   map[string]lineage.Graph
	Columns  map[string][]lineage.Column
	Calls    []PersistCall
	WriteErr error
}

// NewFakeCatalog returns a catalog holding the fact_session sample.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Graphs:  map[string]lineage.Graph{FactSessionFQN: testutil.FactSession()},
		Columns: testutil.FactSessionColumns(),
	}
}

// GetLineage returns the graph stored under fqn.
func (c *FakeCatalog) GetLineage(_ context.Context, _ lineage.EntityType, fqn string, _, _ int) (lineage.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.Graphs[fqn]
	if !ok {
		return lineage.Graph{}, &catalog.APIError{Status: http.StatusNotFound, Message: "entity not found"}
	}
	return g.Clone(), nil
}

// GetColumns returns the columns stored under id.
func (c *FakeCatalog) GetColumns(_ context.Context, _ lineage.EntityType, id string) ([]lineage.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Columns[id], nil
}

// AddLineage records an add.
func (c *FakeCatalog) AddLineage(_ context.Context, from, to lineage.EntityRef, detail *lineage.LineageDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, PersistCall{Op: "add", From: from.ID, To: to.ID, Detail: detail})
	return c.WriteErr
}

// DeleteLineage records a delete.
func (c *FakeCatalog) DeleteLineage(_ context.Context, _ lineage.EntityType, fromID string, _ lineage.EntityType, toID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, PersistCall{Op: "delete", From: fromID, To: toID})
	return c.WriteErr
}

// Writes returns a copy of the recorded writes.
func (c *FakeCatalog) Writes() []PersistCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PersistCall(nil), c.Calls...)
}

// SetWriteErr makes every following write fail with err.
func (c *FakeCatalog) SetWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteErr = err
}

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Catalog      *FakeCatalog
	Manager      *explorer.Manager
	Notifier     *notifier.Notifier
	Metrics      *metrics.Registry
	SessionStore *sessions.CookieStore
}

// SetupTestFixture creates a fixture whose sessions read from and write to
// a fake catalog and broadcast changes on the notifier.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)
	f := &TestFixture{
		Catalog:      NewFakeCatalog(),
		Notifier:     NewTestNotifier(),
		Metrics:      metrics.NewRegistry(),
		SessionStore: NewTestSessionStore(),
	}
	f.Manager = explorer.NewManager(func(id string) explorer.Options {
		return explorer.Options{
			Fetcher:   f.Catalog,
			Persister: f.Catalog,
			Layout:    layout.DefaultOptions(),
			Logger:    logger.With("session", id),
			Metrics:   f.Metrics,
			OnChange:  func() { f.Notifier.Broadcast(id) },
		}
	})
	return f
}

// ErrWrite is a catalog write failure for tests.
var ErrWrite = errors.New("catalog write rejected")

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// RequestWithTimeout wraps a request with a context timeout. The context is
// released when the timeout fires.
func RequestWithTimeout(r *http.Request, timeout time.Duration) *http.Request {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	_ = cancel
	return r.WithContext(ctx)
}

// NewTestNotifier creates a notifier for testing.
func NewTestNotifier() *notifier.Notifier {
	return notifier.New()
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
