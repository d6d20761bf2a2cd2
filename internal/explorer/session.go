// Package explorer owns live lineage graphs. A Session holds one graph and
// applies expansions and edits to it through the pure functions of package
// lineage, persisting edits to the catalog.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/metrics"
)

// Errors returned by sessions.
var (
	ErrNodeNotFound   = errors.New("explorer: node not found")
	ErrNoGraph        = errors.New("explorer: no lineage loaded")
	ErrUnknownSession = errors.New("explorer: unknown session")
)

// columnFetchLimit bounds concurrent column requests.
const columnFetchLimit = 8

// Fetcher reads lineage from the catalog.
type Fetcher interface {
	GetLineage(ctx context.Context, entityType lineage.EntityType, fqn string, upstreamDepth, downstreamDepth int) (lineage.Graph, error)
	GetColumns(ctx context.Context, entityType lineage.EntityType, id string) ([]lineage.Column, error)
}

// Persister writes lineage edits to the catalog.
type Persister interface {
	AddLineage(ctx context.Context, from, to lineage.EntityRef, detail *lineage.LineageDetail) error
	DeleteLineage(ctx context.Context, fromType lineage.EntityType, fromID string, toType lineage.EntityType, toID string) error
}

// Options configures a Session.
type Options struct {
	Fetcher   Fetcher
	Persister Persister
	Layout    layout.Options
	// UpstreamDepth and DownstreamDepth apply to Load. Expansions always
	// fetch one level.
	UpstreamDepth   int
	DownstreamDepth int
	Logger          *slog.Logger
	Metrics         *metrics.Registry
	// OnChange is called after every change of the graph or its view state.
	OnChange func()
}

// View is the laid-out projection of a session.
type View struct {
	Root     lineage.EntityRef    `json:"root" yaml:"root"`
	Nodes    []lineage.RenderNode `json:"nodes" yaml:"nodes"`
	Edges    []lineage.RenderEdge `json:"edges" yaml:"edges"`
	EditMode bool                 `json:"editMode" yaml:"editMode"`
}

// Session is one live lineage graph. All methods are safe for concurrent use.
type Session struct {
	id   string
	opts Options

	group singleflight.Group

	mu         sync.Mutex
	graph      lineage.Graph
	columns    map[string][]lineage.Column
	leaves     *lineage.LeafNodes
	loading    map[string]bool
	expanded   map[string]bool
	editMode   bool
	generation uint64
}

// NewSession creates an empty session.
func NewSession(id string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.UpstreamDepth == 0 && opts.DownstreamDepth == 0 {
		opts.UpstreamDepth, opts.DownstreamDepth = 1, 1
	}
	return &Session{
		id:       id,
		opts:     opts,
		columns:  make(map[string][]lineage.Column),
		leaves:   &lineage.LeafNodes{},
		loading:  make(map[string]bool),
		expanded: make(map[string]bool),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Graph returns a copy of the current graph.
func (s *Session) Graph() lineage.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone()
}

// SetGraph replaces the graph without fetching, e.g. from a file or the
// state store, together with the known columns.
func (s *Session) SetGraph(g lineage.Graph, columns map[string][]lineage.Column) {
	s.mu.Lock()
	s.replace(g)
	for id, cols := range columns {
		s.columns[id] = cols
	}
	s.mu.Unlock()
	s.changed()
}

// replace swaps the root graph. Callers hold mu.
func (s *Session) replace(g lineage.Graph) {
	s.generation++
	s.graph = g.Clone()
	s.leaves = &lineage.LeafNodes{}
	s.loading = make(map[string]bool)
	s.expanded = make(map[string]bool)
	s.columns = make(map[string][]lineage.Column)
}

// Load fetches the lineage of an entity and makes it the session's graph.
// Expansions still in flight for the previous graph are discarded.
func (s *Session) Load(ctx context.Context, entityType lineage.EntityType, fqn string) error {
	if s.opts.Fetcher == nil {
		return errors.New("explorer: no catalog configured")
	}
	g, err := s.opts.Fetcher.GetLineage(ctx, entityType, fqn, s.opts.UpstreamDepth, s.opts.DownstreamDepth)
	if err != nil {
		return err
	}
	cols := s.fetchColumns(ctx, g.Entities())

	s.mu.Lock()
	s.replace(g)
	for id, c := range cols {
		s.columns[id] = c
	}
	s.mu.Unlock()

	s.opts.Logger.Info("lineage loaded", "session", s.id, "entity", fqn, "nodes", len(g.Nodes))
	s.changed()
	return nil
}

// Expand fetches one more level of lineage for a node in dir and merges it.
//
// Concurrent calls for the same node and direction share one fetch and one
// merge. A result that arrives after the graph was replaced is dropped.
// On failure the graph is left unchanged.
func (s *Session) Expand(ctx context.Context, nodeID string, dir lineage.Direction) error {
	if _, err := lineage.ParseDirection(string(dir)); err != nil {
		return err
	}
	if s.opts.Fetcher == nil {
		return errors.New("explorer: no catalog configured")
	}

	s.mu.Lock()
	node, ok := s.graph.Lookup(nodeID)
	gen := s.generation
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	key := fmt.Sprintf("%d|%s|%s", gen, nodeID, dir)
	_, err, _ := s.group.Do(key, func() (any, error) {
		return nil, s.expand(ctx, node, dir, gen)
	})
	return err
}

// expand runs one fetch and merge against generation gen of the graph.
func (s *Session) expand(ctx context.Context, node lineage.EntityRef, dir lineage.Direction, gen uint64) error {
	start := time.Now()

	s.mu.Lock()
	if s.generation == gen {
		s.loading[node.ID] = true
	}
	s.mu.Unlock()
	s.changed()

	up, down := 1, 0
	if dir == lineage.Downstream {
		up, down = 0, 1
	}
	fqn := node.FullyQualifiedName
	if fqn == "" {
		fqn = node.Name
	}

	fetched, err := s.opts.Fetcher.GetLineage(ctx, node.Type, fqn, up, down)
	var cols map[string][]lineage.Column
	if err == nil {
		cols = s.fetchColumns(ctx, s.missingColumns(fetched.Entities()))
	}

	s.mu.Lock()
	if s.generation == gen {
		delete(s.loading, node.ID)
	}
	result := metrics.ExpansionMerged
	switch {
	case err != nil:
		result = metrics.ExpansionError
	case s.generation != gen:
		result = metrics.ExpansionStale
	default:
		if fetched.Entity.ID == "" {
			fetched.Entity = node
		}
		if s.leaves.Record(fetched, dir) {
			result = metrics.ExpansionLeaf
		}
		s.graph = lineage.MergeExpansion(s.graph, fetched, dir)
		for id, c := range cols {
			s.columns[id] = c
		}
	}
	s.mu.Unlock()

	s.opts.Metrics.RecordExpansion(string(dir), result, time.Since(start))
	s.changed()

	if err != nil {
		s.opts.Logger.Error("expansion failed", "session", s.id, "node", node.ID, "direction", dir, "error", err)
		return fmt.Errorf("expand %s: %w", node.ID, err)
	}
	s.opts.Logger.Debug("expansion done", "session", s.id, "node", node.ID, "direction", dir, "result", result)
	return nil
}

// missingColumns returns the entities whose columns are not yet known.
func (s *Session) missingColumns(entities []lineage.EntityRef) []lineage.EntityRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]lineage.EntityRef, 0, len(entities))
	for _, e := range entities {
		if _, ok := s.columns[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// fetchColumns fetches the columns of entities concurrently. Failures are
// logged; the columns that were fetched are still returned.
func (s *Session) fetchColumns(ctx context.Context, entities []lineage.EntityRef) map[string][]lineage.Column {
	results := make([][]lineage.Column, len(entities))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(columnFetchLimit)
	for i, e := range entities {
		if e.Type != lineage.EntityTable {
			continue
		}
		eg.Go(func() error {
			cols, err := s.opts.Fetcher.GetColumns(egctx, e.Type, e.ID)
			if err != nil {
				return fmt.Errorf("columns of %s: %w", e.ID, err)
			}
			results[i] = cols
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		s.opts.Logger.Warn("column fetch failed", "session", s.id, "error", err)
	}

	out := make(map[string][]lineage.Column, len(entities))
	for i, e := range entities {
		if results[i] != nil {
			out[e.ID] = results[i]
		}
	}
	return out
}

// Connect adds a drawn edge and persists it. The in-memory graph keeps the
// edge even if the catalog rejects it.
func (s *Session) Connect(ctx context.Context, ne lineage.NewEdge) (lineage.EdgeKind, error) {
	s.mu.Lock()
	if s.graph.IsEmpty() {
		s.mu.Unlock()
		return "", ErrNoGraph
	}
	g, kind := lineage.AddEdge(s.graph, ne)
	s.graph = g
	var detail *lineage.LineageDetail
	for _, edges := range [][]lineage.Edge{g.UpstreamEdges, g.DownstreamEdges} {
		if e, ok := lineage.FindEdge(edges, ne.From.ID, ne.To.ID); ok && e.LineageDetails != nil {
			d := e.LineageDetails.Clone()
			detail = &d
			break
		}
	}
	s.mu.Unlock()
	s.changed()

	if s.opts.Persister == nil {
		return kind, nil
	}
	if err := s.opts.Persister.AddLineage(ctx, ne.From, ne.To, detail); err != nil {
		return kind, s.persistFailed("add", err)
	}
	return kind, nil
}

// Disconnect removes the edge between two entities and deletes it from the
// catalog.
func (s *Session) Disconnect(ctx context.Context, fromID, toID string) error {
	s.mu.Lock()
	if s.graph.IsEmpty() {
		s.mu.Unlock()
		return ErrNoGraph
	}
	from, to := lineage.RemovedEdgeEndpoints(s.graph, lineage.RenderEdge{Source: fromID, Target: toID}, lineage.EntityRef{})
	s.graph = lineage.RemoveEdge(s.graph, fromID, toID)
	s.mu.Unlock()
	s.changed()

	if s.opts.Persister == nil {
		return nil
	}
	if err := s.opts.Persister.DeleteLineage(ctx, from.Type, fromID, to.Type, toID); err != nil {
		return s.persistFailed("delete", err)
	}
	return nil
}

// RemoveColumn removes one column mapping and persists the remaining detail
// of its edge.
func (s *Session) RemoveColumn(ctx context.Context, sel lineage.ColumnSelection) error {
	s.mu.Lock()
	from, okFrom := s.graph.Lookup(sel.Source)
	to, okTo := s.graph.Lookup(sel.Target)
	if !okFrom || !okTo {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrNodeNotFound, sel.Source, sel.Target)
	}
	s.graph = lineage.UpdateColumnMapping(s.graph, sel)
	var detail *lineage.LineageDetail
	for _, edges := range [][]lineage.Edge{s.graph.UpstreamEdges, s.graph.DownstreamEdges} {
		if e, ok := lineage.FindEdge(edges, sel.Source, sel.Target); ok {
			d := lineage.LineageDetail{ColumnsLineage: []lineage.ColumnMapping{}}
			if e.LineageDetails != nil {
				d = e.LineageDetails.Clone()
			}
			detail = &d
			break
		}
	}
	s.mu.Unlock()
	s.changed()

	if s.opts.Persister == nil || detail == nil {
		return nil
	}
	if err := s.opts.Persister.AddLineage(ctx, from, to, detail); err != nil {
		return s.persistFailed("update", err)
	}
	return nil
}

// RemoveNode removes a node with its edges and deletes those edges from the
// catalog. The root cannot be removed.
func (s *Session) RemoveNode(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.graph.Lookup(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if id == s.graph.Entity.ID {
		s.mu.Unlock()
		return fmt.Errorf("explorer: cannot remove the root %s", id)
	}
	var removed []lineage.Edge
	for _, e := range s.graph.Edges() {
		if e.FromEntity == id || e.ToEntity == id {
			removed = append(removed, e)
		}
	}
	before := s.graph
	s.graph = lineage.RemoveNode(s.graph, id)
	delete(s.columns, id)
	delete(s.expanded, id)
	s.mu.Unlock()
	s.changed()

	if s.opts.Persister == nil {
		return nil
	}
	var errs []error
	seen := make(map[string]bool, len(removed))
	for _, e := range removed {
		eid := lineage.TableEdgeID(e.FromEntity, e.ToEntity)
		if seen[eid] {
			continue
		}
		seen[eid] = true
		from, _ := before.Lookup(e.FromEntity)
		to, _ := before.Lookup(e.ToEntity)
		if err := s.opts.Persister.DeleteLineage(ctx, from.Type, e.FromEntity, to.Type, e.ToEntity); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return s.persistFailed("delete", err)
	}
	return nil
}

func (s *Session) persistFailed(op string, err error) error {
	s.opts.Metrics.RecordPersistFailure(op)
	s.opts.Logger.Error("lineage edit not persisted", "session", s.id, "operation", op, "error", err)
	return fmt.Errorf("persist %s: %w", op, err)
}

// SetEditMode switches edit mode on or off.
func (s *Session) SetEditMode(on bool) {
	s.mu.Lock()
	s.editMode = on
	s.mu.Unlock()
	s.changed()
}

// EditMode reports whether edit mode is on.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// ToggleExpanded flips the column view of a node and returns the new state.
func (s *Session) ToggleExpanded(id string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.graph.Lookup(id); !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	expanded := !s.expanded[id]
	if expanded {
		s.expanded[id] = true
	} else {
		delete(s.expanded, id)
	}
	s.mu.Unlock()
	s.changed()
	return expanded, nil
}

// View projects and lays out the current graph.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.projectLocked()
	start := time.Now()
	nodes := layout.Layout(p.Nodes, p.Edges, s.opts.Layout)
	s.opts.Metrics.RecordLayout(time.Since(start))

	return View{Root: s.graph.Entity, Nodes: nodes, Edges: p.Edges, EditMode: s.editMode}
}

// projectLocked projects the graph. Callers hold mu.
func (s *Session) projectLocked() lineage.Projection {
	loading := make(map[string]bool, len(s.loading))
	for id, v := range s.loading {
		loading[id] = v
	}

	previous := make([]lineage.RenderNode, 0, len(s.expanded))
	for id := range s.expanded {
		previous = append(previous, lineage.RenderNode{ID: id, IsExpanded: true})
	}

	start := time.Now()
	p := lineage.Project(s.graph, lineage.ProjectOptions{
		Columns:  s.columns,
		EditMode: s.editMode,
		Previous: previous,
		Leaves:   s.leaves,
		Loading:  loading,
	})
	s.opts.Metrics.RecordProjection("session", len(p.Nodes), time.Since(start))
	return p
}

func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
