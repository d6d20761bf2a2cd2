// Package graph provides the lineage API: stateless projection, layout,
// classification and merging, plus the session-backed explorer.
package graph

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leaplineage/internal/explorer"
	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/metrics"
	graphtypes "github.com/leapstack-labs/leaplineage/internal/ui/features/graph/types"
	"github.com/leapstack-labs/leaplineage/internal/ui/notifier"
)

const (
	cookieName = "leaplineage"
	sessionKey = "explorer"
)

// Handlers provides HTTP handlers for the lineage feature.
type Handlers struct {
	manager      *explorer.Manager
	sessionStore sessions.Store
	notifier     *notifier.Notifier
	metrics      *metrics.Registry
	layout       layout.Options
	logger       *slog.Logger
}

// Deps are the dependencies of the handlers.
type Deps struct {
	Manager      *explorer.Manager
	SessionStore sessions.Store
	Notifier     *notifier.Notifier
	Metrics      *metrics.Registry
	Layout       layout.Options
	Logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		manager:      d.Manager,
		sessionStore: d.SessionStore,
		notifier:     d.Notifier,
		metrics:      d.Metrics,
		layout:       d.Layout,
		logger:       logger,
	}
}

func (h *Handlers) project(req graphtypes.ProjectRequest) lineage.Projection {
	start := time.Now()
	p := lineage.Project(req.Graph, lineage.ProjectOptions{Columns: req.Columns, EditMode: req.EditMode})
	h.metrics.RecordProjection("api", len(p.Nodes), time.Since(start))
	return p
}

// Project returns the render projection of a graph.
func (h *Handlers) Project(w http.ResponseWriter, r *http.Request) {
	var req graphtypes.ProjectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.project(req))
}

// Layout returns a projection with node positions.
func (h *Handlers) Layout(w http.ResponseWriter, r *http.Request) {
	var req graphtypes.LayoutRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts := h.layout
	if req.Layout != nil {
		opts = *req.Layout
	}

	p := h.project(req.ProjectRequest)
	start := time.Now()
	p.Nodes = layout.Layout(p.Nodes, p.Edges, opts)
	h.metrics.RecordLayout(time.Since(start))
	writeJSON(w, http.StatusOK, p)
}

// Classify returns where a connection between two handles belongs.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req graphtypes.ClassifyRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	conn := lineage.Connection{
		Source: lineage.ParseHandle(req.Source),
		Target: lineage.ParseHandle(req.Target),
	}
	writeJSON(w, http.StatusOK, graphtypes.ClassifyResponse{
		Kind:   lineage.Classify(req.Graph, conn),
		EdgeID: conn.EdgeID(),
	})
}

// Merge folds an expansion response into a graph.
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	var req graphtypes.MergeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	dir, err := lineage.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	writeJSON(w, http.StatusOK, lineage.MergeExpansion(req.Graph, req.Fetched, dir))
}

// session returns the explorer session of the request, creating it and
// setting the cookie when needed. It must run before the body is written.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *explorer.Session {
	cookie, err := h.sessionStore.Get(r, cookieName)
	if err != nil {
		h.logger.Debug("discarding unreadable session cookie", "error", err)
	}
	id, _ := cookie.Values[sessionKey].(string)

	s := h.manager.GetOrCreate(id)
	if s.ID() != id {
		cookie.Values[sessionKey] = s.ID()
		if err := cookie.Save(r, w); err != nil {
			h.logger.Error("failed to save session cookie", "error", err)
		}
	}
	return s
}

// Load fetches the lineage of an entity into the session.
func (h *Handlers) Load(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)

	fqn, err := url.PathUnescape(chi.URLParam(r, "fqn"))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	entityType := lineage.EntityType(chi.URLParam(r, "type"))

	if err := s.Load(r.Context(), entityType, fqn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// View returns the session's current view.
func (h *Handlers) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(w, r).View())
}

// Expand expands a node of the session graph.
func (h *Handlers) Expand(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req graphtypes.ExpandRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	dir, err := lineage.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.Expand(r.Context(), req.NodeID, dir); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Connect adds a drawn edge to the session graph.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req lineage.NewEdge
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := s.Connect(r.Context(), req)
	if kind == "" && err != nil {
		writeError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, statusOf(err), graphtypes.ConnectResponse{Kind: kind, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, graphtypes.ConnectResponse{Kind: kind})
}

// Disconnect removes an edge from the session graph.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req graphtypes.DisconnectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Disconnect(r.Context(), req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveColumn removes one column mapping from the session graph.
func (h *Handlers) RemoveColumn(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req lineage.ColumnSelection
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.RemoveColumn(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveNode removes a node from the session graph.
func (h *Handlers) RemoveNode(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req graphtypes.NodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.RemoveNode(r.Context(), req.NodeID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Toggle flips the column view of a node.
func (h *Handlers) Toggle(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req graphtypes.NodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	expanded, err := s.ToggleExpanded(req.NodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expanded": expanded})
}

// Edit switches edit mode of the session.
func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	var req graphtypes.EditRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.SetEditMode(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// Updates is the long-lived SSE endpoint of a session. It patches the
// lineage signal with the current view, then again on every change.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe(s.ID())
	defer h.notifier.Unsubscribe(s.ID(), updates)

	if err := h.sendView(sse, s); err != nil {
		_ = sse.ConsoleError(err)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.sendView(sse, s); err != nil {
				_ = sse.ConsoleError(err)
				// keep the stream; the next change retries
			}
		}
	}
}

func (h *Handlers) sendView(sse *datastar.ServerSentEventGenerator, s *explorer.Session) error {
	return sse.MarshalAndPatchSignals(map[string]any{"lineage": s.View()})
}
