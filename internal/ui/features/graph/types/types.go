// Package types holds the request and response bodies of the lineage API.
package types //nolint:revive // intentional: imported with alias graphtypes

import (
	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// ProjectRequest asks for the render projection of a graph.
type ProjectRequest struct {
	Graph    lineage.Graph               `json:"graph" validate:"required"`
	Columns  map[string][]lineage.Column `json:"columns,omitempty"`
	EditMode bool                        `json:"editMode"`
}

// LayoutRequest asks for a laid-out projection of a graph.
type LayoutRequest struct {
	ProjectRequest
	Layout *layout.Options `json:"layout,omitempty"`
}

// ClassifyRequest asks where a connection between two handles belongs.
// Handles are "entityId" or "entityId:columnFQN".
type ClassifyRequest struct {
	Graph  lineage.Graph `json:"graph" validate:"required"`
	Source string        `json:"source" validate:"required"`
	Target string        `json:"target" validate:"required"`
}

// ClassifyResponse is the answer to a ClassifyRequest.
type ClassifyResponse struct {
	Kind   lineage.EdgeKind `json:"kind"`
	EdgeID string           `json:"edgeId"`
}

// MergeRequest folds an expansion response into a graph.
type MergeRequest struct {
	Graph     lineage.Graph `json:"graph" validate:"required"`
	Fetched   lineage.Graph `json:"fetched" validate:"required"`
	Direction string        `json:"direction" validate:"required,oneof=from to upstream downstream up down"`
}

// ExpandRequest expands a node of the session graph.
type ExpandRequest struct {
	NodeID    string `json:"nodeId" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=from to upstream downstream up down"`
}

// DisconnectRequest removes the edge between two entities.
type DisconnectRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// EditRequest switches edit mode.
type EditRequest struct {
	Enabled bool `json:"enabled"`
}

// NodeRequest addresses one node of the session graph.
type NodeRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
}

// ConnectResponse reports where a drawn edge was filed.
type ConnectResponse struct {
	Kind  lineage.EdgeKind `json:"kind"`
	Error string           `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
