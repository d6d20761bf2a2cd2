package lineage

import "strings"

// Handle is one endpoint of a drawn connection: either a whole entity or a
// single column of it. An empty Column means an entity handle.
type Handle struct {
	EntityID string `json:"entityId" yaml:"entityId" validate:"required"`
	Column   string `json:"column,omitempty" yaml:"column,omitempty"`
}

// EntityHandle returns a handle for a whole entity.
func EntityHandle(id string) Handle {
	return Handle{EntityID: id}
}

// ColumnHandle returns a handle for one column of an entity.
func ColumnHandle(entityID, columnFQN string) Handle {
	return Handle{EntityID: entityID, Column: columnFQN}
}

// IsColumn reports whether the handle addresses a column.
func (h Handle) IsColumn() bool {
	return h.Column != ""
}

// String renders the handle as entityID or entityID:columnFQN.
func (h Handle) String() string {
	if h.Column == "" {
		return h.EntityID
	}
	return h.EntityID + ":" + h.Column
}

// ParseHandle parses the form produced by String. Column FQNs may contain
// colons; only the first one separates the entity id.
func ParseHandle(s string) Handle {
	id, col, _ := strings.Cut(s, ":")
	return Handle{EntityID: id, Column: col}
}

// Connection is a candidate edge drawn between two handles.
type Connection struct {
	Source Handle `json:"source" yaml:"source" validate:"required"`
	Target Handle `json:"target" yaml:"target" validate:"required"`
}

// IsColumnLineage reports whether both ends of the connection are columns.
func (c Connection) IsColumnLineage() bool {
	return c.Source.IsColumn() && c.Target.IsColumn()
}

// EdgeID returns the render edge id the connection would produce.
func (c Connection) EdgeID() string {
	if c.IsColumnLineage() {
		return ColumnEdgeID(c.Source.Column, c.Target.Column, c.Source.EntityID, c.Target.EntityID)
	}
	return TableEdgeID(c.Source.EntityID, c.Target.EntityID)
}

// TableEdgeID is the render id of a table-level edge.
func TableEdgeID(fromID, toID string) string {
	return "edge-" + fromID + "-" + toID
}

// ColumnEdgeID is the render id of a column-level edge.
func ColumnEdgeID(fromColumn, toColumn, fromID, toID string) string {
	return "column-" + fromColumn + "-" + toColumn + "-" + TableEdgeID(fromID, toID)
}
