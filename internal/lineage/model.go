package lineage

// EntityType identifies the kind of catalog entity a node stands for.
type EntityType string

// Entity types that take part in lineage.
const (
	EntityTable     EntityType = "table"
	EntityTopic     EntityType = "topic"
	EntityDashboard EntityType = "dashboard"
	EntityPipeline  EntityType = "pipeline"
	EntityMLModel   EntityType = "mlmodel"
	EntityContainer EntityType = "container"
)

// EntityRef references a catalog entity. Identity is ID.
type EntityRef struct {
	ID                 string     `json:"id" yaml:"id" validate:"required"`
	Type               EntityType `json:"type" yaml:"type" validate:"required"`
	Name               string     `json:"name,omitempty" yaml:"name,omitempty"`
	FullyQualifiedName string     `json:"fullyQualifiedName,omitempty" yaml:"fullyQualifiedName,omitempty"`
	DisplayName        string     `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description        string     `json:"description,omitempty" yaml:"description,omitempty"`
	Deleted            bool       `json:"deleted" yaml:"deleted"`
	Href               string     `json:"href,omitempty" yaml:"href,omitempty"`
}

// IsZero reports whether the reference is empty.
func (e EntityRef) IsZero() bool {
	return e.ID == ""
}

// ColumnMapping says that one or more source columns feed a single target column.
type ColumnMapping struct {
	FromColumns []string `json:"fromColumns" yaml:"fromColumns"`
	ToColumn    string   `json:"toColumn" yaml:"toColumn"`
}

// LineageDetail is the column-level detail of a table-to-table edge.
type LineageDetail struct {
	SQLQuery       string          `json:"sqlQuery" yaml:"sqlQuery"`
	ColumnsLineage []ColumnMapping `json:"columnsLineage" yaml:"columnsLineage"`
}

// Edge is a directed lineage edge between two entity ids. Edges with an
// unknown or empty endpoint are tolerated and skipped when projecting.
type Edge struct {
	FromEntity     string         `json:"fromEntity" yaml:"fromEntity"`
	ToEntity       string         `json:"toEntity" yaml:"toEntity"`
	LineageDetails *LineageDetail `json:"lineageDetails,omitempty" yaml:"lineageDetails,omitempty"`
}

// Graph is the lineage of one root entity.
//
// Upstream edges flow toward the root, downstream edges flow away from it.
// Nodes holds every participating entity other than the root.
type Graph struct {
	Entity          EntityRef   `json:"entity" yaml:"entity" validate:"required"`
	Nodes           []EntityRef `json:"nodes" yaml:"nodes" validate:"dive"`
	UpstreamEdges   []Edge      `json:"upstreamEdges" yaml:"upstreamEdges"`
	DownstreamEdges []Edge      `json:"downstreamEdges" yaml:"downstreamEdges"`
}

// Column is a column of a table entity as returned by the catalog.
type Column struct {
	Name               string   `json:"name" yaml:"name"`
	FullyQualifiedName string   `json:"fullyQualifiedName,omitempty" yaml:"fullyQualifiedName,omitempty"`
	DataType           string   `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	Children           []Column `json:"children,omitempty" yaml:"children,omitempty"`
}

// Key returns the identifier used for column handles.
func (c Column) Key() string {
	if c.FullyQualifiedName != "" {
		return c.FullyQualifiedName
	}
	return c.Name
}

// Entities returns the root followed by the other nodes, without duplicates.
func (g Graph) Entities() []EntityRef {
	out := make([]EntityRef, 0, len(g.Nodes)+1)
	seen := make(map[string]struct{}, len(g.Nodes)+1)
	for _, e := range append([]EntityRef{g.Entity}, g.Nodes...) {
		if e.ID == "" {
			continue
		}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Lookup finds an entity by id, including the root.
func (g Graph) Lookup(id string) (EntityRef, bool) {
	if id == "" {
		return EntityRef{}, false
	}
	if g.Entity.ID == id {
		return g.Entity, true
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return EntityRef{}, false
}

// Edges returns downstream edges followed by upstream edges.
func (g Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.DownstreamEdges)+len(g.UpstreamEdges))
	out = append(out, g.DownstreamEdges...)
	return append(out, g.UpstreamEdges...)
}

// IsEmpty reports whether the graph has no root.
func (g Graph) IsEmpty() bool {
	return g.Entity.ID == ""
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	return Graph{
		Entity:          g.Entity,
		Nodes:           append([]EntityRef(nil), g.Nodes...),
		UpstreamEdges:   cloneEdges(g.UpstreamEdges),
		DownstreamEdges: cloneEdges(g.DownstreamEdges),
	}
}

// Clone returns a deep copy of the detail.
func (d LineageDetail) Clone() LineageDetail {
	out := LineageDetail{SQLQuery: d.SQLQuery}
	if d.ColumnsLineage != nil {
		out.ColumnsLineage = make([]ColumnMapping, len(d.ColumnsLineage))
		for i, m := range d.ColumnsLineage {
			out.ColumnsLineage[i] = ColumnMapping{
				FromColumns: append([]string(nil), m.FromColumns...),
				ToColumn:    m.ToColumn,
			}
		}
	}
	return out
}

func cloneEdges(edges []Edge) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = cloneEdge(e)
	}
	return out
}

func cloneEdge(e Edge) Edge {
	if e.LineageDetails != nil {
		d := e.LineageDetails.Clone()
		e.LineageDetails = &d
	}
	return e
}
