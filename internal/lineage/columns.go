package lineage

// ColumnSelection identifies one column-to-column mapping inside the edge
// between Source and Target.
type ColumnSelection struct {
	Source       string `json:"source" yaml:"source" validate:"required"`
	Target       string `json:"target" yaml:"target" validate:"required"`
	SourceColumn string `json:"sourceColumn" yaml:"sourceColumn" validate:"required"`
	TargetColumn string `json:"targetColumn" yaml:"targetColumn" validate:"required"`
}

// SelectionFromEdge builds a selection from a column-level render edge.
func SelectionFromEdge(e RenderEdge) (ColumnSelection, bool) {
	if !e.IsColumnLineage {
		return ColumnSelection{}, false
	}
	return ColumnSelection{
		Source:       e.Source,
		Target:       e.Target,
		SourceColumn: e.SourceHandle,
		TargetColumn: e.TargetHandle,
	}, true
}

// RemoveColumnMapping removes sel.SourceColumn from the mappings targeting
// sel.TargetColumn, dropping mappings left without source columns.
//
// When no mapping targets sel.TargetColumn the result keeps the SQL query and
// has no column lineage at all.
func RemoveColumnMapping(detail LineageDetail, sel ColumnSelection) LineageDetail {
	out := LineageDetail{SQLQuery: detail.SQLQuery, ColumnsLineage: []ColumnMapping{}}

	matched := false
	for _, m := range detail.ColumnsLineage {
		if m.ToColumn == sel.TargetColumn {
			matched = true
			break
		}
	}
	if !matched {
		return out
	}

	for _, m := range detail.ColumnsLineage {
		if m.ToColumn != sel.TargetColumn {
			out.ColumnsLineage = append(out.ColumnsLineage, ColumnMapping{
				FromColumns: append([]string(nil), m.FromColumns...),
				ToColumn:    m.ToColumn,
			})
			continue
		}
		from := make([]string, 0, len(m.FromColumns))
		for _, c := range m.FromColumns {
			if c != sel.SourceColumn {
				from = append(from, c)
			}
		}
		if len(from) > 0 {
			out.ColumnsLineage = append(out.ColumnsLineage, ColumnMapping{FromColumns: from, ToColumn: m.ToColumn})
		}
	}
	return out
}

// AddColumnMapping records that fromColumn feeds toColumn.
func AddColumnMapping(detail LineageDetail, fromColumn, toColumn string) LineageDetail {
	out := detail.Clone()
	for i, m := range out.ColumnsLineage {
		if m.ToColumn != toColumn {
			continue
		}
		for _, c := range m.FromColumns {
			if c == fromColumn {
				return out
			}
		}
		out.ColumnsLineage[i].FromColumns = append(m.FromColumns, fromColumn)
		return out
	}
	out.ColumnsLineage = append(out.ColumnsLineage, ColumnMapping{
		FromColumns: []string{fromColumn},
		ToColumn:    toColumn,
	})
	return out
}

// ApplyColumnMapping sets the lineage detail of the edge from sel.Source to
// sel.Target. Other edges are returned unchanged and in order.
func ApplyColumnMapping(edges []Edge, sel ColumnSelection, detail LineageDetail) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, e := range edges {
		if e.FromEntity == sel.Source && e.ToEntity == sel.Target {
			d := detail.Clone()
			out[i] = Edge{FromEntity: e.FromEntity, ToEntity: e.ToEntity, LineageDetails: &d}
			continue
		}
		out[i] = e
	}
	return out
}

// FindEdge returns the first edge from fromID to toID.
func FindEdge(edges []Edge, fromID, toID string) (Edge, bool) {
	for _, e := range edges {
		if e.FromEntity == fromID && e.ToEntity == toID {
			return e, true
		}
	}
	return Edge{}, false
}
