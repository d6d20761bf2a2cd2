package lineage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FQNPart selects a segment of a table or column fully qualified name.
type FQNPart int

// Segments of service.database.schema.table[.column...].
const (
	PartService FQNPart = iota
	PartDatabase
	PartSchema
	PartTable
	PartColumn
	// PartNestedColumn selects everything after the table, joined by dots.
	PartNestedColumn
)

// EntityPart selects a segment of a non-table entity FQN.
type EntityPart string

// Segments of service.name[.child[.grandchild]] for non-table entities.
const (
	EntityPartService  EntityPart = "service"
	EntityPartDatabase EntityPart = "database"
	EntityPartTable    EntityPart = "table"
	EntityPartColumn   EntityPart = "column"
)

const fqnSeparator = "."

// SplitFQN splits a fully qualified name on dots. Double-quoted segments may
// contain dots and keep their quotes.
func SplitFQN(fqn string) []string {
	if fqn == "" {
		return nil
	}
	var (
		parts  []string
		cur    strings.Builder
		quoted bool
	)
	for _, r := range fqn {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == '.' && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, cur.String())
}

// PartialNameFromTableFQN joins the requested segments of a table or column
// FQN with sep. PartNestedColumn overrides every other part.
func PartialNameFromTableFQN(fqn string, parts []FQNPart, sep string) string {
	if fqn == "" {
		return ""
	}
	split := SplitFQN(fqn)
	if hasPart(parts, PartNestedColumn) {
		if len(split) <= 4 {
			return ""
		}
		return strings.Join(split[4:], fqnSeparator)
	}

	var out []string
	for p := PartService; p <= PartColumn; p++ {
		if hasPart(parts, p) && len(split) > int(p) {
			out = append(out, split[p])
		}
	}
	return strings.Join(out, sep)
}

// PartialNameFromFQN joins the requested segments of a non-table FQN with
// sep, in the order requested.
func PartialNameFromFQN(fqn string, parts []EntityPart, sep string) string {
	split := SplitFQN(fqn)
	var out []string
	for _, p := range parts {
		idx := -1
		switch p {
		case EntityPartService:
			idx = 0
		case EntityPartDatabase:
			idx = 1
		case EntityPartTable:
			idx = 2
		case EntityPartColumn:
			idx = 3
		}
		if idx >= 0 && len(split) > idx {
			out = append(out, split[idx])
		}
	}
	return strings.Join(out, sep)
}

// PrepareLabel returns the short name of an entity: the table segment for
// tables and the second segment for everything else.
func PrepareLabel(t EntityType, fqn string, withQuotes bool) string {
	var label string
	if t == EntityTable {
		label = PartialNameFromTableFQN(fqn, []FQNPart{PartTable}, "/")
	} else {
		label = PartialNameFromFQN(fqn, []EntityPart{EntityPartDatabase}, "/")
	}
	if withQuotes {
		return label
	}
	label = strings.TrimPrefix(label, `"`)
	return strings.TrimSuffix(label, `"`)
}

// DataLabel is the node label of an entity. Tables are prefixed with their
// database and schema when both are known.
func DataLabel(e EntityRef) string {
	label := e.DisplayName
	if label == "" {
		label = PrepareLabel(e.Type, e.FullyQualifiedName, true)
	}
	if label == "" {
		label = e.Name
	}
	if e.Type != EntityTable {
		return label
	}
	db := PartialNameFromTableFQN(e.FullyQualifiedName, []FQNPart{PartDatabase}, "/")
	schema := PartialNameFromTableFQN(e.FullyQualifiedName, []FQNPart{PartSchema}, "/")
	if db == "" || schema == "" {
		return label
	}
	return db + fqnSeparator + schema + fqnSeparator + label
}

// TableFQNFromColumnFQN strips the column part of a column FQN.
func TableFQNFromColumnFQN(columnFQN string) string {
	return PartialNameFromTableFQN(columnFQN, []FQNPart{PartService, PartDatabase, PartSchema, PartTable}, fqnSeparator)
}

// EntityTypeLabel returns a capitalized entity type, e.g. "Pipeline".
func EntityTypeLabel(t EntityType) string {
	return cases.Title(language.English).String(string(t))
}

// RemoveEdgeMessage is the confirmation shown before removing edge, whose
// endpoints are from and to.
func RemoveEdgeMessage(from, to EntityRef, edge RenderEdge) string {
	name := func(ref EntityRef, fqn string) string {
		if ref.DisplayName != "" {
			return ref.DisplayName
		}
		if ref.Type != EntityTable {
			return PartialNameFromFQN(fqn, []EntityPart{EntityPartDatabase}, "/")
		}
		part := PartTable
		if edge.IsColumnLineage {
			part = PartColumn
		}
		return PartialNameFromTableFQN(fqn, []FQNPart{part}, "/")
	}

	sourceFQN, targetFQN := from.FullyQualifiedName, to.FullyQualifiedName
	if edge.IsColumnLineage {
		sourceFQN, targetFQN = edge.SourceHandle, edge.TargetHandle
	}
	return `Are you sure you want to remove the edge between "` +
		name(from, sourceFQN) + " and " + name(to, targetFQN) + `"?`
}

func hasPart(parts []FQNPart, p FQNPart) bool {
	for _, q := range parts {
		if q == p {
			return true
		}
	}
	return false
}
