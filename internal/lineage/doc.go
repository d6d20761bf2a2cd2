// Package lineage provides the entity lineage graph model and its transformations.
//
// A lineage Graph is the payload the catalog returns for one focus entity (the
// root): the entities around it plus the upstream edges flowing into it and the
// downstream edges flowing out of it. Edges between tables may carry
// column-level lineage and the SQL query that produced them.
//
// Everything in this package is a pure function over values. Mutators take a
// Graph and return a new one; the caller owns the live graph.
//
// # Features
//
//   - Column Lineage: removing and adding column-to-column mappings inside an edge
//   - Classification: deciding whether a drawn connection is upstream or downstream of the root
//   - Projection: turning the graph into render nodes and edges with node kinds and column connectivity
//   - Expansion: merging the lineage of an expanded leaf node into the current graph
//   - Labels: short display names derived from fully qualified names
//
// # Basic Usage
//
//	proj := lineage.Project(graph, lineage.ProjectOptions{
//	    Columns: columnsByEntityID,
//	})
//
//	for _, n := range proj.Nodes {
//	    fmt.Printf("%s: %s\n", n.Label, n.Kind)
//	}
//
// Positions are left at the origin; package layout assigns them.
package lineage
