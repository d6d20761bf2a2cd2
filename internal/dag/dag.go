// Package dag provides a directed graph index over lineage entities.
// It supports cycle detection, back-edge reversal, longest-path ranking,
// weakly connected components and upstream/downstream traversal.
//
// Lineage graphs may contain cycles. Operations that need an acyclic graph
// work on Acyclic(), which reverses the back edges found by a depth-first
// search in insertion order, so results are deterministic.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (entity id)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Edge is a directed edge between two node ids.
type Edge struct {
	From string
	To   string
}

// Graph is a directed graph that remembers insertion order.
type Graph struct {
	order    []string
	nodes    map[string]*Node
	children map[string][]string
	parents  map[string][]string
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		// Update data if node already exists
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.order = append(g.order, id)
}

// AddEdge adds a directed edge from one node to another. Duplicate edges are
// ignored.
func (g *Graph) AddEdge(from, to string) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("source node %q does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("target node %q does not exist", to)
	}
	if from == to {
		return fmt.Errorf("self-loop detected: %s", from)
	}

	if !contains(g.children[from], to) {
		g.children[from] = append(g.children[from], to)
		g.parents[to] = append(g.parents[to], from)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// IDs returns node ids in insertion order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Edges returns all edges, grouped by source in insertion order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, from := range g.order {
		for _, to := range g.children[from] {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, childID := range g.children[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if onStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// BackEdges returns the edges that close a cycle during a depth-first search
// started from each unvisited node in insertion order.
func (g *Graph) BackEdges() []Edge {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var back []Edge

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		for _, childID := range g.children[id] {
			switch {
			case onStack[childID]:
				back = append(back, Edge{From: id, To: childID})
			case !visited[childID]:
				dfs(childID)
			}
		}
		onStack[id] = false
	}

	for _, id := range g.order {
		if !visited[id] {
			dfs(id)
		}
	}
	return back
}

// Acyclic returns a copy of the graph with every back edge reversed. A
// reversed edge that already exists in the other direction is dropped.
func (g *Graph) Acyclic() *Graph {
	back := make(map[Edge]bool)
	for _, e := range g.BackEdges() {
		back[e] = true
	}

	out := NewGraph()
	for _, id := range g.order {
		out.AddNode(id, g.nodes[id].Data)
	}
	for _, e := range g.Edges() {
		if back[e] {
			_ = out.AddEdge(e.To, e.From)
			continue
		}
		_ = out.AddEdge(e.From, e.To)
	}
	return out
}

// Ranks returns the longest-path rank of every node: sources are rank 0 and
// every node sits one rank below its deepest parent. Cycles are broken with
// Acyclic first.
func (g *Graph) Ranks() map[string]int {
	acyclic := g
	if hasCycle, _ := g.HasCycle(); hasCycle {
		acyclic = g.Acyclic()
	}

	ranks := make(map[string]int, len(g.nodes))
	var rank func(id string) int
	rank = func(id string) int {
		if r, ok := ranks[id]; ok {
			return r
		}
		r := 0
		for _, parentID := range acyclic.parents[id] {
			if pr := rank(parentID) + 1; pr > r {
				r = pr
			}
		}
		ranks[id] = r
		return r
	}

	for _, id := range acyclic.order {
		rank(id)
	}
	return ranks
}

// Levels groups node ids by rank. Each level is sorted.
func (g *Graph) Levels() [][]string {
	ranks := g.Ranks()
	maxRank := -1
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}

	levels := make([][]string, maxRank+1)
	for id, r := range ranks {
		levels[r] = append(levels[r], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels
}

// Components returns the weakly connected components. Components are ordered
// by their first node in insertion order and list their members in insertion
// order.
func (g *Graph) Components() [][]string {
	component := make(map[string]int, len(g.nodes))
	count := 0

	for _, start := range g.order {
		if _, seen := component[start]; seen {
			continue
		}
		stack := []string{start}
		component[start] = count
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range g.children[id] {
				if _, seen := component[next]; !seen {
					component[next] = count
					stack = append(stack, next)
				}
			}
			for _, next := range g.parents[id] {
				if _, seen := component[next]; !seen {
					component[next] = count
					stack = append(stack, next)
				}
			}
		}
		count++
	}

	out := make([][]string, count)
	for _, id := range g.order {
		c := component[id]
		out[c] = append(out[c], id)
	}
	return out
}

// Downstream returns every node reachable from id, excluding id itself
// unless it sits on a cycle.
func (g *Graph) Downstream(id string) []string {
	return g.reach(id, g.children)
}

// Upstream returns every node that reaches id, excluding id itself unless it
// sits on a cycle.
func (g *Graph) Upstream(id string) []string {
	return g.reach(id, g.parents)
}

func (g *Graph) reach(id string, next map[string][]string) []string {
	seen := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, n := range next[nodeID] {
			if !seen[n] {
				seen[n] = true
				mark(n)
			}
		}
	}
	mark(id)

	result := make([]string, 0, len(seen))
	for nodeID := range seen {
		result = append(result, nodeID)
	}
	sort.Strings(result)
	return result
}

// Subgraph returns a new graph containing only the specified nodes and their edges.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[string]bool, len(nodeIDs))

	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			nodeSet[id] = true
			subgraph.AddNode(id, node.Data)
		}
	}

	for _, id := range subgraph.order {
		for _, childID := range g.children[id] {
			if nodeSet[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}
	return subgraph
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
