// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed graph operations for topological ordering
// and cycle reporting. The catalog uses it to order package dependency sets
// dependencies-first and to name the packages that take part in a cycle.
package dag

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError[K cmp.Ordered] struct {
		// Cycle is one closed path through the graph, first node repeated at the end.
		Cycle []K
	}

	// Graph is a directed graph keyed by K. An edge from A to B means
	// "A must come before B".
	Graph[K cmp.Ordered] struct {
		adjacency map[K][]K
		// nodes tracks insertion order for deterministic output.
		nodes   []K
		nodeSet map[K]bool
	}
)

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, k := range e.Cycle {
		parts[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, " -> "))
}

// New creates an empty Graph.
func New[K cmp.Ordered]() *Graph[K] {
	return &Graph[K]{
		adjacency: make(map[K][]K),
		nodeSet:   make(map[K]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph[K]) AddNode(k K) {
	if g.nodeSet[k] {
		return
	}
	g.nodeSet[k] = true
	g.nodes = append(g.nodes, k)
}

// AddEdge adds a directed edge from -> to. Both nodes are implicitly added.
// Duplicate edges are ignored.
func (g *Graph[K]) AddEdge(from, to K) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int { return len(g.nodes) }

// Has reports whether k is a node of the graph.
func (g *Graph[K]) Has(k K) bool { return g.nodeSet[k] }

// TopologicalSort returns a valid order using Kahn's algorithm.
// Nodes at the same level appear in insertion order.
// Returns *CycleError if the graph contains a cycle.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[K]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	queue := make([]K, 0, len(g.nodes))
	for _, n := range g.nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	result := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, n := range g.adjacency[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, &CycleError[K]{Cycle: g.FindCycle()}
	}
	return result, nil
}

// FindCycle returns one cycle as a closed path (first node repeated last),
// or nil when the graph is acyclic.
func (g *Graph[K]) FindCycle() []K {
	const (
		white = iota
		grey
		black
	)
	color := make(map[K]int, len(g.nodes))
	var stack []K
	var found []K

	var visit func(k K) bool
	visit = func(k K) bool {
		color[k] = grey
		stack = append(stack, k)
		for _, n := range g.adjacency[k] {
			switch color[n] {
			case grey:
				start := slices.Index(stack, n)
				found = append(slices.Clone(stack[start:]), n)
				return true
			case white:
				if visit(n) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[k] = black
		return false
	}

	for _, k := range g.nodes {
		if color[k] == white && visit(k) {
			return found
		}
	}
	return nil
}

// CyclicComponents returns every strongly connected component that contains
// a cycle (size > 1, or a self-loop), using Tarjan's algorithm. Members of
// each component are sorted; components are ordered by their first member.
func (g *Graph[K]) CyclicComponents() [][]K {
	var (
		index   int
		stack   []K
		onStack = make(map[K]bool)
		indices = make(map[K]int)
		lowlink = make(map[K]int)
		out     [][]K
	)

	var strongConnect func(v K)
	strongConnect = func(v K) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adjacency[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var comp []K
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(g.adjacency[v], v) {
			slices.Sort(comp)
			out = append(out, comp)
		}
	}

	for _, v := range g.nodes {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}

	slices.SortFunc(out, func(a, b []K) int { return cmp.Compare(a[0], b[0]) })
	return out
}
