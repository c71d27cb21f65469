// Package domain contains the core domain models for property identities, evaluation results,
// the dependency graph built from traces, and the findings reported about them.
package domain

import (
	"iter"
	"maps"
	"slices"
)

// EdgeResult tells what AddEdge did with a candidate edge.
type EdgeResult int

const (
	// EdgeAdded means the edge is new.
	EdgeAdded EdgeResult = iota
	// EdgeDuplicate means the edge already existed.
	EdgeDuplicate
	// EdgeSelf means the edge was a self-loop and was rejected.
	EdgeSelf
)

type graphNode struct {
	identity LocatedProperty
	incoming map[int]struct{}
	outgoing map[int]struct{}
}

// DependencyGraph is an arena of property nodes with index-based edge sets.
// An edge a -> b means that computing a read b. Self-loops are never stored.
type DependencyGraph struct {
	nodes []*graphNode
	index map[PropKey]int
}

// NewDependencyGraph creates an empty DependencyGraph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index: make(map[PropKey]int),
	}
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

// Identity returns the property stored at index i.
func (g *DependencyGraph) Identity(i int) LocatedProperty {
	return g.nodes[i].identity
}

// Lookup returns the index of lp, if present.
func (g *DependencyGraph) Lookup(lp LocatedProperty) (int, bool) {
	i, ok := g.index[lp.Key()]
	return i, ok
}

// GetOrAdd returns the index of lp, adding a node when it is not yet in the graph.
func (g *DependencyGraph) GetOrAdd(lp LocatedProperty) int {
	if i, ok := g.index[lp.Key()]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, &graphNode{
		identity: lp,
		incoming: make(map[int]struct{}),
		outgoing: make(map[int]struct{}),
	})
	g.index[lp.Key()] = i
	return i
}

// AddEdge adds the edge from -> to. Self-loops are rejected.
func (g *DependencyGraph) AddEdge(from, to int) EdgeResult {
	if from == to {
		return EdgeSelf
	}
	src := g.nodes[from]
	if _, ok := src.outgoing[to]; ok {
		return EdgeDuplicate
	}
	src.outgoing[to] = struct{}{}
	g.nodes[to].incoming[from] = struct{}{}
	return EdgeAdded
}

// RemoveEdge removes the edge from -> to if present.
func (g *DependencyGraph) RemoveEdge(from, to int) {
	delete(g.nodes[from].outgoing, to)
	delete(g.nodes[to].incoming, from)
}

// HasEdge reports whether the edge from -> to exists.
func (g *DependencyGraph) HasEdge(from, to int) bool {
	_, ok := g.nodes[from].outgoing[to]
	return ok
}

// Outgoing returns the targets of i's outgoing edges in ascending index order.
func (g *DependencyGraph) Outgoing(i int) []int {
	return slices.Sorted(maps.Keys(g.nodes[i].outgoing))
}

// Incoming returns the sources of i's incoming edges in ascending index order.
func (g *DependencyGraph) Incoming(i int) []int {
	return slices.Sorted(maps.Keys(g.nodes[i].incoming))
}

// OutDegree returns the number of outgoing edges of i.
func (g *DependencyGraph) OutDegree(i int) int {
	return len(g.nodes[i].outgoing)
}

// InDegree returns the number of incoming edges of i.
func (g *DependencyGraph) InDegree(i int) int {
	return len(g.nodes[i].incoming)
}

// EdgeCount returns the total number of edges.
func (g *DependencyGraph) EdgeCount() int {
	n := 0
	for _, node := range g.nodes {
		n += len(node.outgoing)
	}
	return n
}

// All yields every node index with its identity in index order.
func (g *DependencyGraph) All() iter.Seq2[int, LocatedProperty] {
	return func(yield func(int, LocatedProperty) bool) {
		for i, n := range g.nodes {
			if !yield(i, n.identity) {
				return
			}
		}
	}
}

// Copy returns a deep copy of the graph structure. Identities are shared.
func (g *DependencyGraph) Copy() *DependencyGraph {
	cp := &DependencyGraph{
		nodes: make([]*graphNode, len(g.nodes)),
		index: maps.Clone(g.index),
	}
	for i, n := range g.nodes {
		cp.nodes[i] = &graphNode{
			identity: n.identity,
			incoming: maps.Clone(n.incoming),
			outgoing: maps.Clone(n.outgoing),
		}
	}
	return cp
}

// Roots returns nodes without incoming edges whose property name is one of names.
// A "*" entry in names accepts every property.
func (g *DependencyGraph) Roots(names []string) []int {
	allowAny := slices.Contains(names, "*")
	var roots []int
	for i, n := range g.nodes {
		if len(n.incoming) != 0 {
			continue
		}
		if allowAny || slices.Contains(names, n.identity.Name()) {
			roots = append(roots, i)
		}
	}
	return roots
}

// GraphStats summarizes node degrees.
type GraphStats struct {
	Nodes     int
	Edges     int
	Leaves    int
	MinOut    int
	MedianOut int
	AvgOut    int
	MaxOut    int
	MinIn     int
	MedianIn  int
	AvgIn     int
	MaxIn     int
}

// Stats computes degree statistics. The zero value is returned for an empty graph.
func (g *DependencyGraph) Stats() GraphStats {
	st := GraphStats{Nodes: len(g.nodes)}
	if len(g.nodes) == 0 {
		return st
	}
	outs := make([]int, len(g.nodes))
	ins := make([]int, len(g.nodes))
	for i, n := range g.nodes {
		outs[i] = len(n.outgoing)
		ins[i] = len(n.incoming)
		st.Edges += outs[i]
		if outs[i] == 0 {
			st.Leaves++
		}
	}
	st.MinOut, st.MedianOut, st.AvgOut, st.MaxOut = degreeSummary(outs)
	st.MinIn, st.MedianIn, st.AvgIn, st.MaxIn = degreeSummary(ins)
	return st
}

func degreeSummary(degrees []int) (minV, median, avg, maxV int) {
	slices.Sort(degrees)
	sum := 0
	for _, d := range degrees {
		sum += d
	}
	return degrees[0], degrees[len(degrees)/2], sum / len(degrees), degrees[len(degrees)-1]
}
