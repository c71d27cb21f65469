package depgraph

import (
	"math/rand/v2"
	"strings"

	"go.trai.ch/sidefx/internal/core/domain"
)

// InverseDependencyOrder returns a random reverse topological order of g: every node comes
// after all nodes it reads. Leaves are peeled from a ready queue and ties are broken with rng.
// Nodes on cycles never become ready; they are returned in residual, in index order, and left
// out of order. A graph without leaves yields an empty order and every node in residual.
func InverseDependencyOrder(g *domain.DependencyGraph, rng *rand.Rand) (order, residual []int) {
	n := g.Len()
	if n == 0 {
		return nil, nil
	}

	outDegree := make([]int, n)
	var ready []int
	for i := range n {
		outDegree[i] = g.OutDegree(i)
		if outDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	order = make([]int, 0, n)
	for len(ready) > 0 {
		pick := rng.IntN(len(ready))
		node := ready[pick]
		ready[pick] = ready[len(ready)-1]
		ready = ready[:len(ready)-1]

		order = append(order, node)
		for _, reader := range g.Incoming(node) {
			outDegree[reader]--
			if outDegree[reader] == 0 {
				ready = append(ready, reader)
			}
		}
	}

	if len(order) < n {
		for i := range n {
			if outDegree[i] > 0 {
				residual = append(residual, i)
			}
		}
	}
	return order, residual
}

// Describe renders the identities of nodes for diagnostics.
func Describe(g *domain.DependencyGraph, nodes []int) string {
	names := make([]string, len(nodes))
	for i, node := range nodes {
		names[i] = g.Identity(node).String()
	}
	return strings.Join(names, ", ")
}

// Properties maps node indices to their identities.
func Properties(g *domain.DependencyGraph, nodes []int) []domain.LocatedProperty {
	out := make([]domain.LocatedProperty, len(nodes))
	for i, node := range nodes {
		out[i] = g.Identity(node)
	}
	return out
}
