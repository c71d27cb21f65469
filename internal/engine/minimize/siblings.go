// Package minimize shrinks observed divergences into short reproductions: a list of
// intermediate properties whose evaluation on a fresh parse changes the subject's value.
package minimize

import (
	"slices"

	"go.trai.ch/sidefx/internal/core/domain"
)

// walker is one bounded bidirectional walk. Each visited map holds the largest remaining
// budget a node was reached with in that direction.
type walker struct {
	g        *domain.DependencyGraph
	result   map[int]struct{}
	upSeen   map[int]int
	downSeen map[int]int
}

// Walk returns the nodes reached from origin by walking up to distance incoming edges and
// then up to distance outgoing edges. Roots met on the way up and leaves met on the way down
// are results; so is a node from which no walk can continue. The result may contain origin.
func Walk(g *domain.DependencyGraph, origin, distance int) []int {
	if distance <= 0 || origin < 0 || origin >= g.Len() {
		return nil
	}
	w := &walker{
		g:        g,
		result:   make(map[int]struct{}),
		upSeen:   map[int]int{origin: distance},
		downSeen: map[int]int{origin: distance},
	}
	w.visit(origin, distance, distance)

	out := make([]int, 0, len(w.result))
	for n := range w.result {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Siblings is Walk without origin: the candidate intermediates for a subject.
func Siblings(g *domain.DependencyGraph, origin, distance int) []int {
	return slices.DeleteFunc(Walk(g, origin, distance), func(n int) bool { return n == origin })
}

func (w *walker) visit(node, up, down int) {
	switch {
	case up > 0:
		in := w.g.Incoming(node)
		if len(in) == 0 {
			w.result[node] = struct{}{}
			return
		}
		if !w.expand(in, w.upSeen, up-1, func(next int) { w.visit(next, up-1, down) }) {
			w.result[node] = struct{}{}
		}
	case down > 0:
		out := w.g.Outgoing(node)
		if len(out) == 0 {
			w.result[node] = struct{}{}
			return
		}
		if !w.expand(out, w.downSeen, down-1, func(next int) { w.visit(next, up, down-1) }) {
			w.result[node] = struct{}{}
		}
	default:
		w.result[node] = struct{}{}
	}
}

// expand follows every edge whose target was not reached before with at least budget left.
// It reports whether any edge was followed.
func (w *walker) expand(targets []int, seen map[int]int, budget int, follow func(int)) bool {
	expanded := false
	for _, next := range targets {
		if prev, ok := seen[next]; ok && prev >= budget {
			continue
		}
		seen[next] = budget
		expanded = true
		follow(next)
	}
	return expanded
}
