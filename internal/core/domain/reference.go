package domain

import (
	"math/rand/v2"
	"sync"
)

// ReferenceValues is the baseline produced by one traced reference pass.
// Everything except the order cache is read-only after construction.
type ReferenceValues struct {
	values map[PropKey]EvaluatedValue
	order  []LocatedProperty
	graph  *DependencyGraph
	// EntryNames are the configured entry point property names.
	EntryNames []string
	// AnyEntryPropThrew is set when an entry point evaluation threw during the pass.
	AnyEntryPropThrew bool

	mu         sync.Mutex
	orderCache map[uint64][]LocatedProperty
}

// NewReferenceValues creates a baseline. order must list every key of values exactly once.
func NewReferenceValues(
	values map[PropKey]EvaluatedValue,
	order []LocatedProperty,
	graph *DependencyGraph,
	entryNames []string,
	anyEntryPropThrew bool,
) *ReferenceValues {
	if graph == nil {
		graph = NewDependencyGraph()
	}
	return &ReferenceValues{
		values:            values,
		order:             order,
		graph:             graph,
		EntryNames:        entryNames,
		AnyEntryPropThrew: anyEntryPropThrew,
		orderCache:        make(map[uint64][]LocatedProperty),
	}
}

// Len returns the number of recorded values.
func (r *ReferenceValues) Len() int {
	return len(r.order)
}

// Value returns the baseline value for lp.
func (r *ReferenceValues) Value(lp LocatedProperty) (EvaluatedValue, bool) {
	v, ok := r.values[lp.Key()]
	return v, ok
}

// UnshuffledOrder returns the evaluation order as recorded. Callers must not modify it.
func (r *ReferenceValues) UnshuffledOrder() []LocatedProperty {
	return r.order
}

// Graph returns the dependency graph of the pass.
func (r *ReferenceValues) Graph() *DependencyGraph {
	return r.graph
}

// GraphRoots returns root nodes named by an entry point.
func (r *ReferenceValues) GraphRoots() []int {
	return r.graph.Roots(r.EntryNames)
}

// EvalOrder returns the evaluation order shuffled with seed. The permutation is cached so that
// the same seed always yields the same list.
func (r *ReferenceValues) EvalOrder(seed uint64) []LocatedProperty {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.orderCache[seed]; ok {
		return cached
	}
	cp := make([]LocatedProperty, len(r.order))
	copy(cp, r.order)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(cp), func(i, j int) {
		cp[i], cp[j] = cp[j], cp[i]
	})
	r.orderCache[seed] = cp
	return cp
}

// StoreOrder records an externally produced order under seed, so that divergences found
// while replaying it can later be resolved by index.
func (r *ReferenceValues) StoreOrder(seed uint64, order []LocatedProperty) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderCache[seed] = order
}

// ReferenceValueDiff is a divergence observed at Index of the order stored under Seed.
type ReferenceValueDiff struct {
	Seed  uint64
	Index int
	Value EvaluatedValue
}
