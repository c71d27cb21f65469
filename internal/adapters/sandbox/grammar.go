package sandbox

import (
	"slices"
	"sync"
)

// Equation computes the value of an attribute on n.
type Equation func(p *Program, n *Node, args []any) (any, error)

// Attribute declares a computed property of one or more node types.
type Attribute struct {
	Name string
	// Types lists the qualified node types the attribute is declared on. Empty means all.
	Types []string
	// Params is the number of arguments the attribute takes.
	Params   int
	Equation Equation
	// Resettable attributes have a reset routine that clears their cache entry.
	Resettable bool
	// Circular attributes are evaluated to a fixed point starting from Bottom.
	Circular bool
	Bottom   any
	// NTA attributes return a node that is attached below the owning node.
	NTA bool
	// Uncached attributes are recomputed on every access.
	Uncached bool
}

func (a *Attribute) declaredOn(typ string) bool {
	return len(a.Types) == 0 || slices.Contains(a.Types, typ)
}

// Grammar is a set of attribute declarations.
type Grammar struct {
	byName map[string][]*Attribute
}

// NewGrammar creates a grammar from attrs. Later declarations of the same name on the same
// type shadow earlier ones.
func NewGrammar(attrs ...*Attribute) *Grammar {
	g := &Grammar{byName: make(map[string][]*Attribute)}
	for _, a := range attrs {
		g.byName[a.Name] = append([]*Attribute{a}, g.byName[a.Name]...)
	}
	return g
}

// Lookup returns the attribute name declared on typ.
func (g *Grammar) Lookup(typ, name string) (*Attribute, bool) {
	for _, a := range g.byName[name] {
		if a.declaredOn(typ) {
			return a, true
		}
	}
	return nil, false
}

// ZeroArg returns the names of all argument-free attributes declared on typ, sorted.
func (g *Grammar) ZeroArg(typ string) []string {
	var names []string
	for name, attrs := range g.byName {
		for _, a := range attrs {
			if a.declaredOn(typ) {
				if a.Params == 0 {
					names = append(names, name)
				}
				break
			}
		}
	}
	slices.Sort(names)
	return names
}

// Globals is state shared by every evaluation of a program. When an Evaluator is created with
// WithSharedState, one Globals instance outlives individual parses.
type Globals struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewGlobals creates empty shared state.
func NewGlobals() *Globals {
	return &Globals{counters: make(map[string]int)}
}

// Next returns the current value of counter name and increments it.
func (g *Globals) Next(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.counters[name]
	g.counters[name] = v + 1
	return v
}
