// Package depgraph builds property dependency graphs from evaluation traces.
package depgraph

import (
	"strconv"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

var _ ports.TraceSink = (*Builder)(nil)

// state is the circular bracket machine: normal, or inside a fixed-point bracket at depth.
type state struct {
	depth int
}

func (s state) inCircular() bool { return s.depth > 0 }

type frame struct {
	prop domain.LocatedProperty
	// node is -1 for frames whose property has complex arguments.
	node int
	// anchor is the node reads inside this frame attach to, or -1.
	anchor int
}

// Builder turns a stream of trace events into a dependency graph and the values observed
// while computing it. Compute frames nest; a CACHE_READ inside a frame becomes an edge from
// the frame's node to the read property. Reads outside any frame are ignored.
//
// When circular dependencies are ignored, everything inside a fixed-point bracket is
// swallowed and the outermost bracket is replaced by a single compute of the returning
// property. Otherwise the bracket events are skipped and the nested events are kept.
type Builder struct {
	logger         ports.Logger
	ignoreCircular bool
	capture        bool

	graph  *domain.DependencyGraph
	values map[domain.PropKey]domain.EvaluatedValue
	order  []domain.LocatedProperty
	stack  []frame
	state  state

	droppedSelf    int
	droppedComplex int
}

// NewBuilder creates a Builder. capture tells whether events carry values; without it every
// recorded value is domain.DummyValue.
func NewBuilder(logger ports.Logger, ignoreCircular, capture bool) *Builder {
	return &Builder{
		logger:         logger,
		ignoreCircular: ignoreCircular,
		capture:        capture,
		graph:          domain.NewDependencyGraph(),
		values:         make(map[domain.PropKey]domain.EvaluatedValue),
	}
}

// Accept implements ports.TraceSink.
func (b *Builder) Accept(ev domain.TraceEvent) {
	switch ev.Kind {
	case domain.TraceCircularStart:
		if b.ignoreCircular {
			b.state.depth++
		}
	case domain.TraceCircularReturn:
		if !b.ignoreCircular {
			return
		}
		if !b.state.inCircular() {
			b.logger.Debug("unbalanced circular return for " + ev.Prop.String())
			return
		}
		b.state.depth--
		if !b.state.inCircular() {
			b.begin(ev.Prop)
			b.end(ev.Prop, ev.Value)
		}
	case domain.TraceComputeBegin:
		if !b.state.inCircular() {
			b.begin(ev.Prop)
		}
	case domain.TraceComputeEnd:
		if !b.state.inCircular() {
			b.end(ev.Prop, ev.Value)
		}
	case domain.TraceCacheRead:
		if !b.state.inCircular() {
			b.read(ev.Prop, ev.Value)
		}
	default:
		b.logger.Debug("ignoring trace event " + string(ev.Kind))
	}
}

func (b *Builder) top() (frame, bool) {
	if len(b.stack) == 0 {
		return frame{}, false
	}
	return b.stack[len(b.stack)-1], true
}

func (b *Builder) begin(lp domain.LocatedProperty) {
	parent, hasParent := b.top()
	anchor := -1
	if hasParent {
		anchor = parent.anchor
	}
	if lp.Property().HasComplexArgs() {
		b.stack = append(b.stack, frame{prop: lp, node: -1, anchor: anchor})
		return
	}
	node := b.graph.GetOrAdd(lp)
	if anchor >= 0 {
		b.addEdge(anchor, node)
	}
	b.stack = append(b.stack, frame{prop: lp, node: node, anchor: node})
}

func (b *Builder) end(lp domain.LocatedProperty, v *domain.EvaluatedValue) {
	match := -1
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i].prop.Equal(lp) {
			match = i
			break
		}
	}
	if match < 0 {
		b.logger.Debug("compute end without begin for " + lp.String())
		return
	}
	for _, abandoned := range b.stack[match+1:] {
		b.logger.Debug("abandoned compute frame " + abandoned.prop.String())
	}
	b.stack = b.stack[:match]
	if lp.Property().HasComplexArgs() {
		return
	}
	b.record(lp, v, true)
}

func (b *Builder) read(lp domain.LocatedProperty, v *domain.EvaluatedValue) {
	top, ok := b.top()
	if !ok {
		return
	}
	if top.anchor < 0 || lp.Property().HasComplexArgs() {
		b.droppedComplex++
		b.logger.Debug("dropping read of " + lp.String() + " without an encodable anchor")
		return
	}
	node := b.graph.GetOrAdd(lp)
	b.addEdge(top.anchor, node)
	b.record(lp, v, false)
}

func (b *Builder) addEdge(from, to int) {
	if b.graph.AddEdge(from, to) == domain.EdgeSelf {
		b.droppedSelf++
		b.logger.Debug("dropping self edge on " + b.graph.Identity(from).String())
	}
}

// record stores v for lp. Computed values replace earlier read values; reads only fill gaps.
func (b *Builder) record(lp domain.LocatedProperty, v *domain.EvaluatedValue, computed bool) {
	value := domain.DummyValue()
	if b.capture && v != nil {
		value = *v
	}
	if _, seen := b.values[lp.Key()]; !seen {
		b.order = append(b.order, lp)
	} else if !computed {
		return
	}
	b.values[lp.Key()] = value
}

// Record stores an entry point result obtained outside the trace. A captured value already
// recorded for lp is kept.
func (b *Builder) Record(lp domain.LocatedProperty, v domain.EvaluatedValue) {
	if old, seen := b.values[lp.Key()]; seen {
		if old.IsDummy() {
			b.values[lp.Key()] = v
		}
		return
	}
	b.graph.GetOrAdd(lp)
	b.values[lp.Key()] = v
	b.order = append(b.order, lp)
}

// ResetStack drops open frames and brackets, e.g. after an evaluation threw.
func (b *Builder) ResetStack() {
	if len(b.stack) > 0 || b.state.inCircular() {
		b.logger.Debug("resetting " + strconv.Itoa(len(b.stack)) + " open compute frames")
	}
	b.stack = b.stack[:0]
	b.state = state{}
}

// Result is the output of one traced pass.
type Result struct {
	Graph  *domain.DependencyGraph
	Values map[domain.PropKey]domain.EvaluatedValue
	// Order lists every key of Values once, in the order values were first recorded.
	Order []domain.LocatedProperty
}

// Finish returns the graph and values. Unterminated frames and brackets are logged and dropped.
func (b *Builder) Finish() Result {
	if b.state.inCircular() {
		b.logger.Warn("trace ended inside " + strconv.Itoa(b.state.depth) + " circular brackets")
	}
	b.ResetStack()
	if b.droppedSelf > 0 || b.droppedComplex > 0 {
		b.logger.Debug("dropped " + strconv.Itoa(b.droppedSelf) + " self edges and " +
			strconv.Itoa(b.droppedComplex) + " unanchored reads")
	}
	return Result{Graph: b.graph, Values: b.values, Order: b.order}
}
