// Package sandbox implements an in-process memoized attribute system that can be evaluated and
// traced like an external tool.
package sandbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
)

// Evaluator opens sessions on freshly parsed programs.
type Evaluator struct {
	grammar *Grammar
	source  string
	shared  bool

	mu      sync.Mutex
	globals *Globals
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithGrammar replaces the demo grammar.
func WithGrammar(g *Grammar) Option {
	return func(e *Evaluator) {
		e.grammar = g
	}
}

// WithSource sets the program parsed when the tool configuration names no source file.
func WithSource(src string) Option {
	return func(e *Evaluator) {
		e.source = src
	}
}

// WithSharedState makes every session see the same Globals, so state leaks between parses.
func WithSharedState() Option {
	return func(e *Evaluator) {
		e.shared = true
	}
}

// NewEvaluator creates an Evaluator for the demo grammar and program.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		grammar: DemoGrammar(),
		source:  DemoSource,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open parses the program. The first positional argument of tool, if any, is a source file.
func (e *Evaluator) Open(ctx context.Context, tool domain.ToolConfig) (ports.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := e.source
	for _, arg := range tool.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to read sandbox source"), "path", arg)
		}
		src = string(data)
		break
	}
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Session{prog: NewProgram(root, e.grammar, e.sessionGlobals())}, nil
}

func (e *Evaluator) sessionGlobals() *Globals {
	if !e.shared {
		return NewGlobals()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.globals == nil {
		e.globals = NewGlobals()
	}
	return e.globals
}

// Session is one parsed program.
type Session struct {
	prog   *Program
	closed bool
}

// Program returns the object graph of the session.
func (s *Session) Program() *Program {
	return s.prog
}

func (s *Session) check(ctx context.Context) error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	return ctx.Err()
}

// Evaluate resolves lp and evaluates it through the memoized path.
func (s *Session) Evaluate(ctx context.Context, lp domain.LocatedProperty) (domain.Evaluation, error) {
	if err := s.check(ctx); err != nil {
		return domain.Evaluation{}, err
	}
	n, err := s.prog.Resolve(lp.Locator())
	if err != nil {
		return domain.Evaluation{}, err
	}
	args, err := s.prog.decodeArgs(lp.Property().Args)
	if err != nil {
		return domain.Evaluation{Value: domain.NewException(err.Error())}, nil
	}
	v, err := s.prog.Get(n, lp.Name(), args...)
	if err != nil {
		return domain.Evaluation{Value: domain.NewException(err.Error())}, nil
	}
	val, unattached, err := s.prog.Encode(v)
	if err != nil {
		return domain.Evaluation{}, zerr.With(err, "property", lp.SimpleName())
	}
	return domain.Evaluation{Value: val, Unattached: unattached}, nil
}

// Recompute invokes lp's equation directly.
func (s *Session) Recompute(ctx context.Context, lp domain.LocatedProperty) (domain.Recomputation, error) {
	if err := s.check(ctx); err != nil {
		return domain.Recomputation{}, err
	}
	n, err := s.prog.Resolve(lp.Locator())
	if err != nil {
		return domain.Recomputation{}, err
	}
	args, err := s.prog.decodeArgs(lp.Property().Args)
	if err != nil {
		return domain.Recomputation{}, zerr.Wrap(domain.ErrNoComputeRoutine, err.Error())
	}
	v, afterReset, err := s.prog.Recompute(n, lp.Name(), args...)
	switch {
	case errors.Is(err, domain.ErrNoComputeRoutine):
		return domain.Recomputation{}, err
	case err != nil:
		return domain.Recomputation{Value: domain.NewException(err.Error()), AfterReset: afterReset}, nil
	}
	val, _, err := s.prog.Encode(v)
	if err != nil {
		return domain.Recomputation{}, zerr.With(err, "property", lp.SimpleName())
	}
	return domain.Recomputation{Value: val, AfterReset: afterReset}, nil
}

// Find returns the properties ep selects, in tree order.
func (s *Session) Find(ctx context.Context, ep domain.EntryPoint) ([]domain.LocatedProperty, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	match, err := parsePredicate(ep.Predicate)
	if err != nil {
		return nil, err
	}
	root := s.prog.root
	var (
		out   []domain.LocatedProperty
		nodes int
	)
	root.Walk(func(n *Node) bool {
		if ep.LimitNodes > 0 && nodes >= ep.LimitNodes {
			return false
		}
		if !match(n) {
			return true
		}
		var names []string
		if ep.Property == "*" {
			names = s.prog.grammar.ZeroArg(n.Type)
		} else if attr, ok := s.prog.grammar.Lookup(n.Type, ep.Property); ok && attr.Params == 0 {
			names = []string{ep.Property}
		}
		if len(names) == 0 {
			return true
		}
		nodes++
		loc, _ := n.locator(root)
		for _, name := range names {
			out = append(out, domain.NewLocatedProperty(loc, domain.NewProperty(name)))
		}
		return true
	})
	return out, nil
}

// InvalidateLocators clears the locator resolution cache.
func (s *Session) InvalidateLocators(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.prog.InvalidateLocators()
	return nil
}

// Trace delivers the events raised while fn runs to sink.
func (s *Session) Trace(ctx context.Context, sink ports.TraceSink, captureValues bool, fn func(context.Context) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.prog.tracer = &tracer{sink: sink, capture: captureValues}
	defer func() { s.prog.tracer = nil }()
	return fn(ctx)
}

// Close marks the session as closed.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// parsePredicate supports conjunctions joined by "&" of "this<:Type", "label=text" and "*".
// An empty predicate matches every node.
func parsePredicate(pred string) (func(*Node) bool, error) {
	var clauses []func(*Node) bool
	for _, part := range strings.Split(pred, "&") {
		part = strings.TrimSpace(part)
		switch {
		case part == "" || part == "*" || part == "true":
			continue
		case strings.HasPrefix(part, "this<:"):
			want := strings.TrimPrefix(part, "this<:")
			clauses = append(clauses, func(n *Node) bool {
				return n.Type == want || n.SimpleType() == want
			})
		case strings.HasPrefix(part, "label="):
			want := strings.TrimPrefix(part, "label=")
			clauses = append(clauses, func(n *Node) bool {
				return n.Label == want
			})
		default:
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "unsupported predicate"), "predicate", pred)
		}
	}
	return func(n *Node) bool {
		for _, c := range clauses {
			if !c(n) {
				return false
			}
		}
		return true
	}, nil
}
