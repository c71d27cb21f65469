package sandbox

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
)

// maxFixpointIterations bounds circular evaluation.
const maxFixpointIterations = 64

type cacheEntry struct {
	value any
	done  bool
}

type tracer struct {
	sink    ports.TraceSink
	capture bool
}

// Program is a parsed object graph together with the grammar evaluated on it.
type Program struct {
	root    *Node
	grammar *Grammar
	globals *Globals
	tracer  *tracer
	locs    map[string]*Node
	// circles counts the fixed-point evaluations in progress.
	circles int
}

// NewProgram binds root to grammar. A nil globals gets private state.
func NewProgram(root *Node, grammar *Grammar, globals *Globals) *Program {
	if globals == nil {
		globals = NewGlobals()
	}
	return &Program{
		root:    root,
		grammar: grammar,
		globals: globals,
		locs:    make(map[string]*Node),
	}
}

// Root returns the root node.
func (p *Program) Root() *Node {
	return p.root
}

// Globals returns the state shared by equations.
func (p *Program) Globals() *Globals {
	return p.globals
}

func evalError(msg string, n *Node, name string) error {
	return zerr.With(zerr.New(msg), "attribute", n.SimpleType()+"."+name)
}

// Get evaluates attribute name on n through its memoized path.
func (p *Program) Get(n *Node, name string, args ...any) (any, error) {
	attr, ok := p.grammar.Lookup(n.Type, name)
	if !ok {
		return nil, evalError("no such attribute", n, name)
	}
	if len(args) != attr.Params {
		return nil, evalError("wrong number of arguments", n, name)
	}
	if n.cache == nil {
		n.cache = make(map[string]*cacheEntry)
	}
	key := cacheKey(name, args)
	if e, ok := n.cache[key]; ok {
		switch {
		case e.done:
			p.emit(domain.TraceCacheRead, n, name, args, e.value, true)
			return e.value, nil
		case attr.Circular:
			return e.value, nil
		default:
			return nil, evalError("circular definition", n, name)
		}
	}
	if attr.Circular {
		return p.fixpoint(attr, n, key, args)
	}

	p.emit(domain.TraceComputeBegin, n, name, args, nil, false)
	entry := &cacheEntry{}
	n.cache[key] = entry
	v, err := attr.Equation(p, n, args)
	if err == nil && attr.NTA {
		v, err = p.adopt(n, name, v)
	}
	if err != nil {
		delete(n.cache, key)
		return nil, err
	}
	if attr.Uncached {
		delete(n.cache, key)
	} else {
		entry.value, entry.done = v, true
	}
	p.emit(domain.TraceComputeEnd, n, name, args, v, true)
	return v, nil
}

func (p *Program) fixpoint(attr *Attribute, n *Node, key string, args []any) (any, error) {
	p.emit(domain.TraceCircularStart, n, attr.Name, args, nil, false)
	entry := &cacheEntry{value: attr.Bottom}
	n.cache[key] = entry
	p.circles++
	defer func() { p.circles-- }()

	for i := 0; ; i++ {
		if i == maxFixpointIterations {
			delete(n.cache, key)
			return nil, evalError("no fixed point", n, attr.Name)
		}
		v, err := attr.Equation(p, n, args)
		if err != nil {
			delete(n.cache, key)
			return nil, err
		}
		if p.sameValue(v, entry.value) {
			break
		}
		entry.value = v
	}
	// Only the outermost evaluation has seen final approximations of every participant.
	if p.circles == 1 {
		entry.done = true
	} else {
		delete(n.cache, key)
	}
	p.emit(domain.TraceCircularReturn, n, attr.Name, args, entry.value, true)
	return entry.value, nil
}

func (p *Program) adopt(owner *Node, name string, v any) (any, error) {
	child, ok := v.(*Node)
	if !ok || child == nil {
		return nil, evalError("nonterminal attribute did not return a node", owner, name)
	}
	child.parent = owner
	child.ntaName = name
	return child, nil
}

// Recompute invokes the equation of name on n directly, bypassing its cache. Resettable
// attributes have their cache entry cleared first.
func (p *Program) Recompute(n *Node, name string, args ...any) (v any, afterReset bool, err error) {
	attr, ok := p.grammar.Lookup(n.Type, name)
	if !ok || attr.Equation == nil || attr.NTA || attr.Circular {
		return nil, false, zerr.With(zerr.Wrap(domain.ErrNoComputeRoutine, "cannot recompute"), "attribute", n.SimpleType()+"."+name)
	}
	if attr.Resettable && n.cache != nil {
		delete(n.cache, cacheKey(name, args))
		afterReset = true
	}
	v, err = attr.Equation(p, n, args)
	return v, afterReset, err
}

func (p *Program) sameValue(a, b any) bool {
	va, _, errA := p.Encode(a)
	vb, _, errB := p.Encode(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return va.Equal(vb)
}

func (p *Program) emit(kind domain.TraceEventKind, n *Node, name string, args []any, v any, hasValue bool) {
	if p.tracer == nil {
		return
	}
	loc, ok := n.locator(p.root)
	if !ok {
		return
	}
	ev := domain.TraceEvent{
		Kind: kind,
		Prop: domain.NewLocatedProperty(loc, domain.NewProperty(name, p.encodeArgs(args)...)),
	}
	if hasValue && p.tracer.capture {
		if val, _, err := p.Encode(v); err == nil {
			ev.Value = &val
		} else {
			exc := domain.NewException(err.Error())
			ev.Value = &exc
		}
	}
	p.tracer.sink.Accept(ev)
}

// Encode turns an attribute value into a comparable result. unattached is set when the value
// references a node outside the tree.
func (p *Program) Encode(v any) (val domain.EvaluatedValue, unattached bool, err error) {
	lines, unattached, err := p.encodeLines(v)
	if err != nil {
		return domain.EvaluatedValue{}, false, err
	}
	return domain.NewValue(lines), unattached, nil
}

func (p *Program) encodeLines(v any) ([]domain.Line, bool, error) {
	switch x := v.(type) {
	case nil:
		return []domain.Line{domain.PlainLine("null")}, false, nil
	case string:
		return []domain.Line{domain.PlainLine(x)}, false, nil
	case int:
		return []domain.Line{domain.PlainLine(strconv.Itoa(x))}, false, nil
	case bool:
		return []domain.Line{domain.PlainLine(strconv.FormatBool(x))}, false, nil
	case *Node:
		if x == nil {
			return []domain.Line{domain.PlainLine("null")}, false, nil
		}
		loc, ok := x.locator(p.root)
		if !ok {
			return []domain.Line{domain.PlainLine(x.SimpleType() + " (detached)")}, true, nil
		}
		return []domain.Line{domain.NodeLine(loc)}, false, nil
	case []any:
		items := make([]domain.Line, 0, len(x))
		unattached := false
		for _, it := range x {
			lines, u, err := p.encodeLines(it)
			if err != nil {
				return nil, false, err
			}
			unattached = unattached || u
			if len(lines) == 1 {
				items = append(items, lines[0])
			} else {
				items = append(items, domain.ArrayLine(lines...))
			}
		}
		return []domain.Line{domain.ArrayLine(items...)}, unattached, nil
	case fmt.Stringer:
		return []domain.Line{domain.PlainLine(x.String())}, false, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		typeName := strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
		return []domain.Line{
			domain.PlainLine("no custom string form for " + typeName),
			domain.PlainLine(fmt.Sprintf("%s@%x", typeName, rv.Pointer())),
		}, false, nil
	}
	return nil, false, zerr.With(zerr.Wrap(domain.ErrValueEncoding, "unsupported value"), "type", fmt.Sprintf("%T", v))
}

func (p *Program) encodeArgs(args []any) []domain.Arg {
	if len(args) == 0 {
		return nil
	}
	out := make([]domain.Arg, len(args))
	for i, a := range args {
		out[i] = p.encodeArg(a)
	}
	return out
}

func (p *Program) encodeArg(a any) domain.Arg {
	switch x := a.(type) {
	case string:
		return domain.Arg{Kind: domain.ArgString, Value: x}
	case int:
		return domain.Arg{Kind: domain.ArgInteger, Value: strconv.Itoa(x)}
	case bool:
		return domain.Arg{Kind: domain.ArgBoolean, Value: strconv.FormatBool(x)}
	case *Node:
		if loc, ok := x.locator(p.root); ok {
			return domain.Arg{Kind: domain.ArgNode, Node: &loc}
		}
	case []any:
		items := make([]domain.Arg, len(x))
		for i, it := range x {
			items[i] = p.encodeArg(it)
		}
		return domain.Arg{Kind: domain.ArgCollection, Value: "list", Items: items}
	}
	return domain.Arg{Kind: domain.ArgComplex, Value: fmt.Sprintf("%T", a)}
}

func (p *Program) decodeArgs(args []domain.Arg) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := p.decodeArg(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *Program) decodeArg(a domain.Arg) (any, error) {
	switch a.Kind {
	case domain.ArgString:
		return a.Value, nil
	case domain.ArgInteger:
		return strconv.Atoi(a.Value)
	case domain.ArgBoolean:
		return strconv.ParseBool(a.Value)
	case domain.ArgNode:
		if a.Node == nil {
			return nil, zerr.New("node argument without locator")
		}
		return p.Resolve(*a.Node)
	case domain.ArgCollection:
		items := make([]any, len(a.Items))
		for i, it := range a.Items {
			v, err := p.decodeArg(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	default:
		return nil, zerr.With(zerr.New("argument cannot be reconstructed"), "type", a.Value)
	}
}

// Resolve finds the node loc points to. Results are cached until InvalidateLocators.
func (p *Program) Resolve(loc domain.Locator) (*Node, error) {
	key := loc.Result.Type + "@" + loc.StepsString()
	if n, ok := p.locs[key]; ok {
		return n, nil
	}
	notFound := func() error {
		return zerr.With(zerr.Wrap(domain.ErrNodeNotFound, "cannot resolve locator"), "locator", key)
	}
	cur := p.root
	for _, s := range loc.Steps {
		switch s.Kind {
		case domain.StepChild:
			if s.Child < 0 || s.Child >= len(cur.Children) {
				return nil, notFound()
			}
			cur = cur.Children[s.Child]
		case domain.StepNTA:
			if s.Prop == nil {
				return nil, notFound()
			}
			v, err := p.Get(cur, s.Prop.Name)
			if err != nil {
				return nil, notFound()
			}
			n, ok := v.(*Node)
			if !ok {
				return nil, notFound()
			}
			cur = n
		case domain.StepTAL:
			if s.TAL == nil {
				return nil, notFound()
			}
			if cur = cur.findTAL(*s.TAL); cur == nil {
				return nil, notFound()
			}
		default:
			return nil, notFound()
		}
	}
	if cur.Type != loc.Result.Type {
		return nil, notFound()
	}
	p.locs[key] = cur
	return cur, nil
}

// InvalidateLocators drops every cached locator resolution.
func (p *Program) InvalidateLocators() {
	clear(p.locs)
}

func cacheKey(name string, args []any) string {
	if len(args) == 0 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		if n, ok := a.(*Node); ok {
			fmt.Fprintf(&sb, "%p", n)
			continue
		}
		fmt.Fprintf(&sb, "%#v", a)
	}
	sb.WriteByte(')')
	return sb.String()
}
