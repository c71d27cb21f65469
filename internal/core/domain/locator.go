package domain

import (
	"fmt"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// TypeAtLocation describes a node by its type name and source span.
type TypeAtLocation struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Depth int    `json:"depth"`
}

// SimpleType returns the last dot-separated segment of the type name.
func (t TypeAtLocation) SimpleType() string {
	return SimpleTypeName(t.Type)
}

// SimpleTypeName returns the last dot-separated segment of a qualified type name.
func SimpleTypeName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 && i < len(qualified)-1 {
		return qualified[i+1:]
	}
	return qualified
}

func (t TypeAtLocation) write(w *canonicalWriter) {
	w.str(t.Type)
	w.str(t.Label)
	w.varint(int64(t.Start))
	w.varint(int64(t.End))
	w.varint(int64(t.Depth))
}

func readTypeAtLocation(r *canonicalReader) TypeAtLocation {
	return TypeAtLocation{
		Type:  r.str(),
		Label: r.str(),
		Start: int(r.varint()),
		End:   int(r.varint()),
		Depth: int(r.varint()),
	}
}

// StepKind identifies how a locator step descends from its parent.
type StepKind string

const (
	// StepChild descends into the n-th child.
	StepChild StepKind = "child"
	// StepNTA descends into the node produced by a nonterminal attribute.
	StepNTA StepKind = "nta"
	// StepTAL descends to the node matching a type and span.
	StepTAL StepKind = "tal"
)

// LocatorStep is one step of a structural path from the root to a node.
type LocatorStep struct {
	Kind  StepKind        `json:"type"`
	Child int             `json:"child,omitempty"`
	Prop  *Property       `json:"prop,omitempty"`
	TAL   *TypeAtLocation `json:"tal,omitempty"`
}

func (s LocatorStep) write(w *canonicalWriter) {
	switch s.Kind {
	case StepChild:
		w.tag(tagStepChild)
		w.varint(int64(s.Child))
	case StepNTA:
		if s.Prop == nil {
			encodingPanic("nta step without property")
		}
		w.tag(tagStepNTA)
		s.Prop.write(w)
	case StepTAL:
		if s.TAL == nil {
			encodingPanic("tal step without type")
		}
		w.tag(tagStepTAL)
		s.TAL.write(w)
	default:
		encodingPanic("locator step " + string(s.Kind))
	}
}

func (s LocatorStep) validate() error {
	switch s.Kind {
	case StepChild:
		return nil
	case StepNTA:
		if s.Prop == nil {
			return zerr.New("nta step without property")
		}
		return s.Prop.Validate()
	case StepTAL:
		if s.TAL == nil {
			return zerr.New("tal step without type")
		}
		return nil
	default:
		return zerr.With(zerr.New("unknown locator step"), "step", string(s.Kind))
	}
}

func readLocatorStep(r *canonicalReader) LocatorStep {
	switch r.tag() {
	case tagStepChild:
		return LocatorStep{Kind: StepChild, Child: int(r.varint())}
	case tagStepNTA:
		p := readProperty(r)
		return LocatorStep{Kind: StepNTA, Prop: &p}
	case tagStepTAL:
		t := readTypeAtLocation(r)
		return LocatorStep{Kind: StepTAL, TAL: &t}
	default:
		r.fail("unknown locator step")
		return LocatorStep{}
	}
}

func (s LocatorStep) String() string {
	switch s.Kind {
	case StepChild:
		return "[" + strconv.Itoa(s.Child) + "]"
	case StepNTA:
		if s.Prop != nil {
			return "." + s.Prop.String()
		}
	case StepTAL:
		if s.TAL != nil {
			return fmt.Sprintf("<%s:%d-%d>", s.TAL.SimpleType(), s.TAL.Start, s.TAL.End)
		}
	}
	return "?"
}

// Locator is a structural path to a node in an object graph.
type Locator struct {
	Result TypeAtLocation `json:"result"`
	Steps  []LocatorStep  `json:"steps"`
}

func (l Locator) write(w *canonicalWriter) {
	w.tag(tagLocator)
	l.Result.write(w)
	w.uvarint(uint64(len(l.Steps)))
	for _, s := range l.Steps {
		s.write(w)
	}
}

// Validate reports an error when l holds a step that has no canonical encoding.
func (l Locator) Validate() error {
	for _, s := range l.Steps {
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func readLocator(r *canonicalReader) Locator {
	r.expect(tagLocator)
	l := Locator{Result: readTypeAtLocation(r)}
	n := r.count()
	if n > 0 {
		l.Steps = make([]LocatorStep, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		l.Steps = append(l.Steps, readLocatorStep(r))
	}
	return l
}

// StepsString renders the locator steps for human-readable output.
func (l Locator) StepsString() string {
	if len(l.Steps) == 0 {
		return "<root>"
	}
	parts := make([]string, len(l.Steps))
	for i, s := range l.Steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " > ")
}

// ArgKind is the type of a property argument.
type ArgKind string

const (
	// ArgInteger is an integral argument.
	ArgInteger ArgKind = "integer"
	// ArgBoolean is a boolean argument.
	ArgBoolean ArgKind = "boolean"
	// ArgString is a string argument.
	ArgString ArgKind = "string"
	// ArgNode references another node by locator.
	ArgNode ArgKind = "node"
	// ArgCollection is an ordered collection of arguments.
	ArgCollection ArgKind = "collection"
	// ArgComplex is an argument the tracer could not encode. Value holds its type name.
	ArgComplex ArgKind = "complex"
)

// Arg is one argument of a property invocation.
type Arg struct {
	Kind  ArgKind  `json:"type"`
	Value string   `json:"value,omitempty"`
	Node  *Locator `json:"node,omitempty"`
	Items []Arg    `json:"items,omitempty"`
}

// IsComplex reports whether the argument, or any nested argument, could not be encoded.
func (a Arg) IsComplex() bool {
	if a.Kind == ArgComplex {
		return true
	}
	for _, it := range a.Items {
		if it.IsComplex() {
			return true
		}
	}
	return false
}

func (a Arg) write(w *canonicalWriter) {
	w.tag(tagArg)
	switch a.Kind {
	case ArgInteger, ArgBoolean, ArgString, ArgComplex:
		w.str(string(a.Kind))
		w.str(a.Value)
	case ArgNode:
		if a.Node == nil {
			encodingPanic("node argument without locator")
		}
		w.str(string(a.Kind))
		a.Node.write(w)
	case ArgCollection:
		w.str(string(a.Kind))
		w.str(a.Value)
		w.uvarint(uint64(len(a.Items)))
		for _, it := range a.Items {
			it.write(w)
		}
	default:
		encodingPanic("argument kind " + string(a.Kind))
	}
}

func (a Arg) validate() error {
	switch a.Kind {
	case ArgInteger, ArgBoolean, ArgString, ArgComplex:
		return nil
	case ArgNode:
		if a.Node == nil {
			return zerr.New("node argument without locator")
		}
		return a.Node.Validate()
	case ArgCollection:
		for _, it := range a.Items {
			if err := it.validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return zerr.With(zerr.New("unknown argument kind"), "kind", string(a.Kind))
	}
}

func readArg(r *canonicalReader) Arg {
	r.expect(tagArg)
	a := Arg{Kind: ArgKind(r.str())}
	switch a.Kind {
	case ArgInteger, ArgBoolean, ArgString, ArgComplex:
		a.Value = r.str()
	case ArgNode:
		l := readLocator(r)
		a.Node = &l
	case ArgCollection:
		a.Value = r.str()
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			a.Items = append(a.Items, readArg(r))
		}
	default:
		r.fail("unknown argument kind")
	}
	return a
}

func (a Arg) String() string {
	switch a.Kind {
	case ArgString:
		return strconv.Quote(a.Value)
	case ArgNode:
		if a.Node != nil {
			return a.Node.Result.SimpleType()
		}
	case ArgCollection:
		parts := make([]string, len(a.Items))
		for i, it := range a.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ArgComplex:
		return "<" + a.Value + ">"
	}
	return a.Value
}

// Property names a computed attribute and the arguments it is invoked with.
type Property struct {
	Name string `json:"name"`
	Args []Arg  `json:"args,omitempty"`
}

// NewProperty creates a Property, stripping any parameter signature suffix from the name.
func NewProperty(name string, args ...Arg) Property {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return Property{Name: name, Args: args}
}

// HasComplexArgs reports whether any argument could not be canonically encoded.
func (p Property) HasComplexArgs() bool {
	for _, a := range p.Args {
		if a.IsComplex() {
			return true
		}
	}
	return false
}

func (p Property) write(w *canonicalWriter) {
	w.tag(tagProperty)
	w.str(p.Name)
	w.uvarint(uint64(len(p.Args)))
	for _, a := range p.Args {
		a.write(w)
	}
}

// Validate reports an error when an argument of p has no canonical encoding.
func (p Property) Validate() error {
	for _, a := range p.Args {
		if err := a.validate(); err != nil {
			return err
		}
	}
	return nil
}

func readProperty(r *canonicalReader) Property {
	r.expect(tagProperty)
	p := Property{Name: r.str()}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		p.Args = append(p.Args, readArg(r))
	}
	return p
}

func (p Property) String() string {
	if len(p.Args) == 0 {
		return p.Name
	}
	parts := make([]string, len(p.Args))
	for i, a := range p.Args {
		parts[i] = a.String()
	}
	return p.Name + "(" + strings.Join(parts, ", ") + ")"
}
