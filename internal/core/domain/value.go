package domain

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// LineKind is the type of one encoded result line.
type LineKind string

const (
	// LinePlain is plain text.
	LinePlain LineKind = "plain"
	// LineStdout is text the evaluation wrote to standard output.
	LineStdout LineKind = "stdout"
	// LineStderr is text the evaluation wrote to standard error.
	LineStderr LineKind = "stderr"
	// LineNode is a reference to a node.
	LineNode LineKind = "node"
	// LineArray is a nested sequence of lines.
	LineArray LineKind = "arr"
)

// Line is one element of a recursively encoded evaluation result.
type Line struct {
	Kind  LineKind `json:"type"`
	Value string   `json:"value,omitempty"`
	Node  *Locator `json:"node,omitempty"`
	Items []Line   `json:"items,omitempty"`
}

// PlainLine is a shorthand for a plain text line.
func PlainLine(s string) Line {
	return Line{Kind: LinePlain, Value: s}
}

// ArrayLine is a shorthand for a nested sequence.
func ArrayLine(items ...Line) Line {
	return Line{Kind: LineArray, Items: items}
}

// NodeLine is a shorthand for a node reference.
func NodeLine(loc Locator) Line {
	return Line{Kind: LineNode, Node: &loc}
}

func (l Line) write(w *canonicalWriter) {
	w.tag(tagLine)
	w.str(string(l.Kind))
	switch l.Kind {
	case LinePlain, LineStdout, LineStderr:
		w.str(l.Value)
	case LineNode:
		if l.Node == nil {
			encodingPanic("node line without locator")
		}
		l.Node.write(w)
	case LineArray:
		w.uvarint(uint64(len(l.Items)))
		for _, it := range l.Items {
			it.write(w)
		}
	default:
		encodingPanic("line kind " + string(l.Kind))
	}
}

func (l Line) validate() error {
	switch l.Kind {
	case LinePlain, LineStdout, LineStderr:
		return nil
	case LineNode:
		if l.Node == nil {
			return zerr.New("node line without locator")
		}
		return l.Node.Validate()
	case LineArray:
		for _, it := range l.Items {
			if err := it.validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return zerr.With(zerr.New("unknown line kind"), "kind", string(l.Kind))
	}
}

func (l Line) render(sb *strings.Builder) {
	switch l.Kind {
	case LineNode:
		if l.Node != nil {
			sb.WriteString(l.Node.Result.SimpleType())
			sb.WriteString("@")
			sb.WriteString(l.Node.StepsString())
		}
	case LineArray:
		sb.WriteString("[")
		for i, it := range l.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			it.render(sb)
		}
		sb.WriteString("]")
	default:
		sb.WriteString(l.Value)
	}
}

// ValueKind tags an evaluation result.
type ValueKind string

const (
	// KindValue is a normal result.
	KindValue ValueKind = "VALUE"
	// KindException is an evaluation that threw.
	KindException ValueKind = "EXCEPTION"
)

const dummyMarker = "<structure-only trace value>"

// EvaluatedValue is a comparable evaluation result. Equality and hashing use the canonical
// encoding of (kind, lines). Values are masked at construction.
type EvaluatedValue struct {
	kind  ValueKind
	lines []Line
	enc   string
	hash  func() uint64
}

// NewValue creates a VALUE result from encoded lines, applying Mask.
func NewValue(lines []Line) EvaluatedValue {
	return newEvaluatedValue(KindValue, Mask(lines))
}

// NewException creates an EXCEPTION result carrying the error message.
func NewException(msg string) EvaluatedValue {
	return newEvaluatedValue(KindException, []Line{PlainLine(msg)})
}

// DummyValue is stored for trace values when tracing runs in structure-only mode.
func DummyValue() EvaluatedValue {
	return newEvaluatedValue(KindValue, []Line{PlainLine(dummyMarker)})
}

func newEvaluatedValue(kind ValueKind, lines []Line) EvaluatedValue {
	w := &canonicalWriter{}
	switch kind {
	case KindValue:
		w.tag(tagValue)
	case KindException:
		w.tag(tagException)
	default:
		encodingPanic("value kind " + string(kind))
	}
	w.uvarint(uint64(len(lines)))
	for _, l := range lines {
		l.write(w)
	}
	enc := string(w.bytes())
	return EvaluatedValue{
		kind:  kind,
		lines: lines,
		enc:   enc,
		hash: sync.OnceValue(func() uint64 {
			return xxhash.Sum64String(enc)
		}),
	}
}

// Kind returns VALUE or EXCEPTION.
func (v EvaluatedValue) Kind() ValueKind { return v.kind }

// Lines returns the masked result lines.
func (v EvaluatedValue) Lines() []Line { return v.lines }

// IsException reports whether the evaluation threw.
func (v EvaluatedValue) IsException() bool { return v.kind == KindException }

// Message returns the error message of an EXCEPTION value, or "" for a VALUE.
func (v EvaluatedValue) Message() string {
	if v.kind != KindException || len(v.lines) == 0 {
		return ""
	}
	return v.lines[0].Value
}

// IsDummy reports whether v is a structure-only placeholder.
func (v EvaluatedValue) IsDummy() bool {
	return v.kind == KindValue && len(v.lines) == 1 && v.lines[0].Kind == LinePlain &&
		v.lines[0].Value == dummyMarker
}

// IsZero reports whether v was never constructed.
func (v EvaluatedValue) IsZero() bool { return v.enc == "" }

// Encode returns the canonical byte encoding.
func (v EvaluatedValue) Encode() []byte { return []byte(v.enc) }

// Hash returns the xxhash of the canonical encoding.
func (v EvaluatedValue) Hash() uint64 {
	if v.hash == nil {
		return 0
	}
	return v.hash()
}

// Equal reports whether both values have the same canonical encoding.
func (v EvaluatedValue) Equal(other EvaluatedValue) bool {
	return v.enc == other.enc
}

// String renders the value on a single line for logs and summaries.
func (v EvaluatedValue) String() string {
	var sb strings.Builder
	if v.kind == KindException {
		sb.WriteString("exception: ")
	}
	for i, l := range v.lines {
		if i > 0 {
			sb.WriteString(" | ")
		}
		l.render(&sb)
	}
	return sb.String()
}

type evaluatedValueJSON struct {
	Kind  ValueKind `json:"kind"`
	Lines []Line    `json:"lines"`
}

// MarshalJSON implements json.Marshaler.
func (v EvaluatedValue) MarshalJSON() ([]byte, error) {
	lines := v.lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(evaluatedValueJSON{Kind: v.kind, Lines: lines})
}

// UnmarshalJSON implements json.Unmarshaler. Values that have no canonical encoding are
// rejected with ErrValueEncoding.
func (v *EvaluatedValue) UnmarshalJSON(data []byte) error {
	var raw evaluatedValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return zerr.Wrap(ErrValueEncoding, err.Error())
	}
	if raw.Kind != KindValue && raw.Kind != KindException {
		return zerr.With(zerr.Wrap(ErrValueEncoding, "unknown value kind"), "kind", string(raw.Kind))
	}
	for _, l := range raw.Lines {
		if err := l.validate(); err != nil {
			return zerr.Wrap(ErrValueEncoding, err.Error())
		}
	}
	if raw.Kind == KindException {
		*v = newEvaluatedValue(KindException, raw.Lines)
		return nil
	}
	*v = NewValue(raw.Lines)
	return nil
}
