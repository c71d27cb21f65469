package domain

import (
	"encoding/json"
	"sync"
	"unique"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// PropKey is the interned canonical identity of a LocatedProperty.
// Two keys are equal exactly when the canonical encodings are equal.
type PropKey struct {
	h unique.Handle[string]
}

// IsZero reports whether the key was never assigned.
func (k PropKey) IsZero() bool {
	return k == PropKey{}
}

// Bytes returns the canonical encoding behind the key.
func (k PropKey) Bytes() []byte {
	if k.IsZero() {
		return nil
	}
	return []byte(k.h.Value())
}

// LocatedProperty identifies one attribute invocation site: a node path plus a property.
// It is immutable; equality and hashing use the canonical encoding only.
type LocatedProperty struct {
	locator  Locator
	property Property
	key      PropKey
	hash     func() uint64
}

// NewLocatedProperty creates a LocatedProperty and computes its canonical key.
func NewLocatedProperty(loc Locator, prop Property) LocatedProperty {
	w := &canonicalWriter{}
	loc.write(w)
	prop.write(w)
	return newLocatedProperty(loc, prop, string(w.bytes()))
}

func newLocatedProperty(loc Locator, prop Property, enc string) LocatedProperty {
	return LocatedProperty{
		locator:  loc,
		property: prop,
		key:      PropKey{h: unique.Make(enc)},
		hash: sync.OnceValue(func() uint64 {
			return xxhash.Sum64String(enc)
		}),
	}
}

// DecodeLocatedProperty rebuilds a LocatedProperty from its canonical encoding.
func DecodeLocatedProperty(enc []byte) (LocatedProperty, error) {
	r := &canonicalReader{buf: enc}
	loc := readLocator(r)
	prop := readProperty(r)
	if r.err == nil && len(r.buf) != 0 {
		r.fail("trailing bytes after identity")
	}
	if r.err != nil {
		return LocatedProperty{}, r.err
	}
	return newLocatedProperty(loc, prop, string(enc)), nil
}

// Locator returns the node path.
func (lp LocatedProperty) Locator() Locator { return lp.locator }

// Property returns the property descriptor.
func (lp LocatedProperty) Property() Property { return lp.property }

// Key returns the interned canonical identity, usable as a map key.
func (lp LocatedProperty) Key() PropKey { return lp.key }

// Encode returns the canonical byte encoding.
func (lp LocatedProperty) Encode() []byte { return lp.key.Bytes() }

// Hash returns the xxhash of the canonical encoding. It is computed once.
func (lp LocatedProperty) Hash() uint64 {
	if lp.hash == nil {
		return 0
	}
	return lp.hash()
}

// Equal reports whether both values have the same canonical encoding.
func (lp LocatedProperty) Equal(other LocatedProperty) bool {
	return lp.key == other.key
}

// IsZero reports whether lp was never constructed.
func (lp LocatedProperty) IsZero() bool { return lp.key.IsZero() }

// NodeType is the qualified type of the located node.
func (lp LocatedProperty) NodeType() string { return lp.locator.Result.Type }

// Name is the property name.
func (lp LocatedProperty) Name() string { return lp.property.Name }

// IssueKey groups divergences of the same logical issue: qualified type and property name.
func (lp LocatedProperty) IssueKey() string {
	return lp.locator.Result.Type + "." + lp.property.Name
}

// SimpleName renders "Type.prop(args)" with the unqualified type name.
func (lp LocatedProperty) SimpleName() string {
	return lp.locator.Result.SimpleType() + "." + lp.property.String()
}

func (lp LocatedProperty) String() string {
	return lp.SimpleName() + " at " + lp.locator.StepsString()
}

type locatedPropertyJSON struct {
	Locator  Locator  `json:"locator"`
	Property Property `json:"property"`
}

// MarshalJSON implements json.Marshaler.
func (lp LocatedProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal(locatedPropertyJSON{Locator: lp.locator, Property: lp.property})
}

// UnmarshalJSON implements json.Unmarshaler. Identities that have no canonical encoding are
// rejected with ErrToolProtocol.
func (lp *LocatedProperty) UnmarshalJSON(data []byte) error {
	var raw locatedPropertyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := raw.Locator.Validate(); err != nil {
		return zerr.Wrap(ErrToolProtocol, err.Error())
	}
	if err := raw.Property.Validate(); err != nil {
		return zerr.Wrap(ErrToolProtocol, err.Error())
	}
	*lp = NewLocatedProperty(raw.Locator, raw.Property)
	return nil
}
