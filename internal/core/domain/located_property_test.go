package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/core/domain"
)

func sampleLocator(child int) domain.Locator {
	return domain.Locator{
		Result: domain.TypeAtLocation{Type: "lang.ast.VarDecl", Start: 10, End: 20, Depth: 2},
		Steps: []domain.LocatorStep{
			{Kind: domain.StepChild, Child: 0},
			{Kind: domain.StepChild, Child: child},
		},
	}
}

func sampleProp(name string, child int, args ...domain.Arg) domain.LocatedProperty {
	return domain.NewLocatedProperty(sampleLocator(child), domain.NewProperty(name, args...))
}

func TestLocatedProperty_EqualityFromEqualData(t *testing.T) {
	a := sampleProp("type", 1, domain.Arg{Kind: domain.ArgInteger, Value: "3"})
	b := sampleProp("type", 1, domain.Arg{Kind: domain.ArgInteger, Value: "3"})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Encode(), b.Encode())

	m := map[domain.PropKey]int{a.Key(): 1}
	assert.Equal(t, 1, m[b.Key()])
}

func TestLocatedProperty_DifferentData(t *testing.T) {
	base := sampleProp("type", 1)
	tests := []struct {
		name  string
		other domain.LocatedProperty
	}{
		{"other child", sampleProp("type", 2)},
		{"other name", sampleProp("decl", 1)},
		{"with args", sampleProp("type", 1, domain.Arg{Kind: domain.ArgBoolean, Value: "true"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, base.Equal(tt.other))
			assert.NotEqual(t, base.Key(), tt.other.Key())
		})
	}
}

func TestNewProperty_StripsSignature(t *testing.T) {
	p := domain.NewProperty("lookup(String)", domain.Arg{Kind: domain.ArgString, Value: "x"})
	assert.Equal(t, "lookup", p.Name)
	assert.Equal(t, `lookup("x")`, p.String())
}

func TestProperty_HasComplexArgs(t *testing.T) {
	simple := domain.NewProperty("a", domain.Arg{Kind: domain.ArgInteger, Value: "1"})
	nested := domain.NewProperty("b", domain.Arg{
		Kind:  domain.ArgCollection,
		Items: []domain.Arg{{Kind: domain.ArgComplex, Value: "java.util.Map"}},
	})
	assert.False(t, simple.HasComplexArgs())
	assert.True(t, nested.HasComplexArgs())
}

func TestDecodeLocatedProperty(t *testing.T) {
	node := sampleLocator(4)
	lp := domain.NewLocatedProperty(sampleLocator(1), domain.NewProperty("lookup",
		domain.Arg{Kind: domain.ArgString, Value: "x"},
		domain.Arg{Kind: domain.ArgNode, Node: &node},
		domain.Arg{Kind: domain.ArgCollection, Value: "List", Items: []domain.Arg{{Kind: domain.ArgInteger, Value: "-7"}}},
	))

	decoded, err := domain.DecodeLocatedProperty(lp.Encode())
	require.NoError(t, err)
	assert.True(t, lp.Equal(decoded))
	assert.Equal(t, lp.Hash(), decoded.Hash())
	assert.Equal(t, lp.Locator(), decoded.Locator())
	assert.Equal(t, lp.Property(), decoded.Property())
}

func TestDecodeLocatedProperty_Malformed(t *testing.T) {
	enc := sampleProp("type", 1).Encode()

	_, err := domain.DecodeLocatedProperty(enc[:len(enc)-2])
	require.ErrorIs(t, err, domain.ErrGraphDecode)

	_, err = domain.DecodeLocatedProperty(append(enc, 0x01))
	require.ErrorIs(t, err, domain.ErrGraphDecode)
}

func TestLocatedProperty_JSON(t *testing.T) {
	lp := sampleProp("type", 3)
	data, err := json.Marshal(lp)
	require.NoError(t, err)

	var back domain.LocatedProperty
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, lp.Equal(back))
}

func TestLocatedProperty_Names(t *testing.T) {
	lp := sampleProp("type", 3)
	assert.Equal(t, "lang.ast.VarDecl", lp.NodeType())
	assert.Equal(t, "lang.ast.VarDecl.type", lp.IssueKey())
	assert.Equal(t, "VarDecl.type", lp.SimpleName())
	assert.Equal(t, "VarDecl.type at [0] > [3]", lp.String())
	assert.True(t, domain.LocatedProperty{}.IsZero())
}

func TestEncodingPanicsOnInvalidStep(t *testing.T) {
	loc := domain.Locator{Steps: []domain.LocatorStep{{Kind: domain.StepNTA}}}
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok, "expected an error panic")
		assert.ErrorIs(t, err, domain.ErrCanonicalEncoding)
	}()
	domain.NewLocatedProperty(loc, domain.NewProperty("x"))
	t.Fatal("expected panic")
}

func TestLocatedProperty_JSONRejectsUnencodable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown step", data: `{"locator":{"result":{"type":"a.B"},"steps":[{"type":"jump"}]},"property":{"name":"x"}}`},
		{name: "tal step without type", data: `{"locator":{"result":{"type":"a.B"},"steps":[{"type":"tal"}]},"property":{"name":"x"}}`},
		{name: "unknown argument", data: `{"locator":{"result":{"type":"a.B"},"steps":[]},"property":{"name":"x","args":[{"type":"float"}]}}`},
		{name: "node argument without locator", data: `{"locator":{"result":{"type":"a.B"},"steps":[]},"property":{"name":"x","args":[{"type":"collection","items":[{"type":"node"}]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lp domain.LocatedProperty
			assert.NotPanics(t, func() {
				err := json.Unmarshal([]byte(tt.data), &lp)
				assert.ErrorIs(t, err, domain.ErrToolProtocol)
			})
		})
	}
}
