package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/core/domain"
)

func plain(values ...string) []domain.Line {
	lines := make([]domain.Line, len(values))
	for i, v := range values {
		lines[i] = domain.PlainLine(v)
	}
	return lines
}

func TestMask(t *testing.T) {
	tests := []struct {
		name     string
		input    []domain.Line
		expected []domain.Line
	}{
		{
			name:     "drops identity hash after warning",
			input:    plain("no custom string for foo.Bar", "foo.Bar@1a2b3c", "tail"),
			expected: plain("no custom string for foo.Bar", "tail"),
		},
		{
			name:     "long warning form",
			input:    plain("No toString() or cpr_getOutput() implementation in foo.Bar", "foo.Bar@ff"),
			expected: plain("No toString() or cpr_getOutput() implementation in foo.Bar"),
		},
		{
			name:     "other type is kept",
			input:    plain("no custom string for foo.Bar", "foo.Baz@1a2b3c"),
			expected: plain("no custom string for foo.Bar", "foo.Baz@1a2b3c"),
		},
		{
			name:     "non hex suffix is kept",
			input:    plain("no custom string for foo.Bar", "foo.Bar@xyz"),
			expected: plain("no custom string for foo.Bar", "foo.Bar@xyz"),
		},
		{
			name:     "hash without warning is kept",
			input:    plain("foo.Bar@1a2b3c"),
			expected: plain("foo.Bar@1a2b3c"),
		},
		{
			name:     "repeated hash lines",
			input:    plain("no custom string for foo.Bar", "foo.Bar@1", "foo.Bar@2", "tail"),
			expected: plain("no custom string for foo.Bar", "tail"),
		},
		{
			name: "nested arrays",
			input: []domain.Line{
				domain.ArrayLine(plain("no custom string form for a.B", "a.B@00")...),
				domain.PlainLine("x"),
			},
			expected: []domain.Line{
				domain.ArrayLine(plain("no custom string form for a.B")...),
				domain.PlainLine("x"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := domain.Mask(tt.input)
			assert.Equal(t, tt.expected, once)
			assert.Equal(t, once, domain.Mask(once), "mask must be idempotent")
		})
	}
}

func TestEvaluatedValue_Equality(t *testing.T) {
	a := domain.NewValue(plain("no custom string for foo.Bar", "foo.Bar@1a2b3c"))
	b := domain.NewValue(plain("no custom string for foo.Bar", "foo.Bar@ffffff"))
	c := domain.NewValue(plain("other"))

	assert.True(t, a.Equal(b), "identity hashes are masked before comparison")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
}

func TestEvaluatedValue_ExceptionDiffersFromValue(t *testing.T) {
	v := domain.NewValue(plain("boom"))
	e := domain.NewException("boom")

	assert.False(t, v.Equal(e))
	assert.True(t, e.IsException())
	assert.False(t, v.IsException())
	assert.Equal(t, "exception: boom", e.String())
	assert.Equal(t, "boom", e.Message())
	assert.Empty(t, v.Message())
}

func TestEvaluatedValue_Dummy(t *testing.T) {
	assert.True(t, domain.DummyValue().IsDummy())
	assert.False(t, domain.NewValue(plain("1")).IsDummy())
	assert.True(t, domain.EvaluatedValue{}.IsZero())
}

func TestEvaluatedValue_JSON(t *testing.T) {
	v := domain.NewValue([]domain.Line{domain.PlainLine("a"), domain.ArrayLine(plain("b", "c")...)})
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var back domain.EvaluatedValue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, v.Equal(back))

	e := domain.NewException("oops")
	data, err = json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsException())
}

func TestEvaluatedValue_JSONRejectsUnencodable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown line kind", data: `{"kind":"VALUE","lines":[{"type":"float","value":"1.5"}]}`},
		{name: "node line without locator", data: `{"kind":"VALUE","lines":[{"type":"node"}]}`},
		{name: "nested unknown line", data: `{"kind":"VALUE","lines":[{"type":"arr","items":[{"type":"blob"}]}]}`},
		{name: "node line with bad step", data: `{"kind":"VALUE","lines":[{"type":"node","node":{"result":{"type":"a.B"},"steps":[{"type":"nta"}]}}]}`},
		{name: "unknown value kind", data: `{"kind":"MAYBE","lines":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v domain.EvaluatedValue
			assert.NotPanics(t, func() {
				err := json.Unmarshal([]byte(tt.data), &v)
				assert.ErrorIs(t, err, domain.ErrValueEncoding)
			})
		})
	}
}
