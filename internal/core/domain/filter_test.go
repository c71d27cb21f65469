package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/core/domain"
)

func TestReportFilter_Decide(t *testing.T) {
	tests := []struct {
		name     string
		include  []string
		exclude  []string
		nodeType string
		attr     string
		expected domain.FilterDecision
	}{
		{"shorthand type matches any package", nil, []string{"VarDecl.type"}, "lang.ast.VarDecl", "type", domain.FilterExclude},
		{"shorthand type needs segment boundary", nil, []string{"Decl.type"}, "lang.ast.VarDecl", "type", domain.FilterInclude},
		{"qualified type is exact", nil, []string{"lang.ast.VarDecl.type"}, "lang.ast.VarDecl", "type", domain.FilterExclude},
		{"qualified type mismatch", nil, []string{"ast.VarDecl.type"}, "lang.ast.VarDecl", "type", domain.FilterInclude},
		{"wildcard type", nil, []string{"*.toString"}, "lang.ast.Expr", "toString", domain.FilterExclude},
		{"wildcard attr", nil, []string{"Expr.*"}, "lang.ast.Expr", "anything", domain.FilterExclude},
		{"everything", nil, []string{"*"}, "lang.ast.Expr", "type", domain.FilterExclude},
		{"include wins", []string{"VarDecl.type"}, []string{"*"}, "lang.ast.VarDecl", "type", domain.FilterInclude},
		{"include does not restrict", []string{"VarDecl.type"}, nil, "lang.ast.Expr", "type", domain.FilterInclude},
		{"wildcard attr skips reports without attr", nil, []string{"VarDecl.*"}, "lang.ast.VarDecl", "", domain.FilterInclude},
		{"named attr with node only report", nil, []string{"VarDecl.type"}, "lang.ast.VarDecl", "", domain.FilterExclude},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := domain.NewReportFilter(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f.Decide(tt.nodeType, tt.attr))
		})
	}
}

func TestNewReportFilter_Invalid(t *testing.T) {
	_, err := domain.NewReportFilter(nil, nil)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	_, err = domain.NewReportFilter(nil, []string{"typeOnly"})
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestReportFilter_JSON(t *testing.T) {
	f, err := domain.NewReportFilter([]string{"A.b"}, []string{"*"})
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var back domain.ReportFilter
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, domain.FilterInclude, back.Decide("x.A", "b"))
	assert.Equal(t, domain.FilterExclude, back.Decide("x.A", "c"))
}
