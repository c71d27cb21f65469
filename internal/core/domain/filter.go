package domain

import (
	"encoding/json"
	"strings"

	"go.trai.ch/zerr"
)

// FilterDecision is the outcome of a report filter.
type FilterDecision int

const (
	// FilterInclude keeps the report.
	FilterInclude FilterDecision = iota
	// FilterExclude drops the report.
	FilterExclude
)

type filterRule struct {
	nodeType      string
	nodeUseSuffix bool
	attrName      string
	attrUseSuffix bool
}

// An empty nodeType or attr means the report does not name one.
func (f filterRule) matches(nodeType, attr string) bool {
	if nodeType == "" {
		if f.nodeUseSuffix && f.nodeType == "" {
			return false
		}
	} else if f.nodeUseSuffix {
		if !strings.HasSuffix(nodeType, f.nodeType) {
			return false
		}
	} else if nodeType != f.nodeType {
		return false
	}

	if attr == "" {
		return !(f.attrUseSuffix && f.attrName == "")
	}
	if f.attrUseSuffix {
		return strings.HasSuffix(attr, f.attrName)
	}
	return attr == f.attrName
}

func parseFilterRule(entry string) (filterRule, error) {
	parts := strings.Split(entry, ".")
	if len(parts) == 1 {
		if entry == "*" {
			return filterRule{nodeUseSuffix: true, attrUseSuffix: true}, nil
		}
		return filterRule{}, zerr.With(zerr.Wrap(ErrConfigInvalid, "filter entry must have the form Type.attr"), "filter", entry)
	}
	typ := strings.Join(parts[:len(parts)-1], ".")
	attr := parts[len(parts)-1]
	shorthand := len(parts) == 2
	wildType := typ == "*"
	wildAttr := attr == "*"

	rule := filterRule{
		nodeType:      typ,
		nodeUseSuffix: wildType || shorthand,
		attrName:      attr,
		attrUseSuffix: wildAttr,
	}
	switch {
	case wildType:
		rule.nodeType = ""
	case shorthand:
		rule.nodeType = "." + typ
	}
	if wildAttr {
		rule.attrName = ""
	}
	return rule, nil
}

// ReportFilter decides which findings are kept. Include rules win over exclude rules, and
// anything matched by neither is included.
type ReportFilter struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	include []filterRule
	exclude []filterRule
}

// NewReportFilter parses include and exclude entries of the forms "Type.attr" (matches
// any package), "pkg.Type.attr", "*.attr", "Type.*" and "*".
func NewReportFilter(include, exclude []string) (*ReportFilter, error) {
	if len(include) == 0 && len(exclude) == 0 {
		return nil, zerr.Wrap(ErrConfigInvalid, "filter must specify at least one of include or exclude")
	}
	f := &ReportFilter{Include: include, Exclude: exclude}
	for _, e := range include {
		r, err := parseFilterRule(e)
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, r)
	}
	for _, e := range exclude {
		r, err := parseFilterRule(e)
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, r)
	}
	return f, nil
}

// Decide classifies a finding about nodeType.attr.
func (f *ReportFilter) Decide(nodeType, attr string) FilterDecision {
	for _, r := range f.include {
		if r.matches(nodeType, attr) {
			return FilterInclude
		}
	}
	for _, r := range f.exclude {
		if r.matches(nodeType, attr) {
			return FilterExclude
		}
	}
	return FilterInclude
}

// UnmarshalJSON restores a filter persisted with a report file.
func (f *ReportFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Include []string `json:"include"`
		Exclude []string `json:"exclude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewReportFilter(raw.Include, raw.Exclude)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}
