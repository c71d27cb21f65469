package domain

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ReportType classifies a finding.
type ReportType string

const (
	// ReportNonNodeNTA means a nonterminal attribute returned a value that is not a node.
	ReportNonNodeNTA ReportType = "NON_ASTNODE_NTA"
	// ReportNodeReachableTwice means a node can be reached through two different paths.
	ReportNodeReachableTwice ReportType = "NODE_REACHABLE_THROUGH_TWO_PATHS"
	// ReportPropertyValueDiff means evaluating other properties first changes a property's value.
	ReportPropertyValueDiff ReportType = "PROPERTY_VALUE_DIFF"
	// ReportPropertyValueDiffInReferenceRun means a value seen during search differs from the
	// reference pass.
	ReportPropertyValueDiffInReferenceRun ReportType = "PROPERTY_VALUE_DIFF_IN_REFERENCE_RUN"
	// ReportFlakyProperty means a property returns different values on fresh object graphs.
	ReportFlakyProperty ReportType = "FLAKY_PROPERTY"
	// ReportFlakyPropertyInReferenceRun means a property differs between reference passes only.
	ReportFlakyPropertyInReferenceRun ReportType = "FLAKY_PROPERTY_IN_REFERENCE_RUN"
	// ReportIncorrectFlush means a property is not reset by a cache flush.
	ReportIncorrectFlush ReportType = "INCORRECT_FLUSH"
	// ReportModifiedArg means a property mutated one of its arguments.
	ReportModifiedArg ReportType = "MODIFIED_ARG"
	// ReportUnattachedNode means a property returned a node not attached to the root.
	ReportUnattachedNode ReportType = "UNATTACHED_NODE"
	// ReportFailedFindingNode means a node seen in the reference pass is missing from a fresh graph.
	ReportFailedFindingNode ReportType = "FAILED_FINDING_NODE_IN_NEW_AST"
	// ReportMutatedIntrinsics means an intrinsic value of a node was mutated.
	ReportMutatedIntrinsics ReportType = "MUTATED_INTRINSICS"
	// ReportExceptionThrown means a property threw during evaluation.
	ReportExceptionThrown ReportType = "EXCEPTION_THROWN"
	// ReportNonIdempotentEquation means invoking the equation directly disagrees with the reference.
	ReportNonIdempotentEquation ReportType = "NON_IDEMPOTENT_PROPERTY_EQUATION"
	// ReportNonIdempotentEquationAfterReset is ReportNonIdempotentEquation after the property was reset.
	ReportNonIdempotentEquationAfterReset ReportType = "NON_IDEMPOTENT_PROPERTY_EQUATION_AFTER_RESET"
)

// ReportTypes lists every report type in catalogue order.
var ReportTypes = []ReportType{
	ReportNonNodeNTA,
	ReportNodeReachableTwice,
	ReportPropertyValueDiff,
	ReportPropertyValueDiffInReferenceRun,
	ReportFlakyProperty,
	ReportFlakyPropertyInReferenceRun,
	ReportIncorrectFlush,
	ReportModifiedArg,
	ReportUnattachedNode,
	ReportFailedFindingNode,
	ReportMutatedIntrinsics,
	ReportExceptionThrown,
	ReportNonIdempotentEquation,
	ReportNonIdempotentEquationAfterReset,
}

// Explainable reports whether explain can search a reproduction for reports of this type.
func (t ReportType) Explainable() bool {
	switch t {
	case ReportPropertyValueDiffInReferenceRun, ReportNonIdempotentEquation, ReportNonIdempotentEquationAfterReset:
		return true
	default:
		return false
	}
}

var reportMessages = map[ReportType]string{
	ReportNonNodeNTA:                      "The value for '%s.%s' is a nonterminal attribute that did not return a node",
	ReportNodeReachableTwice:              "The value for '%s.%s' is a node reachable through two different paths",
	ReportPropertyValueDiff:               "The value for '%s.%s' has an observable side effect",
	ReportPropertyValueDiffInReferenceRun: "The value for '%s.%s' has one value during normal run, and another during randomized search",
	ReportFlakyProperty:                   "The value for '%s.%s' is flaky",
	ReportFlakyPropertyInReferenceRun:     "The value for '%s.%s' is inconsistent across reference runs",
	ReportIncorrectFlush:                  "The value for '%s.%s' is not reset by a cache flush",
	ReportModifiedArg:                     "The value for '%s.%s' was computed by modifying an argument",
	ReportUnattachedNode:                  "'%s.%s' returned a node not attached to the root of the tree",
	ReportMutatedIntrinsics:               "The value for '%s.%s' was computed by mutating an intrinsic value",
	ReportNonIdempotentEquation:           "The value for '%s.%s' has one value during normal run, and another when the equation is re-evaluated",
	ReportNonIdempotentEquationAfterReset: "The value for '%s.%s' has one value during normal run, and another when the equation is reset and re-evaluated",
}

// Report is one finding. Two reports are the same finding when their type, message and
// details are equal; ToolIdx and DiscoveryTimeMs are annotations.
type Report struct {
	Type            ReportType                 `json:"type"`
	Message         string                     `json:"message"`
	Details         map[string]json.RawMessage `json:"details"`
	ToolIdx         *int                       `json:"toolIdx,omitempty"`
	DiscoveryTimeMs *int64                     `json:"discoveryTimeMs,omitempty"`

	fingerprint func() string
}

type reportIdentity struct {
	Type    ReportType                 `json:"type"`
	Message string                     `json:"message"`
	Details map[string]json.RawMessage `json:"details"`
}

func newReport(t ReportType, message string, details map[string]any) *Report {
	raw := make(map[string]json.RawMessage, len(details))
	for k, v := range details {
		b, err := json.Marshal(v)
		if err != nil {
			encodingPanic("report detail " + k)
		}
		raw[k] = b
	}
	r := &Report{Type: t, Message: message, Details: raw}
	r.init()
	return r
}

func (r *Report) init() {
	if r.Details == nil {
		r.Details = map[string]json.RawMessage{}
	}
	r.fingerprint = sync.OnceValue(func() string {
		b, err := json.Marshal(reportIdentity{Type: r.Type, Message: r.Message, Details: r.Details})
		if err != nil {
			encodingPanic("report")
		}
		return string(b)
	})
}

// UnmarshalJSON decodes a report and prepares its fingerprint.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Report(p)
	r.init()
	return nil
}

// Fingerprint returns the canonical JSON of the report's identity.
func (r *Report) Fingerprint() string {
	if r.fingerprint == nil {
		r.init()
	}
	return r.fingerprint()
}

// Hash returns the xxhash of the fingerprint.
func (r *Report) Hash() uint64 {
	return xxhash.Sum64String(r.Fingerprint())
}

// Equal reports whether both reports describe the same finding.
func (r *Report) Equal(other *Report) bool {
	return r.Fingerprint() == other.Fingerprint()
}

// SetToolIdx annotates the report with the tool configuration it was found in.
func (r *Report) SetToolIdx(idx int) {
	r.ToolIdx = &idx
}

// SetDiscoveryTime annotates the report with the run time at which it was found.
func (r *Report) SetDiscoveryTime(ms int64) {
	r.DiscoveryTimeMs = &ms
}

// ToolIndex returns the annotated tool index, or 0 when the report carries none.
func (r *Report) ToolIndex() int {
	if r.ToolIdx == nil {
		return 0
	}
	return *r.ToolIdx
}

// Subject decodes the located property the report is about. ok is false when the report has
// no subject property.
func (r *Report) Subject() (lp LocatedProperty, ok bool) {
	loc, ok := r.SubjectLocator()
	if !ok {
		return LocatedProperty{}, false
	}
	raw, found := r.Details["property"]
	if !found {
		raw, found = r.Details["prop"]
	}
	if !found {
		return LocatedProperty{}, false
	}
	var prop Property
	if err := json.Unmarshal(raw, &prop); err != nil {
		return LocatedProperty{}, false
	}
	if loc.Validate() != nil || prop.Validate() != nil {
		return LocatedProperty{}, false
	}
	return NewLocatedProperty(loc, prop), true
}

// SubjectLocator decodes the node locator the report is about.
func (r *Report) SubjectLocator() (Locator, bool) {
	raw, found := r.Details["subject"]
	if !found {
		return Locator{}, false
	}
	var loc Locator
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Locator{}, false
	}
	return loc, true
}

// NodeType returns the qualified type of the subject node, or "" when unknown.
func (r *Report) NodeType() string {
	loc, ok := r.SubjectLocator()
	if !ok {
		return ""
	}
	return loc.Result.Type
}

// AttrName returns the subject property name, or "" when the report names no property.
func (r *Report) AttrName() string {
	for _, key := range []string{"property", "prop"} {
		raw, ok := r.Details[key]
		if !ok {
			continue
		}
		var prop Property
		if err := json.Unmarshal(raw, &prop); err == nil {
			return prop.Name
		}
	}
	return ""
}

// IssueKey returns "Type.attr" with the simple type name, used to match explain requests.
func (r *Report) IssueKey() string {
	return SimpleTypeName(r.NodeType()) + "." + r.AttrName()
}

// SetDetail replaces one detail entry. The fingerprint is recomputed.
func (r *Report) SetDetail(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		encodingPanic("report detail " + key)
	}
	r.Details[key] = b
	r.init()
}

// NewPropertyReport creates a report of type t about lp with the standard message and the
// subject and property details, plus extra.
func NewPropertyReport(t ReportType, lp LocatedProperty, extra map[string]any) *Report {
	details := map[string]any{
		"subject":  lp.Locator(),
		"property": lp.Property(),
	}
	for k, v := range extra {
		details[k] = v
	}
	msg, ok := reportMessages[t]
	if !ok {
		msg = "The value for '%s.%s' is affected by " + string(t)
	}
	return newReport(t, fmt.Sprintf(msg, SimpleTypeName(lp.NodeType()), lp.Name()), details)
}

// NewPropertyValueDiff reports that evaluating steps before lp changes its value.
func NewPropertyValueDiff(lp LocatedProperty, fresh EvaluatedValue, steps []LocatedProperty, after EvaluatedValue) *Report {
	if steps == nil {
		steps = []LocatedProperty{}
	}
	return NewPropertyReport(ReportPropertyValueDiff, lp, map[string]any{
		"freshAstValue":           fresh,
		"intermediateSteps":       steps,
		"valueAfterIntermediates": after,
	})
}

// NewPropertyValueDiffInReferenceRun reports that a search observed a value differing from the
// reference pass.
func NewPropertyValueDiffInReferenceRun(lp LocatedProperty, reference, search, fresh EvaluatedValue) *Report {
	return NewPropertyReport(ReportPropertyValueDiffInReferenceRun, lp, map[string]any{
		"freshAstValue":     fresh,
		"referenceRunValue": reference,
		"randomSearchValue": search,
	})
}

// NewNonIdempotentEquation reports that recomputing lp disagreed with the reference pass.
func NewNonIdempotentEquation(lp LocatedProperty, afterReset bool, reference, repeat, fresh EvaluatedValue) *Report {
	t := ReportNonIdempotentEquation
	if afterReset {
		t = ReportNonIdempotentEquationAfterReset
	}
	return NewPropertyReport(t, lp, map[string]any{
		"freshAstValue":         fresh,
		"referenceRunValue":     reference,
		"repeatInvocationValue": repeat,
	})
}

// NewFlakyProperty reports two differing values of lp. inReference selects the reference-run
// variant.
func NewFlakyProperty(lp LocatedProperty, inReference bool, first, second EvaluatedValue) *Report {
	t := ReportFlakyProperty
	if inReference {
		t = ReportFlakyPropertyInReferenceRun
	}
	return NewPropertyReport(t, lp, map[string]any{
		"exampleValue1": first,
		"exampleValue2": second,
	})
}

// NewUnattachedNode reports that lp returned a node outside the tree.
func NewUnattachedNode(lp LocatedProperty) *Report {
	return NewPropertyReport(ReportUnattachedNode, lp, nil)
}

// NewExceptionThrown reports that lp threw message during evaluation.
func NewExceptionThrown(lp LocatedProperty, message string) *Report {
	return newReport(ReportExceptionThrown,
		fmt.Sprintf("'%s.%s' threw '%s' during evaluation", SimpleTypeName(lp.NodeType()), lp.Name(), message),
		map[string]any{
			"message": message,
			"subject": lp.Locator(),
			"prop":    lp.Property(),
		})
}

// NewFailedFindingNode reports that loc could not be resolved in a fresh object graph.
func NewFailedFindingNode(loc Locator) *Report {
	return newReport(ReportFailedFindingNode,
		fmt.Sprintf("Could not find '%s' in new tree, it was present during reference run", loc.Result.SimpleType()),
		map[string]any{"subject": loc})
}

// CostInfinite is the cost of a finding without a reproduction.
const CostInfinite = int(^uint(0) >> 1)

// PricedReport is a finding with the size of its reproduction. Lower cost wins.
type PricedReport struct {
	Cost    int
	Subject LocatedProperty
	Report  *Report
}

// Perfect reports whether the reproduction needs at most one intermediate step.
func (p PricedReport) Perfect() bool {
	return p.Cost <= 1
}

// ReproductionCost returns the number of intermediate steps recorded for the report. Flaky
// findings cost 0. ok is false when the report carries no reproduction.
func (r *Report) ReproductionCost() (cost int, ok bool) {
	switch r.Type {
	case ReportFlakyProperty, ReportFlakyPropertyInReferenceRun:
		return 0, true
	}
	raw, found := r.Details["intermediateSteps"]
	if !found {
		return 0, false
	}
	var steps []json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil {
		return 0, false
	}
	return len(steps), true
}
