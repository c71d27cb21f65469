package domain

import (
	"strings"
	"time"
)

// Algorithm names a search strategy.
type Algorithm string

const (
	// AlgorithmRandomOrder shuffles the reference order on a fresh parse every cycle.
	AlgorithmRandomOrder Algorithm = "random_order"
	// AlgorithmRIDO evaluates in a random inverse-dependency order.
	AlgorithmRIDO Algorithm = "rido"
	// AlgorithmREC recomputes equations directly on one persistent object graph.
	AlgorithmREC Algorithm = "rec"
	// AlgorithmUserOrder repeats complete reference passes.
	AlgorithmUserOrder Algorithm = "user_order"
)

var algorithmAliases = map[string]Algorithm{
	"random_order":                    AlgorithmRandomOrder,
	"global_random_order":             AlgorithmRandomOrder,
	"rido":                            AlgorithmRIDO,
	"random_inverse_dependency_order": AlgorithmRIDO,
	"depgraphoutgoing_random_order":   AlgorithmRIDO,
	"rec":                             AlgorithmREC,
	"random_equation_check":           AlgorithmREC,
	"spotcheck_random_order":          AlgorithmREC,
	"user_order":                      AlgorithmUserOrder,
	"global_user_order":               AlgorithmUserOrder,
}

// ParseAlgorithm resolves a strategy name or alias. Matching ignores case.
func ParseAlgorithm(name string) (Algorithm, bool) {
	a, ok := algorithmAliases[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// ToolConfig describes how to start one evaluator process.
type ToolConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// String renders the command line.
func (t ToolConfig) String() string {
	return strings.TrimSpace(t.Command + " " + strings.Join(t.Args, " "))
}

// EntryPoint selects the properties evaluated by a reference pass: Property on every node
// matching Predicate, up to LimitNodes nodes (0 means unlimited). Property "*" selects every
// zero-argument property.
type EntryPoint struct {
	Predicate  string `json:"predicate"`
	Property   string `json:"property"`
	LimitNodes int    `json:"limitNodes,omitempty"`
}

// RunConfig is a fully resolved run configuration.
type RunConfig struct {
	// Tools is the configuration list, already repeated RepeatPasses times.
	Tools          []ToolConfig  `json:"tools"`
	EntryPoints    []EntryPoint  `json:"entryPoints"`
	Algorithm      Algorithm     `json:"searchAlgorithm"`
	SearchBudget   time.Duration `json:"searchBudget"`
	RepeatPasses   int           `json:"repeatPasses"`
	CaptureValues  bool          `json:"captureTraceValues"`
	IgnoreCircular bool          `json:"ignoreCircularDependencies"`
	Minimize       bool          `json:"minimize"`
	GraphDir       string        `json:"graphDir,omitempty"`
	Filter         *ReportFilter `json:"filter,omitempty"`
	Source         string        `json:"source,omitempty"`
	AutosaveEvery  time.Duration `json:"-"`
	WorkerID       int           `json:"-"`
	NumWorkers     int           `json:"-"`
}

// EntryNames returns the configured entry property names.
func (c *RunConfig) EntryNames() []string {
	names := make([]string, len(c.EntryPoints))
	for i, ep := range c.EntryPoints {
		names[i] = ep.Property
	}
	return names
}

// ToolBudget returns the search budget of one tool configuration: the total budget spread
// over the configurations a single worker handles. A lone configuration is searched by every
// worker with the plain budget.
func (c *RunConfig) ToolBudget() time.Duration {
	if len(c.Tools) == 0 {
		return c.SearchBudget
	}
	workers := 1
	if len(c.Tools) > 1 {
		workers = max(c.NumWorkers, 1)
	}
	return c.SearchBudget * time.Duration(workers) / time.Duration(len(c.Tools))
}

// Excluded reports whether findings about nodeType.attr are filtered out.
func (c *RunConfig) Excluded(nodeType, attr string) bool {
	return c.Filter != nil && c.Filter.Decide(nodeType, attr) == FilterExclude
}

// ConfigOverrides are command-line values that replace config file keys. Zero values leave
// the file's value in place.
type ConfigOverrides struct {
	ToolCommand  string
	ToolArgs     []string
	Algorithm    string
	RepeatPasses int
	SearchBudget time.Duration
}
