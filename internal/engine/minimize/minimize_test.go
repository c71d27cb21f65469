package minimize_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/sandbox"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/baseline"
	"go.trai.ch/sidefx/internal/engine/evaluation"
	"go.trai.ch/sidefx/internal/engine/minimize"
	"go.trai.ch/sidefx/internal/engine/runctx/runctxtest"
	"go.trai.ch/sidefx/internal/engine/search"
)

var tool = domain.ToolConfig{Command: "fake"}

func prop(name string) domain.LocatedProperty {
	loc := domain.Locator{Result: domain.TypeAtLocation{Type: "calc.Let", Start: 0, End: 1}}
	return domain.NewLocatedProperty(loc, domain.NewProperty(name))
}

func value(s string) domain.EvaluatedValue {
	return domain.NewValue([]domain.Line{domain.PlainLine(s)})
}

// fakeEvaluator models side effects by name: a subject reads "dirty" once any of its
// perturbers was evaluated earlier in the same session. Flaky properties cycle through
// their values across evaluations.
type fakeEvaluator struct {
	perturbs map[string][]string
	flaky    map[string][]string
	calls    map[string]int
	opened   int
}

func newFake() *fakeEvaluator {
	return &fakeEvaluator{
		perturbs: make(map[string][]string),
		flaky:    make(map[string][]string),
		calls:    make(map[string]int),
	}
}

func (e *fakeEvaluator) Open(context.Context, domain.ToolConfig) (ports.Session, error) {
	e.opened++
	return &fakeSession{ev: e, seen: make(map[string]bool)}, nil
}

type fakeSession struct {
	ev   *fakeEvaluator
	seen map[string]bool
}

func (s *fakeSession) Evaluate(_ context.Context, lp domain.LocatedProperty) (domain.Evaluation, error) {
	name := lp.Name()
	defer func() { s.seen[name] = true }()
	if seq, ok := s.ev.flaky[name]; ok {
		v := seq[s.ev.calls[name]%len(seq)]
		s.ev.calls[name]++
		return domain.Evaluation{Value: value(v)}, nil
	}
	for _, p := range s.ev.perturbs[name] {
		if s.seen[p] {
			return domain.Evaluation{Value: value("dirty")}, nil
		}
	}
	return domain.Evaluation{Value: value("clean")}, nil
}

func (s *fakeSession) Trace(ctx context.Context, _ ports.TraceSink, _ bool, fn func(context.Context) error) error {
	return fn(ctx)
}

func (s *fakeSession) Recompute(context.Context, domain.LocatedProperty) (domain.Recomputation, error) {
	return domain.Recomputation{}, domain.ErrNoComputeRoutine
}

func (s *fakeSession) Find(context.Context, domain.EntryPoint) ([]domain.LocatedProperty, error) {
	return nil, nil
}

func (s *fakeSession) InvalidateLocators(context.Context) error { return nil }

func (s *fakeSession) Close() error { return nil }

// graph builds a baseline over the named nodes with edges given as from->to pairs.
func graph(nodes []string, edges ...[2]string) *domain.ReferenceValues {
	g := domain.NewDependencyGraph()
	values := make(map[domain.PropKey]domain.EvaluatedValue)
	order := make([]domain.LocatedProperty, 0, len(nodes))
	idx := make(map[string]int)
	for _, n := range nodes {
		lp := prop(n)
		idx[n] = g.GetOrAdd(lp)
		values[lp.Key()] = value("clean")
		order = append(order, lp)
	}
	for _, e := range edges {
		g.AddEdge(idx[e[0]], idx[e[1]])
	}
	return domain.NewReferenceValues(values, order, g, nil, false)
}

func names(lps []domain.LocatedProperty) []string {
	out := make([]string, len(lps))
	for i, lp := range lps {
		out[i] = lp.Name()
	}
	return out
}

func divergence(ref *domain.ReferenceValues, subject string, prefix ...string) search.Divergence {
	order := make([]domain.LocatedProperty, 0, len(prefix)+1)
	for _, p := range prefix {
		order = append(order, prop(p))
	}
	lp := prop(subject)
	order = append(order, lp)
	const seed = 42
	ref.StoreOrder(seed, order)
	return search.Divergence{
		Subject:   lp,
		Diff:      domain.ReferenceValueDiff{Seed: seed, Index: len(prefix), Value: value("dirty")},
		Reference: value("clean"),
		Fresh:     value("clean"),
		Report:    domain.NewPropertyValueDiffInReferenceRun(lp, value("clean"), value("dirty"), value("clean")),
	}
}

func steps(t *testing.T, r *domain.Report) []string {
	t.Helper()
	var raw []struct {
		Property domain.Property `json:"property"`
	}
	require.Contains(t, r.Details, "intermediateSteps")
	require.NoError(t, json.Unmarshal(r.Details["intermediateSteps"], &raw))
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = s.Property.Name
	}
	return out
}

func TestPipeline_FlakySubjectCostsZero(t *testing.T) {
	ev := newFake()
	ev.flaky["s"] = []string{"V", "V", "W", "V", "V"}
	ref := graph([]string{"s"})
	run := runctxtest.New(t, nil)

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	priced, err := p.Minimize(context.Background(), []search.Divergence{divergence(ref, "s")})
	require.NoError(t, err)

	require.Len(t, priced, 1)
	assert.Equal(t, 0, priced[0].Cost)
	assert.Equal(t, domain.ReportFlakyProperty, priced[0].Report.Type)
	assert.Equal(t, 3, ev.opened, "no search after the probe found the subject flaky")
}

func TestPipeline_SingleSibling(t *testing.T) {
	ev := newFake()
	ev.perturbs["s"] = []string{"x"}
	ref := graph([]string{"p", "s", "x"}, [2]string{"p", "s"}, [2]string{"p", "x"})
	run := runctxtest.New(t, nil)

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	priced, err := p.Minimize(context.Background(), []search.Divergence{divergence(ref, "s", "p", "x")})
	require.NoError(t, err)

	require.Len(t, priced, 1)
	assert.Equal(t, 1, priced[0].Cost)
	assert.Equal(t, domain.ReportPropertyValueDiff, priced[0].Report.Type)
	assert.Equal(t, []string{"x"}, steps(t, priced[0].Report))
	cost, ok := priced[0].Report.ReproductionCost()
	assert.True(t, ok)
	assert.Equal(t, 1, cost)
}

func TestPipeline_ReducesShuffledNeighborhood(t *testing.T) {
	ev := newFake()
	ev.perturbs["s"] = []string{"x3"}
	nodes := []string{"p", "s", "x1", "x2", "x3", "x4"}
	var edges [][2]string
	for _, n := range nodes[1:] {
		edges = append(edges, [2]string{"p", n})
	}
	ref := graph(nodes, edges...)
	run := runctxtest.New(t, nil)

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	repro, err := p.Explain(context.Background(), prop("s"))
	require.NoError(t, err)
	require.NotNil(t, repro)

	assert.False(t, repro.Flaky)
	assert.Equal(t, []string{"x3"}, names(repro.Steps))
	assert.Equal(t, "clean", repro.Fresh.String())
	assert.Equal(t, "dirty", repro.After.String())
}

func TestPipeline_PrefixFallback(t *testing.T) {
	ev := newFake()
	ev.perturbs["s"] = []string{"far"}
	// "far" is not connected to s, so only the observed order can explain the divergence.
	ref := graph([]string{"p", "s", "far", "a", "b"}, [2]string{"p", "s"})
	run := runctxtest.New(t, nil)

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	priced, err := p.Minimize(context.Background(), []search.Divergence{divergence(ref, "s", "a", "b", "far", "p")})
	require.NoError(t, err)

	require.Len(t, priced, 1)
	assert.Equal(t, 1, priced[0].Cost)
	assert.Equal(t, []string{"far"}, steps(t, priced[0].Report))
}

func TestPipeline_UnexplainedKeepsOriginalReport(t *testing.T) {
	ev := newFake()
	ref := graph([]string{"p", "s"}, [2]string{"p", "s"})
	run := runctxtest.New(t, nil)
	d := divergence(ref, "s", "p")

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	priced, err := p.Minimize(context.Background(), []search.Divergence{d})
	require.NoError(t, err)

	require.Len(t, priced, 1)
	assert.Equal(t, domain.CostInfinite, priced[0].Cost)
	assert.Same(t, d.Report, priced[0].Report)
}

func TestPipeline_SandboxPrefix(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run := runctxtest.New(t, &domain.RunConfig{
		Tools:          []domain.ToolConfig{tool},
		EntryPoints:    []domain.EntryPoint{{Predicate: "this<:Let", Property: "label"}},
		CaptureValues:  true,
		IgnoreCircular: true,
	})
	ctx := context.Background()
	ref, err := baseline.NewRecorder(nil).Establish(ctx, run, ev, tool)
	require.NoError(t, err)

	var uids, labels []domain.LocatedProperty
	for _, lp := range ref.UnshuffledOrder() {
		switch lp.Name() {
		case "uid":
			uids = append(uids, lp)
		case "label":
			labels = append(labels, lp)
		}
	}
	require.Len(t, uids, 5)
	subject := uids[2]
	prefix := []domain.LocatedProperty{labels[0]}
	divergent, err := evaluation.Sequence(ctx, run, ev, tool, prefix, subject)
	require.NoError(t, err)
	refValue, _ := ref.Value(subject)
	require.False(t, refValue.Equal(divergent))

	const seed = 99
	ref.StoreOrder(seed, append(prefix, subject))
	d := search.Divergence{
		Subject:   subject,
		Diff:      domain.ReferenceValueDiff{Seed: seed, Index: 1, Value: divergent},
		Reference: refValue,
		Report:    domain.NewPropertyValueDiffInReferenceRun(subject, refValue, divergent, refValue),
	}

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	priced, err := p.Minimize(ctx, []search.Divergence{d})
	require.NoError(t, err)

	require.Len(t, priced, 1)
	assert.Equal(t, 1, priced[0].Cost)
	assert.Equal(t, []string{"label"}, steps(t, priced[0].Report))
}

func TestPipeline_StopsOnCancel(t *testing.T) {
	ev := newFake()
	ref := graph([]string{"s"})
	run := runctxtest.New(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := minimize.NewPipeline(minimize.NewReproDB(run, ev, tool, ref), minimize.GenerateOptions())
	_, err := p.Minimize(ctx, []search.Divergence{divergence(ref, "s")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ev.opened)
}

func TestDedup(t *testing.T) {
	a := domain.NewLocatedProperty(
		domain.Locator{Result: domain.TypeAtLocation{Type: "calc.Let", Start: 0, End: 1}}, domain.NewProperty("uid"))
	b := domain.NewLocatedProperty(
		domain.Locator{Result: domain.TypeAtLocation{Type: "calc.Let", Start: 5, End: 9}}, domain.NewProperty("uid"))
	other := domain.NewLocatedProperty(
		domain.Locator{Result: domain.TypeAtLocation{Type: "calc.Print", Start: 0, End: 1}}, domain.NewProperty("value"))
	rep := func(lp domain.LocatedProperty) *domain.Report { return domain.NewUnattachedNode(lp) }

	got := minimize.Dedup([]domain.PricedReport{
		{Cost: 3, Subject: a, Report: rep(a)},
		{Cost: domain.CostInfinite, Subject: other, Report: rep(other)},
		{Cost: 1, Subject: b, Report: rep(b)},
		{Cost: 7, Subject: b, Report: rep(b)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Cost)
	assert.True(t, got[0].Subject.Equal(b))
	assert.Equal(t, domain.CostInfinite, got[1].Cost)
}

func TestHistogram(t *testing.T) {
	lp := prop("s")
	got := minimize.Histogram([]domain.PricedReport{
		{Cost: domain.CostInfinite, Subject: lp},
		{Cost: 2, Subject: lp},
		{Cost: 0, Subject: lp},
		{Cost: 2, Subject: lp},
	})
	assert.Empty(t, cmp.Diff([]minimize.Bucket{{Cost: 0, Count: 1}, {Cost: 2, Count: 2}, {Cost: domain.CostInfinite, Count: 1}}, got))
}

func TestReduce(t *testing.T) {
	contains := func(want ...string) func([]string) (bool, error) {
		return func(sub []string) (bool, error) {
			for _, w := range want {
				found := false
				for _, s := range sub {
					found = found || s == w
				}
				if !found {
					return false, nil
				}
			}
			return true, nil
		}
	}

	tests := []struct {
		name  string
		steps []string
		pred  func([]string) (bool, error)
		want  []string
		ok    bool
	}{
		{name: "adjacent pair", steps: []string{"A", "B", "C", "D"}, pred: contains("C", "D"), want: []string{"C", "D"}, ok: true},
		{name: "single element", steps: []string{"A", "B", "C", "D", "E", "F", "G", "H"}, pred: contains("F"), want: []string{"F"}, ok: true},
		{name: "short list window", steps: []string{"A", "B", "C"}, pred: contains("B"), want: []string{"B"}, ok: true},
		{name: "empty list reproduces", steps: []string{"A"}, pred: contains(), want: []string{}, ok: true},
		{name: "nothing to drop", steps: []string{"A"}, pred: contains("A")},
		{name: "empty input", steps: nil, pred: contains()},
		{name: "non-adjacent causes are missed", steps: []string{"A", "B", "C", "D"}, pred: contains("A", "D")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := minimize.Reduce(tt.steps, tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	boom := errors.New("boom")
	_, _, err := minimize.Reduce([]string{"A", "B", "C", "D"}, func([]string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSiblings(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []string
		edges    [][2]string
		origin   string
		distance int
		walk     []string
		siblings []string
	}{
		{
			name:     "single parent with further ancestors",
			nodes:    []string{"g", "a", "n"},
			edges:    [][2]string{{"g", "a"}, {"a", "n"}},
			origin:   "n",
			distance: 1,
			walk:     []string{"a"},
			siblings: []string{"a"},
		},
		{
			name:     "root yields itself",
			nodes:    []string{"r", "c"},
			edges:    [][2]string{{"r", "c"}},
			origin:   "r",
			distance: 1,
			walk:     []string{"r"},
			siblings: []string{},
		},
		{
			name:     "other children of the parent",
			nodes:    []string{"p", "n", "m"},
			edges:    [][2]string{{"p", "n"}, {"p", "m"}},
			origin:   "n",
			distance: 1,
			walk:     []string{"m"},
			siblings: []string{"m"},
		},
		{
			name:     "diamond",
			nodes:    []string{"t", "l", "r", "b"},
			edges:    [][2]string{{"t", "l"}, {"t", "r"}, {"l", "b"}, {"r", "b"}},
			origin:   "b",
			distance: 1,
			walk:     []string{"l", "r"},
			siblings: []string{"l", "r"},
		},
		{
			name:     "diamond at distance two",
			nodes:    []string{"t", "l", "r", "b"},
			edges:    [][2]string{{"t", "l"}, {"t", "r"}, {"l", "b"}, {"r", "b"}},
			origin:   "b",
			distance: 2,
			walk:     []string{"l", "r"},
			siblings: []string{"l", "r"},
		},
		{
			name:     "revisited with more budget",
			nodes:    []string{"o", "a", "p"},
			edges:    [][2]string{{"a", "o"}, {"p", "a"}, {"p", "o"}},
			origin:   "o",
			distance: 2,
			walk:     []string{"a", "p"},
			siblings: []string{"a", "p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph(tt.nodes, tt.edges...).Graph()
			origin := -1
			for i, lp := range g.All() {
				if lp.Name() == tt.origin {
					origin = i
				}
			}
			require.GreaterOrEqual(t, origin, 0)

			nodeNames := func(ids []int) []string {
				out := make([]string, 0, len(ids))
				for _, id := range ids {
					out = append(out, g.Identity(id).Name())
				}
				return out
			}
			assert.Equal(t, tt.walk, nodeNames(minimize.Walk(g, origin, tt.distance)))
			assert.Equal(t, tt.siblings, nodeNames(minimize.Siblings(g, origin, tt.distance)))
		})
	}
}

func TestWalk_OutOfRange(t *testing.T) {
	g := graph([]string{"a", "b"}, [2]string{"a", "b"}).Graph()
	assert.Nil(t, minimize.Walk(g, 1, 0))
	assert.Nil(t, minimize.Walk(g, 5, 1))
	assert.Empty(t, minimize.Siblings(g, 1, 0))
}
