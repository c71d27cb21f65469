package search_test

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/sandbox"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/core/ports/mocks"
	"go.trai.ch/sidefx/internal/engine/baseline"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.trai.ch/sidefx/internal/engine/runctx/runctxtest"
	"go.trai.ch/sidefx/internal/engine/search"
	"go.uber.org/mock/gomock"
)

var tool = domain.ToolConfig{Command: "sandbox"}

func setup(t *testing.T, ev ports.Evaluator, entries ...domain.EntryPoint) (*runctx.RunContext, *domain.ReferenceValues) {
	t.Helper()
	run := runctxtest.New(t, &domain.RunConfig{
		Tools:          []domain.ToolConfig{tool},
		EntryPoints:    entries,
		CaptureValues:  true,
		IgnoreCircular: true,
	})
	ref, err := baseline.NewRecorder(nil).Establish(context.Background(), run, ev, tool)
	require.NoError(t, err)
	require.False(t, ref.AnyEntryPropThrew)
	return run, ref
}

var labels = domain.EntryPoint{Predicate: "this<:Let", Property: "label"}

func reportsOf(run *runctx.RunContext, typ domain.ReportType) map[string]*domain.Report {
	out := make(map[string]*domain.Report)
	for _, rep := range run.Reports() {
		if rep.Type == typ {
			out[rep.IssueKey()] = rep
		}
	}
	return out
}

func assertLocatable(t *testing.T, ref *domain.ReferenceValues, divs []search.Divergence) {
	t.Helper()
	seen := make(map[string]bool)
	for _, d := range divs {
		key := d.Subject.IssueKey()
		assert.False(t, seen[key], "issue %s reported twice", key)
		seen[key] = true

		order := ref.EvalOrder(d.Diff.Seed)
		require.Less(t, d.Diff.Index, len(order))
		assert.True(t, order[d.Diff.Index].Equal(d.Subject), "divergence index points at its subject")
		assert.False(t, d.Reference.Equal(d.Diff.Value))
	}
}

func TestSearcher_RandomOrderFindsOrderDependentValues(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run, ref := setup(t, ev, labels)

	s := search.New(run, ev, tool, ref, 7)
	divs, err := s.Run(context.Background(), domain.AlgorithmRandomOrder, 200*time.Millisecond)
	require.NoError(t, err)

	assert.Positive(t, s.Cycles())
	require.NotEmpty(t, divs)
	assertLocatable(t, ref, divs)

	found := reportsOf(run, domain.ReportPropertyValueDiffInReferenceRun)
	assert.Contains(t, found, "Let.uid")
	assert.Len(t, found, len(divs))
}

func TestSearcher_InverseDependencyOrder(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run, ref := setup(t, ev, labels)

	divs, err := search.New(run, ev, tool, ref, 11).Run(context.Background(), domain.AlgorithmRIDO, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, divs)
	assertLocatable(t, ref, divs)

	for _, d := range divs {
		order := ref.EvalOrder(d.Diff.Seed)
		pos := make(map[domain.PropKey]int, len(order))
		for i, lp := range order {
			pos[lp.Key()] = i
		}
		for _, lp := range order {
			if lp.Name() != "label" {
				continue
			}
			uid := domain.NewLocatedProperty(lp.Locator(), domain.NewProperty("uid"))
			assert.Less(t, pos[uid.Key()], pos[lp.Key()], "uid is evaluated before the label reading it")
		}
	}
}

func TestSearcher_InverseDependencyOrderWithoutLeaves(t *testing.T) {
	run := runctxtest.New(t, &domain.RunConfig{Tools: []domain.ToolConfig{tool}})
	g := domain.NewDependencyGraph()
	values := make(map[domain.PropKey]domain.EvaluatedValue)
	var order []domain.LocatedProperty
	for _, name := range []string{"a", "b"} {
		lp := domain.NewLocatedProperty(domain.Locator{Result: domain.TypeAtLocation{Type: sandbox.TypeLet}}, domain.NewProperty(name))
		g.GetOrAdd(lp)
		values[lp.Key()] = domain.NewValue([]domain.Line{domain.PlainLine("1")})
		order = append(order, lp)
	}
	g.AddEdge(0, 1)
	g.AddEdge(1, 0)
	ref := domain.NewReferenceValues(values, order, g, nil, false)

	s := search.New(run, sandbox.NewEvaluator(), tool, ref, 5)
	divs, err := s.Run(context.Background(), domain.AlgorithmRIDO, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, divs)
	assert.Equal(t, 1, s.Cycles(), "the search stops once nothing can be ordered")
	assert.Empty(t, run.Reports())
}

func TestSearcher_RecomputeFindsResettableCounter(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run, ref := setup(t, ev, labels)

	divs, err := search.New(run, ev, tool, ref, 3).Run(context.Background(), domain.AlgorithmREC, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, divs)

	found := reportsOf(run, domain.ReportNonIdempotentEquationAfterReset)
	assert.Contains(t, found, "Let.uid")
}

func TestSearcher_UserOrder(t *testing.T) {
	t.Run("deterministic program", func(t *testing.T) {
		ev := sandbox.NewEvaluator()
		run, ref := setup(t, ev, labels, domain.EntryPoint{Predicate: "this<:Program", Property: "stamp"})

		divs, err := search.New(run, ev, tool, ref, 1).Run(context.Background(), domain.AlgorithmUserOrder, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, divs)
		assert.Empty(t, run.Reports())
	})

	t.Run("state shared between parses", func(t *testing.T) {
		ev := sandbox.NewEvaluator(sandbox.WithSharedState())
		run, ref := setup(t, ev, domain.EntryPoint{Predicate: "this<:Program", Property: "stamp"})

		_, err := search.New(run, ev, tool, ref, 1).Run(context.Background(), domain.AlgorithmUserOrder, 50*time.Millisecond)
		require.NoError(t, err)

		found := reportsOf(run, domain.ReportFlakyProperty)
		require.Contains(t, found, "Program.stamp")
		assert.Len(t, run.Reports(), 1, "the issue is classified once")
	})
}

func TestSearcher_UnknownAlgorithm(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run, ref := setup(t, ev, labels)

	_, err := search.New(run, ev, tool, ref, 1).Run(context.Background(), domain.Algorithm("bogus"), time.Second)
	assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)
}

func TestSearcher_BudgetIsCheckedBetweenCycles(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lp := domain.NewLocatedProperty(
			domain.Locator{Result: domain.TypeAtLocation{Type: "calc.Let", Start: 0, End: 1}},
			domain.NewProperty("value"),
		)
		value := domain.NewValue([]domain.Line{domain.PlainLine("3")})
		ref := domain.NewReferenceValues(
			map[domain.PropKey]domain.EvaluatedValue{lp.Key(): value},
			[]domain.LocatedProperty{lp}, nil, []string{"value"}, false,
		)

		sess := mocks.NewMockSession(ctrl)
		sess.EXPECT().Evaluate(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, domain.LocatedProperty) (domain.Evaluation, error) {
				time.Sleep(400 * time.Millisecond)
				return domain.Evaluation{Value: value}, nil
			}).Times(3)
		sess.EXPECT().Close().Return(nil).Times(3)
		ev := mocks.NewMockEvaluator(ctrl)
		ev.EXPECT().Open(gomock.Any(), tool).Return(sess, nil).Times(3)

		run := runctxtest.New(t, nil)
		start := time.Now()
		s := search.New(run, ev, tool, ref, 1)
		divs, err := s.Run(context.Background(), domain.AlgorithmRandomOrder, time.Second)
		require.NoError(t, err)

		assert.Empty(t, divs)
		assert.Equal(t, 3, s.Cycles())
		assert.Equal(t, 1200*time.Millisecond, time.Since(start), "the last cycle runs past the budget")
	})
}

func TestSearcher_StopsOnCancel(t *testing.T) {
	ev := sandbox.NewEvaluator()
	run, ref := setup(t, ev, labels)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := search.New(run, ev, tool, ref, 1)
	_, err := s.Run(ctx, domain.AlgorithmRandomOrder, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Cycles())
}
