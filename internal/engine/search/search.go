// Package search replays property evaluation in varying orders against a reference pass and
// reports values that diverge from it.
package search

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/evaluation"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.trai.ch/zerr"
)

// Divergence is the first observed divergence of one logical issue.
type Divergence struct {
	Subject domain.LocatedProperty
	// Diff locates the divergent value in the order stored under Diff.Seed.
	Diff      domain.ReferenceValueDiff
	Reference domain.EvaluatedValue
	Fresh     domain.EvaluatedValue
	Report    *domain.Report
}

// errExhausted ends a search early without error when a strategy has nothing to evaluate.
var errExhausted = errors.New("nothing left to search")

// strategy produces and evaluates the candidates of one cycle.
type strategy interface {
	cycle(ctx context.Context, s *Searcher) error
	close(s *Searcher)
}

// Searcher runs one search algorithm against one reference pass.
type Searcher struct {
	run  *runctx.RunContext
	ev   ports.Evaluator
	tool domain.ToolConfig
	ref  *domain.ReferenceValues
	rng  *rand.Rand
	alg  domain.Algorithm

	cycles      int
	freshRefs   map[domain.PropKey]domain.EvaluatedValue
	divergences []Divergence
}

// New creates a Searcher. seed makes the cycle orders reproducible.
func New(run *runctx.RunContext, ev ports.Evaluator, tool domain.ToolConfig, ref *domain.ReferenceValues, seed uint64) *Searcher {
	return &Searcher{
		run:       run,
		ev:        ev,
		tool:      tool,
		ref:       ref,
		rng:       rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		freshRefs: make(map[domain.PropKey]domain.EvaluatedValue),
	}
}

func newStrategy(alg domain.Algorithm) (strategy, error) {
	switch alg {
	case domain.AlgorithmRandomOrder:
		return &randomOrder{}, nil
	case domain.AlgorithmRIDO:
		return &inverseDependencyOrder{}, nil
	case domain.AlgorithmREC:
		return &equationCheck{supported: make(map[string]bool)}, nil
	case domain.AlgorithmUserOrder:
		return &userOrder{}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownAlgorithm, "cannot search"), "algorithm", string(alg))
	}
}

// Run runs cycles of alg until budget has elapsed. The budget is checked between cycles
// only, so a started cycle always completes. Findings are autosaved between cycles.
func (s *Searcher) Run(ctx context.Context, alg domain.Algorithm, budget time.Duration) ([]Divergence, error) {
	strat, err := newStrategy(alg)
	if err != nil {
		return nil, err
	}
	s.alg = alg
	defer strat.close(s)

	start := time.Now()
	for time.Since(start) < budget {
		if err := ctx.Err(); err != nil {
			return s.divergences, err
		}
		s.cycles++
		if shouldLogCycle(s.cycles) {
			s.run.Logger.Info("search cycle " + strconv.Itoa(s.cycles) + " (" + string(alg) + "), " +
				strconv.Itoa(len(s.divergences)) + " divergences after " + time.Since(start).Round(time.Millisecond).String())
		}
		cycleStart := time.Now()
		if err := strat.cycle(ctx, s); err != nil {
			if errors.Is(err, errExhausted) {
				break
			}
			return s.divergences, err
		}
		s.run.Metrics.ObserveCycle(alg, time.Since(cycleStart))
		s.run.AutosaveIfDue(ctx)
	}
	s.run.Logger.Debug("search finished after " + strconv.Itoa(s.cycles) + " cycles")
	return s.divergences, nil
}

// Cycles returns the number of cycles started.
func (s *Searcher) Cycles() int {
	return s.cycles
}

func shouldLogCycle(n int) bool {
	return n <= 10 || n == 32 || n%64 == 0
}

// reference returns the baseline value of lp. Structure-only baselines are completed on
// demand with a fresh evaluation.
func (s *Searcher) reference(ctx context.Context, lp domain.LocatedProperty) (domain.EvaluatedValue, bool, error) {
	v, ok := s.ref.Value(lp)
	if !ok {
		return domain.EvaluatedValue{}, false, nil
	}
	if !v.IsDummy() {
		return v, true, nil
	}
	if cached, ok := s.freshRefs[lp.Key()]; ok {
		return cached, true, nil
	}
	fresh, err := evaluation.Fresh(ctx, s.run, s.ev, s.tool, lp)
	if err != nil {
		return domain.EvaluatedValue{}, false, err
	}
	s.freshRefs[lp.Key()] = fresh
	return fresh, true, nil
}

// replay evaluates order on a fresh session and compares every value with the reference.
func (s *Searcher) replay(ctx context.Context, seed uint64, order []domain.LocatedProperty) error {
	sess, err := s.ev.Open(ctx, s.tool)
	if err != nil {
		return err
	}
	defer s.closeSession(sess)

	for idx, lp := range order {
		v, err := evaluation.Evaluate(ctx, s.run, sess, lp)
		if err != nil {
			return err
		}
		if err := s.compare(ctx, lp, v, seed, idx); err != nil {
			return err
		}
	}
	return nil
}

// compare files a PROPERTY_VALUE_DIFF_IN_REFERENCE_RUN report the first time lp's issue
// diverges.
func (s *Searcher) compare(ctx context.Context, lp domain.LocatedProperty, v domain.EvaluatedValue, seed uint64, idx int) error {
	if s.run.Marked(lp.IssueKey()) {
		return nil
	}
	ref, ok, err := s.reference(ctx, lp)
	if err != nil || !ok {
		if !ok && err == nil {
			s.run.Logger.Debug("no reference value for " + lp.String())
		}
		return err
	}
	if ref.Equal(v) {
		return nil
	}
	s.run.Metrics.ObserveDivergence(s.alg)
	if !s.run.MarkOnce(lp.IssueKey()) {
		return nil
	}
	fresh, err := evaluation.Fresh(ctx, s.run, s.ev, s.tool, lp)
	if err != nil {
		return err
	}
	rep := domain.NewPropertyValueDiffInReferenceRun(lp, ref, v, fresh)
	s.run.Add(rep)
	s.divergences = append(s.divergences, Divergence{
		Subject:   lp,
		Diff:      domain.ReferenceValueDiff{Seed: seed, Index: idx, Value: v},
		Reference: ref,
		Fresh:     fresh,
		Report:    rep,
	})
	return nil
}

func (s *Searcher) closeSession(sess ports.Session) {
	if err := sess.Close(); err != nil {
		s.run.Logger.Warn("failed to close session: " + err.Error())
	}
}
