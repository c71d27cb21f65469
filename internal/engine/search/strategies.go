package search

import (
	"context"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/depgraph"
	"go.trai.ch/sidefx/internal/engine/evaluation"
)

// randomOrder shuffles the reference order with a new seed each cycle and replays it on a
// fresh parse.
type randomOrder struct{}

func (randomOrder) cycle(ctx context.Context, s *Searcher) error {
	seed := s.rng.Uint64()
	return s.replay(ctx, seed, s.ref.EvalOrder(seed))
}

func (randomOrder) close(*Searcher) {}

// inverseDependencyOrder replays a random reverse topological order of the dependency graph,
// so every property is evaluated after the properties it reads.
type inverseDependencyOrder struct {
	reported bool
}

func (o *inverseDependencyOrder) cycle(ctx context.Context, s *Searcher) error {
	g := s.ref.Graph()
	nodes, residual := depgraph.InverseDependencyOrder(g, s.rng)
	if len(residual) > 0 && !o.reported {
		o.reported = true
		s.run.Logger.Warn("dependency graph has cycles, skipping: " + depgraph.Describe(g, residual))
	}
	if len(nodes) == 0 {
		s.run.Logger.Warn("dependency graph has no leaf nodes, nothing to search")
		return errExhausted
	}
	seed := s.rng.Uint64()
	order := depgraph.Properties(g, nodes)
	s.ref.StoreOrder(seed, order)
	return s.replay(ctx, seed, order)
}

func (*inverseDependencyOrder) close(*Searcher) {}

// equationCheck recomputes equations directly on one persistent parse, bypassing the
// memoization cache, and compares the result with the reference.
type equationCheck struct {
	sess ports.Session
	// supported caches per type and property whether a compute routine exists.
	supported map[string]bool
}

func (c *equationCheck) cycle(ctx context.Context, s *Searcher) error {
	if c.sess == nil {
		sess, err := s.ev.Open(ctx, s.tool)
		if err != nil {
			return err
		}
		c.sess = sess
	}

	seed := s.rng.Uint64()
	for idx, lp := range s.ref.EvalOrder(seed) {
		key := lp.IssueKey()
		if known, ok := c.supported[key]; (ok && !known) || s.run.Marked(key) {
			continue
		}
		rc, supported, err := evaluation.Recompute(ctx, s.run, c.sess, lp)
		if err != nil {
			return err
		}
		c.supported[key] = supported
		if !supported {
			continue
		}
		if err := c.compare(ctx, s, lp, rc, seed, idx); err != nil {
			return err
		}
	}
	return nil
}

func (c *equationCheck) compare(ctx context.Context, s *Searcher, lp domain.LocatedProperty, rc domain.Recomputation, seed uint64, idx int) error {
	ref, ok, err := s.reference(ctx, lp)
	if err != nil || !ok || ref.Equal(rc.Value) {
		return err
	}
	s.run.Metrics.ObserveDivergence(s.alg)
	if !s.run.MarkOnce(lp.IssueKey()) {
		return nil
	}
	fresh, err := evaluation.Fresh(ctx, s.run, s.ev, s.tool, lp)
	if err != nil {
		return err
	}
	rep := domain.NewNonIdempotentEquation(lp, rc.AfterReset, ref, rc.Value, fresh)
	s.run.Add(rep)
	s.divergences = append(s.divergences, Divergence{
		Subject:   lp,
		Diff:      domain.ReferenceValueDiff{Seed: seed, Index: idx, Value: rc.Value},
		Reference: ref,
		Fresh:     fresh,
		Report:    rep,
	})
	return nil
}

func (c *equationCheck) close(s *Searcher) {
	if c.sess != nil {
		s.closeSession(c.sess)
		c.sess = nil
	}
}

// flakyProbes is the number of fresh parses used to classify a user-order mismatch.
const flakyProbes = 10

// userOrder repeats complete passes in the reference order and compares each with the first.
type userOrder struct{}

func (userOrder) cycle(ctx context.Context, s *Searcher) error {
	sess, err := s.ev.Open(ctx, s.tool)
	if err != nil {
		return err
	}
	defer s.closeSession(sess)

	for _, lp := range s.ref.UnshuffledOrder() {
		if s.run.Marked(lp.IssueKey()) {
			continue
		}
		v, err := evaluation.Evaluate(ctx, s.run, sess, lp)
		if err != nil {
			return err
		}
		ref, ok, err := s.reference(ctx, lp)
		if err != nil {
			return err
		}
		if !ok || ref.Equal(v) {
			continue
		}
		s.run.Metrics.ObserveDivergence(s.alg)
		if !s.run.MarkOnce(lp.IssueKey()) {
			continue
		}
		if err := classifyFlaky(ctx, s, lp, ref, v); err != nil {
			return err
		}
	}
	return nil
}

// classifyFlaky evaluates lp on fresh parses. Disagreeing fresh values make the property
// flaky; otherwise it only differs between reference passes.
func classifyFlaky(ctx context.Context, s *Searcher, lp domain.LocatedProperty, ref, observed domain.EvaluatedValue) error {
	first, err := evaluation.Fresh(ctx, s.run, s.ev, s.tool, lp)
	if err != nil {
		return err
	}
	for range flakyProbes - 1 {
		next, err := evaluation.Fresh(ctx, s.run, s.ev, s.tool, lp)
		if err != nil {
			return err
		}
		if !next.Equal(first) {
			s.run.Add(domain.NewFlakyProperty(lp, false, first, next))
			return nil
		}
	}
	s.run.Add(domain.NewFlakyProperty(lp, true, ref, observed))
	return nil
}

func (userOrder) close(*Searcher) {}
