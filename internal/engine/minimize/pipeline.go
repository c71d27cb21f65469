package minimize

import (
	"context"
	"math/rand/v2"
	"slices"
	"strconv"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/engine/search"
)

const (
	// DefaultSizeCeiling bounds the neighborhoods and prefixes worth replaying.
	DefaultSizeCeiling = 4096
	flakyProbes        = 5
	shuffleTries       = 5
)

// Options tunes the graph-guided search.
type Options struct {
	// MaxDistance is the largest sibling distance tried.
	MaxDistance int
	// ContinueOnEmpty keeps escalating past empty neighborhoods instead of stopping.
	ContinueOnEmpty bool
	SizeCeiling     int
	ShuffleTries    int
	Seed            uint64
}

// GenerateOptions are used after a search run.
func GenerateOptions() Options {
	return Options{MaxDistance: 4, SizeCeiling: DefaultSizeCeiling, ShuffleTries: shuffleTries}
}

// ExplainOptions are used when explaining stored reports.
func ExplainOptions() Options {
	return Options{MaxDistance: 7, ContinueOnEmpty: true, SizeCeiling: DefaultSizeCeiling, ShuffleTries: shuffleTries}
}

// Reproduction is a list of intermediate steps that changes the subject's fresh value.
type Reproduction struct {
	Steps []domain.LocatedProperty
	Fresh domain.EvaluatedValue
	After domain.EvaluatedValue
	// Flaky is set when the subject changes value without any intermediate step.
	Flaky bool
}

// Report converts r into a finding about subject.
func (r *Reproduction) Report(subject domain.LocatedProperty) domain.PricedReport {
	if r.Flaky {
		return domain.PricedReport{Cost: 0, Subject: subject, Report: domain.NewFlakyProperty(subject, false, r.Fresh, r.After)}
	}
	return domain.PricedReport{
		Cost:    len(r.Steps),
		Subject: subject,
		Report:  domain.NewPropertyValueDiff(subject, r.Fresh, r.Steps, r.After),
	}
}

// Pipeline minimizes the divergences found in one tool configuration.
type Pipeline struct {
	db   *ReproDB
	opts Options
	rng  *rand.Rand

	best  map[domain.PropKey]domain.PricedReport
	order []domain.PropKey
	flaky map[domain.PropKey]bool
}

// NewPipeline creates a Pipeline over db.
func NewPipeline(db *ReproDB, opts Options) *Pipeline {
	if opts.SizeCeiling <= 0 {
		opts.SizeCeiling = DefaultSizeCeiling
	}
	if opts.ShuffleTries <= 0 {
		opts.ShuffleTries = shuffleTries
	}
	return &Pipeline{
		db:    db,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xda942042e4dd58b5)),
		best:  make(map[domain.PropKey]domain.PricedReport),
		flaky: make(map[domain.PropKey]bool),
	}
}

// Probe evaluates lp alone on fresh parses. A value differing from the first fresh value
// makes lp flaky; the returned reproduction is nil otherwise.
func (p *Pipeline) Probe(ctx context.Context, lp domain.LocatedProperty) (*Reproduction, domain.EvaluatedValue, error) {
	fresh, err := p.db.Fresh(ctx, lp)
	if err != nil {
		return nil, domain.EvaluatedValue{}, err
	}
	for range flakyProbes {
		v, err := p.db.FreshUncached(ctx, lp)
		if err != nil {
			return nil, fresh, err
		}
		if !v.Equal(fresh) {
			return &Reproduction{Steps: []domain.LocatedProperty{}, Fresh: fresh, After: v, Flaky: true}, fresh, nil
		}
	}
	return nil, fresh, nil
}

// Explain looks for a reproduction of lp: a flakiness probe followed by the graph-guided
// search. It returns nil when none was found.
func (p *Pipeline) Explain(ctx context.Context, lp domain.LocatedProperty) (*Reproduction, error) {
	repro, fresh, err := p.Probe(ctx, lp)
	if err != nil || repro != nil {
		return repro, err
	}
	return p.Neighborhood(ctx, lp, fresh, p.opts.SizeCeiling)
}

// Neighborhood tries siblings of lp at growing distances as intermediate steps. It stops at
// the first neighborhood larger than ceiling or once a single-step reproduction is found,
// and returns the cheapest reproduction.
func (p *Pipeline) Neighborhood(ctx context.Context, lp domain.LocatedProperty, fresh domain.EvaluatedValue, ceiling int) (*Reproduction, error) {
	log := p.db.run.Logger
	var best *Reproduction
	for distance := 1; distance <= p.opts.MaxDistance; distance++ {
		if best != nil && len(best.Steps) <= 1 {
			break
		}
		siblings := p.db.Neighborhood(lp, distance)
		log.Debug("distance " + strconv.Itoa(distance) + ": " + strconv.Itoa(len(siblings)) + " siblings of " + lp.String())
		if len(siblings) > ceiling {
			log.Debug("neighborhood of " + lp.String() + " too large, stopping")
			break
		}
		if len(siblings) == 0 {
			if p.opts.ContinueOnEmpty {
				continue
			}
			break
		}

		repro, err := p.tryNeighborhood(ctx, lp, fresh, siblings)
		if err != nil {
			return best, err
		}
		if repro != nil && (best == nil || len(repro.Steps) < len(best.Steps)) {
			log.Debug("reproduced " + lp.String() + " with " + strconv.Itoa(len(repro.Steps)) + " steps at distance " + strconv.Itoa(distance))
			best = repro
		}
	}
	return best, nil
}

func (p *Pipeline) tryNeighborhood(ctx context.Context, lp domain.LocatedProperty, fresh domain.EvaluatedValue, siblings []domain.LocatedProperty) (*Reproduction, error) {
	if len(siblings) == 1 {
		after, err := p.db.WithIntermediates(ctx, siblings, lp)
		if err != nil || after.Equal(fresh) {
			return nil, err
		}
		return &Reproduction{Steps: siblings, Fresh: fresh, After: after}, nil
	}

	for range p.opts.ShuffleTries {
		order := slices.Clone(siblings)
		p.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		after, err := p.db.WithIntermediates(ctx, order, lp)
		if err != nil {
			return nil, err
		}
		if after.Equal(fresh) {
			continue
		}
		return p.shrink(ctx, lp, fresh, order, after)
	}
	return nil, nil
}

// shrink reduces steps, which are known to reproduce with value after.
func (p *Pipeline) shrink(ctx context.Context, lp domain.LocatedProperty, fresh domain.EvaluatedValue, steps []domain.LocatedProperty, after domain.EvaluatedValue) (*Reproduction, error) {
	reduced, ok, err := Reduce(steps, func(sub []domain.LocatedProperty) (bool, error) {
		return p.db.Reproduces(ctx, sub, lp)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Reproduction{Steps: steps, Fresh: fresh, After: after}, nil
	}
	after, err = p.db.WithIntermediates(ctx, reduced, lp)
	if err != nil {
		return nil, err
	}
	return &Reproduction{Steps: reduced, Fresh: fresh, After: after}, nil
}

// offer keeps r unless a cheaper finding for the same subject is known.
func (p *Pipeline) offer(r domain.PricedReport) {
	key := r.Subject.Key()
	prev, ok := p.best[key]
	if ok && prev.Cost < r.Cost {
		return
	}
	if !ok {
		p.order = append(p.order, key)
	}
	p.best[key] = r
	p.db.run.Logger.Debug("reproduction cost " + costString(r.Cost) + " for " + r.Subject.String())
}

func (p *Pipeline) perfect(lp domain.LocatedProperty) bool {
	r, ok := p.best[lp.Key()]
	return ok && r.Perfect()
}

// Minimize turns divergences into ranked findings. Every subject is probed for flakiness,
// then reproduced from its dependency graph neighborhood, then from the evaluation order
// that exposed it. Subjects without any reproduction keep their original report at infinite
// cost. The result holds one finding per issue.
func (p *Pipeline) Minimize(ctx context.Context, divs []search.Divergence) ([]domain.PricedReport, error) {
	log := p.db.run.Logger
	divs = uniqueDivergences(divs)
	log.Info("minimizing " + strconv.Itoa(len(divs)) + " issues")

	fresh := make(map[domain.PropKey]domain.EvaluatedValue, len(divs))
	for i, d := range divs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Debug("minimizing issue " + strconv.Itoa(i+1) + "/" + strconv.Itoa(len(divs)) + ": " + d.Subject.IssueKey())
		repro, f, err := p.Probe(ctx, d.Subject)
		if err != nil {
			return nil, err
		}
		fresh[d.Subject.Key()] = f
		if repro != nil {
			p.flaky[d.Subject.Key()] = true
			p.offer(repro.Report(d.Subject))
			continue
		}

		ceiling := p.opts.SizeCeiling
		if !f.Equal(d.Diff.Value) && d.Diff.Index < ceiling {
			ceiling = d.Diff.Index
		}
		repro, err = p.Neighborhood(ctx, d.Subject, f, ceiling)
		if err != nil {
			return nil, err
		}
		if repro != nil {
			p.offer(repro.Report(d.Subject))
		}
	}
	log.Info("graph-guided search reproduced " + strconv.Itoa(len(p.best)) + " of " + strconv.Itoa(len(divs)) + " issues")

	for _, d := range divs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.perfect(d.Subject) || p.flaky[d.Subject.Key()] {
			continue
		}
		if err := p.prefix(ctx, d, fresh[d.Subject.Key()]); err != nil {
			return nil, err
		}
	}

	for _, d := range divs {
		if _, ok := p.best[d.Subject.Key()]; !ok {
			p.offer(domain.PricedReport{Cost: domain.CostInfinite, Subject: d.Subject, Report: d.Report})
		}
	}

	priced := make([]domain.PricedReport, 0, len(p.order))
	for _, key := range p.order {
		priced = append(priced, p.best[key])
	}
	LogHistogram(log, priced)
	return Dedup(priced), nil
}

// prefix reduces the evaluation order that preceded the divergence of d.
func (p *Pipeline) prefix(ctx context.Context, d search.Divergence, fresh domain.EvaluatedValue) error {
	log := p.db.run.Logger
	if fresh.Equal(d.Diff.Value) {
		log.Debug("fresh and divergent values of " + d.Subject.String() + " are equal")
		return nil
	}
	order := p.db.Reference().EvalOrder(d.Diff.Seed)
	if d.Diff.Index > len(order) {
		log.Warn("divergence index out of range for " + d.Subject.String())
		return nil
	}
	prefix := slices.Clone(order[:d.Diff.Index])
	if prev, ok := p.best[d.Subject.Key()]; ok && prev.Cost <= len(prefix) {
		// Only a reduced prefix can beat the known reproduction.
		reduced, ok, err := Reduce(prefix, func(sub []domain.LocatedProperty) (bool, error) {
			return p.db.Reproduces(ctx, sub, d.Subject)
		})
		if err != nil || !ok || len(reduced) >= prev.Cost {
			return err
		}
		return p.record(ctx, d.Subject, fresh, reduced)
	}

	reduced, ok, err := Reduce(prefix, func(sub []domain.LocatedProperty) (bool, error) {
		return p.db.Reproduces(ctx, sub, d.Subject)
	})
	if err != nil {
		return err
	}
	steps := reduced
	if !ok {
		hit, err := p.db.Reproduces(ctx, prefix, d.Subject)
		if err != nil || !hit {
			return err
		}
		steps = prefix
	}
	if len(steps) >= p.opts.SizeCeiling {
		log.Debug("prefix reproduction of " + d.Subject.String() + " too large to report")
		return nil
	}
	return p.record(ctx, d.Subject, fresh, steps)
}

func (p *Pipeline) record(ctx context.Context, lp domain.LocatedProperty, fresh domain.EvaluatedValue, steps []domain.LocatedProperty) error {
	after, err := p.db.WithIntermediates(ctx, steps, lp)
	if err != nil {
		return err
	}
	if after.Equal(fresh) {
		return nil
	}
	r := &Reproduction{Steps: steps, Fresh: fresh, After: after}
	p.offer(r.Report(lp))
	return nil
}
