package minimize

import (
	"context"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/depgraph"
	"go.trai.ch/sidefx/internal/engine/evaluation"
	"go.trai.ch/sidefx/internal/engine/runctx"
)

// ReproDB evaluates subjects on fresh parses for one tool configuration and caches the
// first fresh value of each.
type ReproDB struct {
	run  *runctx.RunContext
	ev   ports.Evaluator
	tool domain.ToolConfig
	ref  *domain.ReferenceValues

	fresh map[domain.PropKey]domain.EvaluatedValue
}

// NewReproDB creates a ReproDB over the baseline ref.
func NewReproDB(run *runctx.RunContext, ev ports.Evaluator, tool domain.ToolConfig, ref *domain.ReferenceValues) *ReproDB {
	return &ReproDB{
		run:   run,
		ev:    ev,
		tool:  tool,
		ref:   ref,
		fresh: make(map[domain.PropKey]domain.EvaluatedValue),
	}
}

// Reference returns the baseline the database was built on.
func (db *ReproDB) Reference() *domain.ReferenceValues {
	return db.ref
}

// Fresh returns the value of lp on a fresh parse. The first result is cached.
func (db *ReproDB) Fresh(ctx context.Context, lp domain.LocatedProperty) (domain.EvaluatedValue, error) {
	if v, ok := db.fresh[lp.Key()]; ok {
		return v, nil
	}
	v, err := db.FreshUncached(ctx, lp)
	if err != nil {
		return domain.EvaluatedValue{}, err
	}
	db.fresh[lp.Key()] = v
	return v, nil
}

// FreshUncached evaluates lp on a new fresh parse.
func (db *ReproDB) FreshUncached(ctx context.Context, lp domain.LocatedProperty) (domain.EvaluatedValue, error) {
	return evaluation.Fresh(ctx, db.run, db.ev, db.tool, lp)
}

// WithIntermediates evaluates steps and then lp on one fresh parse.
func (db *ReproDB) WithIntermediates(ctx context.Context, steps []domain.LocatedProperty, lp domain.LocatedProperty) (domain.EvaluatedValue, error) {
	return evaluation.Sequence(ctx, db.run, db.ev, db.tool, steps, lp)
}

// Reproduces reports whether evaluating steps first changes lp's fresh value.
func (db *ReproDB) Reproduces(ctx context.Context, steps []domain.LocatedProperty, lp domain.LocatedProperty) (bool, error) {
	fresh, err := db.Fresh(ctx, lp)
	if err != nil {
		return false, err
	}
	after, err := db.WithIntermediates(ctx, steps, lp)
	if err != nil {
		return false, err
	}
	return !after.Equal(fresh), nil
}

// Neighborhood returns the siblings of lp at distance in the baseline dependency graph.
func (db *ReproDB) Neighborhood(lp domain.LocatedProperty, distance int) []domain.LocatedProperty {
	g := db.ref.Graph()
	node, ok := g.Lookup(lp)
	if !ok {
		db.run.Logger.Warn("missing dependency graph node for " + lp.String())
		return nil
	}
	return depgraph.Properties(g, Siblings(g, node, distance))
}
