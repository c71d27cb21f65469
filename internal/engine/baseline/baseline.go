// Package baseline records reference passes: every configured entry point evaluated once
// under tracing, producing the baseline values, their order and the dependency graph.
package baseline

import (
	"context"
	"strconv"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/depgraph"
	"go.trai.ch/sidefx/internal/engine/evaluation"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.trai.ch/zerr"
)

// Recorder runs reference passes.
type Recorder struct {
	graphs ports.GraphStore
}

// NewRecorder creates a Recorder. Graphs are persisted through graphs when the run config
// names a graph directory.
func NewRecorder(graphs ports.GraphStore) *Recorder {
	return &Recorder{graphs: graphs}
}

// Entries resolves the configured entry points on s.
func Entries(ctx context.Context, run *runctx.RunContext, s ports.Session) ([]domain.LocatedProperty, error) {
	var entries []domain.LocatedProperty
	for _, ep := range run.Config.EntryPoints {
		props, err := s.Find(ctx, ep)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrReferencePassFailed, err.Error()), "entry", ep.Predicate+"."+ep.Property)
		}
		entries = append(entries, props...)
	}
	return entries, nil
}

// Record evaluates the entry points on s under tracing. The returned values are flagged when
// any entry point threw; callers should not search against such a baseline.
func (r *Recorder) Record(ctx context.Context, run *runctx.RunContext, s ports.Session) (*domain.ReferenceValues, error) {
	entries, err := Entries(ctx, run, s)
	if err != nil {
		return nil, err
	}

	cfg := run.Config
	builder := depgraph.NewBuilder(run.Logger, cfg.IgnoreCircular, cfg.CaptureValues)
	var anyThrew bool
	err = s.Trace(ctx, builder, cfg.CaptureValues, func(ctx context.Context) error {
		for _, lp := range entries {
			v, err := evaluation.Evaluate(ctx, run, s, lp)
			if err != nil {
				return err
			}
			if v.IsException() {
				anyThrew = true
				builder.ResetStack()
			}
			builder.Record(lp, v)
		}
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(domain.ErrReferencePassFailed, err.Error())
	}

	res := builder.Finish()
	depgraph.LogStats(run.Logger, res.Graph)
	run.Logger.Debug("reference pass recorded " + strconv.Itoa(len(res.Order)) + " values from " +
		strconv.Itoa(len(entries)) + " entry points")

	if cfg.GraphDir != "" && r.graphs != nil {
		if err := r.graphs.Save(cfg.GraphDir, run.Tool(), res.Graph); err != nil {
			run.Logger.Warn("failed to persist dependency graph: " + err.Error())
		}
	}
	return domain.NewReferenceValues(res.Values, res.Order, res.Graph, cfg.EntryNames(), anyThrew), nil
}

// Establish opens a fresh session for tool and records a reference pass on it. The session is
// closed again.
func (r *Recorder) Establish(ctx context.Context, run *runctx.RunContext, ev ports.Evaluator, tool domain.ToolConfig) (*domain.ReferenceValues, error) {
	s, err := ev.Open(ctx, tool)
	if err != nil {
		return nil, zerr.Wrap(domain.ErrReferencePassFailed, err.Error())
	}
	defer func() {
		if err := s.Close(); err != nil {
			run.Logger.Warn("failed to close session: " + err.Error())
		}
	}()
	return r.Record(ctx, run, s)
}
