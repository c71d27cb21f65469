package app

import (
	"context"
	"strconv"
	"strings"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/minimize"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.trai.ch/zerr"
)

// ExplainOptions configuration for the Explain method.
type ExplainOptions struct {
	ReportPath string
	// ConfigPath overrides the configuration embedded in the report file.
	ConfigPath string
	// Names selects issues whose "Type.attr" key ends with one of them. Empty selects all.
	Names []string
	Seed  uint64
}

func (o ExplainOptions) wants(key string) bool {
	if len(o.Names) == 0 {
		return true
	}
	for _, n := range o.Names {
		if strings.HasSuffix(key, n) {
			return true
		}
	}
	return false
}

// explanation is one reproduction found by Explain.
type explanation struct {
	key     string
	subject domain.LocatedProperty
	repro   *minimize.Reproduction
}

// Explain searches intermediate steps for the explainable reports of a stored report file,
// records them as the reports' intermediateSteps and saves the file in place.
func (a *App) Explain(ctx context.Context, opts ExplainOptions) error {
	file, err := a.store.Load(opts.ReportPath)
	if err != nil {
		return zerr.Wrap(err, "failed to load reports")
	}
	cfg := file.Config
	if opts.ConfigPath != "" {
		if cfg, err = a.configLoader.Load(opts.ConfigPath, domain.ConfigOverrides{}); err != nil {
			return zerr.Wrap(err, "failed to load configuration")
		}
	}
	if cfg == nil || len(cfg.Tools) == 0 {
		return zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "report file carries no configuration"), "path", opts.ReportPath)
	}

	// Evaluations during explain may file reports of their own; they are not part of the
	// stored file.
	run := runctx.New(cfg, a.store, opts.ReportPath, a.logger, a.metrics, runctx.WithRunID(file.RunID))
	ctx, span := a.tracer.Start(ctx, "explain", ports.WithAttribute("reports", len(file.Reports)))
	defer span.End()

	a.logger.Info(strconv.Itoa(len(file.Reports)) + " reports, requested explanations: [" + strings.Join(opts.Names, ", ") + "]")

	var (
		explained = make(map[string]bool)
		attempted []string
		found     []explanation
		pipeline  *minimize.Pipeline
		lastTool  = -1
	)
	for _, rep := range file.Reports {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rep.Type.Explainable() {
			continue
		}
		subject, ok := rep.Subject()
		if !ok {
			a.logger.Warn("report without subject: " + rep.Message)
			continue
		}
		key := subject.IssueKey()
		if explained[key] || !opts.wants(key) {
			continue
		}
		if _, seen := explained[key]; !seen {
			attempted = append(attempted, key)
			explained[key] = false
		}

		toolIdx := rep.ToolIndex()
		if toolIdx < 0 || toolIdx >= len(cfg.Tools) {
			a.logger.Warn("report for " + key + " names unknown tool configuration " + strconv.Itoa(toolIdx))
			continue
		}
		a.logger.Info("searching explanation for " + string(rep.Type) + " -> " + key)

		if pipeline == nil || toolIdx != lastTool {
			run.SetTool(toolIdx)
			ref, err := a.reference(ctx, run, cfg.Tools[toolIdx])
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("cannot establish baseline for configuration " + strconv.Itoa(toolIdx) + ": " + err.Error())
				pipeline, lastTool = nil, -1
				continue
			}
			po := minimize.ExplainOptions()
			po.Seed = opts.Seed
			pipeline = minimize.NewPipeline(minimize.NewReproDB(run, a.evaluator, cfg.Tools[toolIdx], ref), po)
			lastTool = toolIdx
		}

		repro, err := pipeline.Explain(ctx, subject)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error(zerr.With(zerr.Wrap(err, "explanation failed"), "subject", subject.String()))
			continue
		}
		if repro == nil {
			a.logger.Info("no reproduction for this instance of " + key + ", trying the next one")
			continue
		}
		explained[key] = true
		found = append(found, explanation{key: key, subject: subject, repro: repro})
		a.logger.Info("found " + strconv.Itoa(len(repro.Steps)) + " perturbation step(s)")
		rep.SetDetail("intermediateSteps", repro.Steps)
	}

	printSummary(a.out, attempted, explained, found)

	if err := a.store.Save(context.WithoutCancel(ctx), opts.ReportPath, file); err != nil {
		return zerr.Wrap(err, "failed to update reports")
	}
	a.logger.Info("updated " + opts.ReportPath)
	span.SetAttribute("explained", len(found))
	return nil
}
