package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/minimize"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.trai.ch/sidefx/internal/engine/search"
	"go.trai.ch/sidefx/internal/engine/workers"
	"go.trai.ch/zerr"
)

// GenerateOptions configuration for the Generate method.
type GenerateOptions struct {
	// ConfigPath defaults to domain.DefaultConfigFile.
	ConfigPath string
	Overrides  domain.ConfigOverrides
	// OutDir receives the report file, metrics dump and worker logs.
	OutDir string
	// WorkerID is the worker index in worker mode and negative otherwise.
	WorkerID   int
	NumWorkers int
	// Concurrent > 1 spawns that many worker processes and merges their reports.
	Concurrent int
	// WorkerArgs is the command line re-executed for every worker, before the worker flags.
	WorkerArgs []string
	// Seed makes search orders reproducible; zero picks a random seed.
	Seed uint64
}

func (o GenerateOptions) configPath() string {
	if o.ConfigPath == "" {
		return domain.DefaultConfigFile
	}
	return o.ConfigPath
}

func (o GenerateOptions) worker() bool {
	return o.WorkerID >= 0
}

// Generate searches every tool configuration assigned to this process and writes the
// findings to the report file.
func (a *App) Generate(ctx context.Context, opts GenerateOptions) error {
	cfg, err := a.configLoader.Load(opts.configPath(), opts.Overrides)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	if opts.Concurrent > 1 && !opts.worker() {
		return a.generateConcurrent(ctx, cfg, opts)
	}

	id, count := 0, 1
	path := filepath.Join(opts.OutDir, domain.ReportFileName)
	metricsPath := filepath.Join(opts.OutDir, domain.MetricsFileName)
	if opts.worker() {
		id, count = opts.WorkerID, max(opts.NumWorkers, 1)
		path = filepath.Join(opts.OutDir, domain.WorkerReportFileName(id))
		metricsPath = filepath.Join(opts.OutDir, domain.WorkerMetricsFileName(id))
	}
	cfg.WorkerID, cfg.NumWorkers = id, count

	slice, err := workers.Slice(len(cfg.Tools), id, count)
	if err != nil {
		return err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	budget := cfg.ToolBudget()
	a.logger.Info("searching " + strconv.Itoa(slice.Len()) + " of " + strconv.Itoa(len(cfg.Tools)) +
		" configurations with " + string(cfg.Algorithm) + ", " + budget.String() + " each")
	a.logger.Debug("seed " + strconv.FormatUint(seed, 10))

	run := runctx.New(cfg, a.store, path, a.logger, a.metrics)
	ctx, span := a.tracer.Start(ctx, "generate",
		ports.WithAttribute("worker_id", id),
		ports.WithAttribute("algorithm", string(cfg.Algorithm)),
	)
	defer span.End()

	var runErr error
	for idx := slice.From; idx < slice.To; idx++ {
		if err := a.generateTool(ctx, run, idx, budget, seed+uint64(idx)); err != nil {
			span.RecordError(err)
			runErr = err
			break
		}
	}

	// The final save must happen even when ctx is already cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := run.Save(saveCtx); err != nil {
		return errors.Join(runErr, err)
	}
	a.logger.Info("wrote " + strconv.Itoa(len(run.Reports())) + " reports to " + path)
	if err := a.metrics.WriteTextfile(metricsPath); err != nil {
		a.logger.Warn("failed to write metrics: " + err.Error())
	}
	return runErr
}

// generateTool establishes the baseline of one tool configuration, searches it and
// minimizes what was found. Only cancellation and save failures are returned; a failing
// configuration is logged and skipped.
func (a *App) generateTool(ctx context.Context, run *runctx.RunContext, idx int, budget time.Duration, seed uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := run.Config
	tool := cfg.Tools[idx]
	run.SetTool(idx)
	a.logger.Info("configuration " + strconv.Itoa(idx+1) + "/" + strconv.Itoa(len(cfg.Tools)) + ": " + tool.String())

	ctx, vtx := a.telemetry.Record(ctx, "tool "+strconv.Itoa(idx)+": "+tool.String(), ports.InGroup("generate"))
	ctx, span := a.tracer.Start(ctx, "tool",
		ports.WithAttribute("tool_idx", idx),
		ports.WithAttribute("command", tool.String()),
	)
	defer span.End()

	ref, err := a.reference(ctx, run, tool)
	if err != nil {
		if ctx.Err() != nil {
			vtx.Complete(err)
			return ctx.Err()
		}
		a.logger.Warn("skipping configuration " + strconv.Itoa(idx) + ": " + err.Error())
		span.RecordError(err)
		vtx.Complete(err)
		return nil
	}
	if ref.AnyEntryPropThrew {
		reason := "an entry point threw during the reference pass"
		a.logger.Warn("skipping configuration " + strconv.Itoa(idx) + ": " + reason)
		vtx.Skipped(reason)
		return nil
	}
	vtx.Log(domain.LogLevelInfo, "reference pass recorded "+strconv.Itoa(ref.Len())+" values")

	divs, err := a.search(ctx, run, tool, ref, budget, seed)
	if err != nil {
		if ctx.Err() != nil {
			vtx.Complete(err)
			return ctx.Err()
		}
		a.logger.Error(zerr.With(zerr.Wrap(err, "search failed"), "tool_idx", idx))
		span.RecordError(err)
		vtx.Complete(err)
		return nil
	}
	vtx.Log(domain.LogLevelInfo, strconv.Itoa(len(divs))+" divergent issues")

	if cfg.Minimize && len(divs) > 0 {
		if err := a.minimize(ctx, run, tool, ref, divs, seed); err != nil {
			if ctx.Err() != nil {
				vtx.Complete(err)
				return ctx.Err()
			}
			a.logger.Error(zerr.With(zerr.Wrap(err, "minimization failed"), "tool_idx", idx))
			span.RecordError(err)
		}
	}
	vtx.Complete(nil)

	if err := run.Save(ctx); err != nil {
		return err
	}
	return nil
}

func (a *App) reference(ctx context.Context, run *runctx.RunContext, tool domain.ToolConfig) (*domain.ReferenceValues, error) {
	ctx, span := a.tracer.Start(ctx, "reference")
	defer span.End()
	ref, err := a.recorder.Establish(ctx, run, a.evaluator, tool)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("values", ref.Len())
	return ref, nil
}

func (a *App) search(
	ctx context.Context,
	run *runctx.RunContext,
	tool domain.ToolConfig,
	ref *domain.ReferenceValues,
	budget time.Duration,
	seed uint64,
) ([]search.Divergence, error) {
	ctx, span := a.tracer.Start(ctx, "search", ports.WithAttribute("budget_ms", budget.Milliseconds()))
	defer span.End()

	s := search.New(run, a.evaluator, tool, ref, seed)
	divs, err := s.Run(ctx, run.Config.Algorithm, budget)
	span.SetAttribute("cycles", s.Cycles())
	span.SetAttribute("divergences", len(divs))
	if err != nil {
		span.RecordError(err)
	}
	return divs, err
}

// minimize replaces the search reports of divs by their ranked reproductions.
func (a *App) minimize(
	ctx context.Context,
	run *runctx.RunContext,
	tool domain.ToolConfig,
	ref *domain.ReferenceValues,
	divs []search.Divergence,
	seed uint64,
) error {
	ctx, span := a.tracer.Start(ctx, "minimize", ports.WithAttribute("issues", len(divs)))
	defer span.End()

	var candidates []search.Divergence
	for _, d := range divs {
		if d.Report == nil || d.Report.Type != domain.ReportPropertyValueDiffInReferenceRun {
			continue
		}
		if run.Config.Excluded(d.Subject.NodeType(), d.Subject.Name()) {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) == 0 {
		return nil
	}

	opts := minimize.GenerateOptions()
	opts.Seed = seed
	pipeline := minimize.NewPipeline(minimize.NewReproDB(run, a.evaluator, tool, ref), opts)
	priced, err := pipeline.Minimize(ctx, candidates)
	if err != nil {
		span.RecordError(err)
		return err
	}

	replaced := make(map[*domain.Report]struct{}, len(candidates))
	for _, d := range candidates {
		replaced[d.Report] = struct{}{}
	}
	kept := make(map[*domain.Report]struct{}, len(priced))
	for _, p := range priced {
		kept[p.Report] = struct{}{}
	}

	var reports []*domain.Report
	for _, r := range run.Reports() {
		_, wasCandidate := replaced[r]
		_, stays := kept[r]
		if !wasCandidate || stays {
			reports = append(reports, r)
		}
	}
	uptime := run.Uptime().Milliseconds()
	for _, p := range priced {
		if _, existing := replaced[p.Report]; existing {
			continue
		}
		p.Report.SetToolIdx(run.Tool())
		p.Report.SetDiscoveryTime(uptime)
		reports = append(reports, p.Report)
		run.Metrics.ObserveReport(p.Report.Type)
	}
	run.ReplaceReports(reports)
	span.SetAttribute("findings", len(priced))
	return nil
}

// generateConcurrent spawns opts.Concurrent workers over the whole configuration list and
// merges their report files into one.
func (a *App) generateConcurrent(ctx context.Context, cfg *domain.RunConfig, opts GenerateOptions) error {
	start := time.Now()
	spawn := a.spawn
	if spawn == nil {
		exe, err := os.Executable()
		if err != nil {
			return zerr.Wrap(err, "failed to locate the sidefx binary")
		}
		spawn = workers.ProcessSpawner{Executable: exe, Args: opts.WorkerArgs}.Spawn
	}
	cfg.NumWorkers = opts.Concurrent

	ctx, span := a.tracer.Start(ctx, "workers", ports.WithAttribute("count", opts.Concurrent))
	defer span.End()

	pool := workers.NewPool(a.logger, a.store, spawn)
	reports, werr := pool.Run(ctx, opts.Concurrent, opts.OutDir)
	if werr != nil {
		span.RecordError(werr)
		if reports == nil {
			return werr
		}
	}

	path := filepath.Join(opts.OutDir, domain.ReportFileName)
	file := &domain.ReportFile{Config: cfg, Reports: reports, UptimeMs: time.Since(start).Milliseconds()}
	if err := a.store.Save(context.WithoutCancel(ctx), path, file); err != nil {
		return errors.Join(werr, err)
	}
	a.logger.Info("merged " + strconv.Itoa(len(reports)) + " reports from " + strconv.Itoa(opts.Concurrent) + " workers into " + path)
	return werr
}
