// Package runctx holds the state shared by every stage of one run: the collected reports,
// the first-occurrence markers and the autosave clock.
package runctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

// DefaultAutosaveInterval is the wall-clock time between autosaves.
const DefaultAutosaveInterval = 30 * time.Second

// RunContext is created once per process and passed to every component.
type RunContext struct {
	Logger  ports.Logger
	Metrics ports.Metrics
	Config  *domain.RunConfig

	store    ports.ReportStore
	path     string
	runID    string
	interval time.Duration

	mu       sync.Mutex
	start    time.Time
	lastSave time.Time
	toolIdx  int
	reports  []*domain.Report
	seen     map[string]struct{}
	marked   map[string]struct{}
}

// Option configures a RunContext.
type Option func(*RunContext)

// WithAutosaveInterval overrides DefaultAutosaveInterval.
func WithAutosaveInterval(d time.Duration) Option {
	return func(r *RunContext) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *RunContext) {
		r.runID = id
	}
}

// New creates a RunContext that saves to path through store.
func New(
	cfg *domain.RunConfig,
	store ports.ReportStore,
	path string,
	logger ports.Logger,
	metrics ports.Metrics,
	opts ...Option,
) *RunContext {
	now := time.Now()
	r := &RunContext{
		Logger:   logger,
		Metrics:  metrics,
		Config:   cfg,
		store:    store,
		path:     path,
		runID:    uuid.NewString(),
		interval: DefaultAutosaveInterval,
		start:    now,
		lastSave: now,
		seen:     make(map[string]struct{}),
		marked:   make(map[string]struct{}),
	}
	if cfg != nil && cfg.AutosaveEvery > 0 {
		r.interval = cfg.AutosaveEvery
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the identifier written to every saved file.
func (r *RunContext) RunID() string {
	return r.runID
}

// Path returns the report file path.
func (r *RunContext) Path() string {
	return r.path
}

// SetTool selects the tool configuration new reports are attributed to.
func (r *RunContext) SetTool(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolIdx = idx
}

// Tool returns the current tool configuration index.
func (r *RunContext) Tool() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toolIdx
}

// Uptime returns the time since the run started.
func (r *RunContext) Uptime() time.Duration {
	return time.Since(r.start)
}

// Add files rep unless an identical report is already filed or the filter excludes it.
// Reports without annotations are stamped with the current tool and discovery time.
func (r *RunContext) Add(rep *domain.Report) bool {
	if r.Config != nil && r.Config.Excluded(rep.NodeType(), rep.AttrName()) {
		r.Logger.Debug("filtered report " + string(rep.Type) + " for " + rep.IssueKey())
		return false
	}

	r.mu.Lock()
	fp := rep.Fingerprint()
	if _, dup := r.seen[fp]; dup {
		r.mu.Unlock()
		return false
	}
	r.seen[fp] = struct{}{}
	if rep.ToolIdx == nil {
		rep.SetToolIdx(r.toolIdx)
	}
	if rep.DiscoveryTimeMs == nil {
		rep.SetDiscoveryTime(time.Since(r.start).Milliseconds())
	}
	r.reports = append(r.reports, rep)
	r.mu.Unlock()

	r.Metrics.ObserveReport(rep.Type)
	r.Logger.Info(string(rep.Type) + ": " + rep.Message)
	return true
}

// MarkOnce returns true the first time key is marked in this run.
func (r *RunContext) MarkOnce(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.marked[key]; ok {
		return false
	}
	r.marked[key] = struct{}{}
	return true
}

// Marked reports whether key was marked.
func (r *RunContext) Marked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.marked[key]
	return ok
}

// Reports returns a copy of the filed reports in filing order.
func (r *RunContext) Reports() []*domain.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// ReplaceReports swaps the filed reports, e.g. after deduplication.
func (r *RunContext) ReplaceReports(reports []*domain.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = make([]*domain.Report, len(reports))
	copy(r.reports, reports)
	r.seen = make(map[string]struct{}, len(reports))
	for _, rep := range reports {
		r.seen[rep.Fingerprint()] = struct{}{}
	}
}

// File snapshots the run as a report file.
func (r *RunContext) File() *domain.ReportFile {
	return &domain.ReportFile{
		RunID:    r.runID,
		Config:   r.Config,
		Reports:  r.Reports(),
		UptimeMs: r.Uptime().Milliseconds(),
	}
}

// Save writes the report file and resets the autosave clock.
func (r *RunContext) Save(ctx context.Context) error {
	if err := r.store.Save(ctx, r.path, r.File()); err != nil {
		return err
	}
	r.mu.Lock()
	r.lastSave = time.Now()
	r.mu.Unlock()
	return nil
}

// AutosaveIfDue saves when the autosave interval has elapsed since the last save. Failures
// are logged; the run continues.
func (r *RunContext) AutosaveIfDue(ctx context.Context) {
	r.mu.Lock()
	due := time.Since(r.lastSave) >= r.interval
	r.mu.Unlock()
	if !due {
		return
	}
	if err := r.Save(ctx); err != nil {
		r.Logger.Warn("autosave failed: " + err.Error())
		return
	}
	r.Logger.Debug("autosaved " + r.path)
}
