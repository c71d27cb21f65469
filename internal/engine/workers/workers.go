// Package workers splits tool configurations across worker processes and merges their
// report files.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Assignment is the half-open range of tool configurations one worker handles.
type Assignment struct {
	From int
	To   int
}

// Len returns the number of configurations in the assignment.
func (a Assignment) Len() int {
	return a.To - a.From
}

// Slice returns the configurations of worker id out of count workers. Every worker gets
// max(total/count, 1) consecutive configurations and the last one also takes the rest.
// Workers past the end of the list get an empty assignment. A single configuration is not
// split: every worker searches it.
func Slice(total, id, count int) (Assignment, error) {
	if count < 1 || id < 0 || id >= count || total < 0 {
		return Assignment{}, zerr.With(zerr.With(zerr.With(
			zerr.Wrap(domain.ErrInvalidWorkerSlice, "cannot slice tool configurations"),
			"worker_id", id), "num_workers", count), "total", total)
	}
	if total <= 1 {
		return Assignment{From: 0, To: total}, nil
	}
	size := max(total/count, 1)
	from := min(id*size, total)
	to := min(from+size, total)
	if id == count-1 {
		to = total
	}
	return Assignment{From: from, To: to}, nil
}

// SpawnFunc starts worker id of count and blocks until it exits. The worker writes its
// findings to domain.WorkerReportFileName(id) inside dir.
type SpawnFunc func(ctx context.Context, id, count int, dir string) error

// Pool runs worker processes and merges their reports.
type Pool struct {
	logger ports.Logger
	store  ports.ReportStore
	spawn  SpawnFunc
}

// NewPool creates a pool that starts workers with spawn.
func NewPool(logger ports.Logger, store ports.ReportStore, spawn SpawnFunc) *Pool {
	return &Pool{logger: logger, store: store, spawn: spawn}
}

// Run starts count workers, waits for all of them and returns the merged reports in
// worker order. Report files of failed workers are merged when they exist, since workers
// autosave while searching. The returned error joins every worker failure.
func (p *Pool) Run(ctx context.Context, count int, dir string) ([]*domain.Report, error) {
	if count < 1 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidWorkerSlice, "no workers requested"), "num_workers", count)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	// Workers are independent: one failing must not cancel its siblings. Every worker's
	// failure is reported, so failures are collected here and Go always returns nil;
	// Wait would keep only the first error.
	var g errgroup.Group
	for id := range count {
		g.Go(func() error {
			p.logger.Info("starting worker " + strconv.Itoa(id+1) + "/" + strconv.Itoa(count))
			if err := p.spawn(ctx, id, count, dir); err != nil {
				wrapped := zerr.With(zerr.Wrap(domain.ErrWorkerFailed, err.Error()), "worker_id", id)
				mu.Lock()
				failures = append(failures, wrapped)
				mu.Unlock()
				p.logger.Error(wrapped)
				return nil
			}
			p.logger.Info("worker " + strconv.Itoa(id) + " finished")
			return nil
		})
	}
	_ = g.Wait() // always nil, see above

	paths := make([]string, 0, count)
	for id := range count {
		path := filepath.Join(dir, domain.WorkerReportFileName(id))
		if fileExists(path) {
			paths = append(paths, path)
			continue
		}
		p.logger.Warn("worker " + strconv.Itoa(id) + " left no report file")
	}

	raw, err := p.store.Merge(paths)
	if err != nil {
		return nil, errors.Join(append(failures, err)...)
	}
	reports, err := decode(raw)
	if err != nil {
		return nil, errors.Join(append(failures, err)...)
	}
	return reports, errors.Join(failures...)
}

func decode(raw []json.RawMessage) ([]*domain.Report, error) {
	reports := make([]*domain.Report, 0, len(raw))
	for i, entry := range raw {
		var r domain.Report
		if err := json.Unmarshal(entry, &r); err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrReportParseFailed, err.Error()), "index", i)
		}
		reports = append(reports, &r)
	}
	return reports, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
