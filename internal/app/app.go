// Package app implements the application layer for sidefx.
package app

import (
	"context"
	"io"
	"os"

	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/baseline"
	"go.trai.ch/sidefx/internal/engine/workers"
)

// MetricsSink is the metrics registry of a run: the engine counters plus a textfile dump.
type MetricsSink interface {
	ports.Metrics
	WriteTextfile(path string) error
}

// ReportServer browses stored report files.
type ReportServer interface {
	Open(path string) error
	Serve(ctx context.Context, port int, ready func(addr string)) error
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	store        ports.ReportStore
	evaluator    ports.Evaluator
	builtin      ports.Evaluator
	recorder     *baseline.Recorder
	tracer       ports.Tracer
	telemetry    ports.Telemetry
	metrics      MetricsSink
	server       ReportServer

	out   io.Writer
	spawn workers.SpawnFunc
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	store ports.ReportStore,
	evaluator ports.Evaluator,
	builtin ports.Evaluator,
	recorder *baseline.Recorder,
	tracer ports.Tracer,
	telemetry ports.Telemetry,
	metrics MetricsSink,
	server ReportServer,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		store:        store,
		evaluator:    evaluator,
		builtin:      builtin,
		recorder:     recorder,
		tracer:       tracer,
		telemetry:    telemetry,
		metrics:      metrics,
		server:       server,
		out:          os.Stdout,
	}
}

// WithEvaluator replaces the evaluator used to open tool sessions.
// This is primarily used for testing with the in-process sandbox.
func (a *App) WithEvaluator(ev ports.Evaluator) *App {
	a.evaluator = ev
	return a
}

// WithOutput redirects summaries printed by explain.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// WithSpawner replaces the function starting worker processes.
func (a *App) WithSpawner(spawn workers.SpawnFunc) *App {
	a.spawn = spawn
	return a
}
