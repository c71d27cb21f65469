// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/sidefx/internal/core/domain"
)

//go:generate mockgen -source=evaluator.go -destination=mocks/mock_evaluator.go -package=mocks

// Evaluator opens sessions against the system under test.
type Evaluator interface {
	// Open parses the input described by tool into a fresh object graph.
	Open(ctx context.Context, tool domain.ToolConfig) (Session, error)
}

// Session is one parsed object graph. Evaluating a property may mutate the graph's
// memoization caches; a new Session is a guaranteed-fresh parse.
type Session interface {
	EvalTracer

	// Evaluate invokes lp through its public, memoized path. Exceptions thrown by the property
	// are returned as EXCEPTION values, never as errors. Errors are domain.ErrNodeNotFound,
	// domain.ErrValueEncoding or transport failures.
	Evaluate(ctx context.Context, lp domain.LocatedProperty) (domain.Evaluation, error)

	// Recompute invokes lp's equation directly, bypassing its cache, after the property's reset
	// routine when one exists. It returns domain.ErrNoComputeRoutine when the property cannot
	// be recomputed.
	Recompute(ctx context.Context, lp domain.LocatedProperty) (domain.Recomputation, error)

	// Find returns the located properties an entry point selects, in tree order.
	Find(ctx context.Context, ep domain.EntryPoint) ([]domain.LocatedProperty, error)

	// InvalidateLocators drops any cache used to resolve locators to nodes.
	InvalidateLocators(ctx context.Context) error

	// Close releases the session.
	Close() error
}

// EvalTracer runs evaluations under trace instrumentation.
type EvalTracer interface {
	// Trace delivers every event raised while fn runs to sink. Values are attached to events
	// only when captureValues is set.
	Trace(ctx context.Context, sink TraceSink, captureValues bool, fn func(context.Context) error) error
}

// TraceSink receives instrumentation events in emission order.
type TraceSink interface {
	Accept(ev domain.TraceEvent)
}
