// Package evaluation evaluates located properties with the recovery and reporting shared by
// every search and minimization stage.
package evaluation

import (
	"context"
	"errors"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/sidefx/internal/engine/runctx"
)

// MsgLocatorFailed is the exception message of a property whose node cannot be found.
const MsgLocatorFailed = "Failed applying locator"

// Evaluate evaluates lp on s.
//
// A locator that does not resolve is retried once after the session's locator cache is
// dropped; if it still fails, a FAILED_FINDING_NODE_IN_NEW_AST report is filed and an
// EXCEPTION value is returned. Exceptions and encoding failures file EXCEPTION_THROWN and
// unattached results file UNATTACHED_NODE. Only transport failures are returned as errors.
func Evaluate(ctx context.Context, run *runctx.RunContext, s ports.Session, lp domain.LocatedProperty) (domain.EvaluatedValue, error) {
	ev, err := s.Evaluate(ctx, lp)
	if errors.Is(err, domain.ErrNodeNotFound) {
		if invErr := s.InvalidateLocators(ctx); invErr != nil {
			return domain.EvaluatedValue{}, invErr
		}
		ev, err = s.Evaluate(ctx, lp)
		if errors.Is(err, domain.ErrNodeNotFound) {
			run.Logger.Debug("failed finding " + lp.String())
			run.Add(domain.NewFailedFindingNode(lp.Locator()))
			return observe(run, domain.NewException(MsgLocatorFailed)), nil
		}
	}
	if errors.Is(err, domain.ErrValueEncoding) {
		run.Add(domain.NewExceptionThrown(lp, err.Error()))
		return observe(run, domain.NewException(err.Error())), nil
	}
	if err != nil {
		return domain.EvaluatedValue{}, err
	}

	if ev.Value.IsException() {
		run.Add(domain.NewExceptionThrown(lp, ev.Value.Message()))
	}
	if ev.Unattached {
		run.Add(domain.NewUnattachedNode(lp))
	}
	return observe(run, ev.Value), nil
}

func observe(run *runctx.RunContext, v domain.EvaluatedValue) domain.EvaluatedValue {
	run.Metrics.ObserveEvaluation(v.Kind())
	return v
}

// Recompute invokes lp's equation directly. supported is false when the property has no
// compute routine. Exceptions file EXCEPTION_THROWN like Evaluate.
func Recompute(ctx context.Context, run *runctx.RunContext, s ports.Session, lp domain.LocatedProperty) (rc domain.Recomputation, supported bool, err error) {
	rc, err = s.Recompute(ctx, lp)
	if errors.Is(err, domain.ErrNodeNotFound) {
		if invErr := s.InvalidateLocators(ctx); invErr != nil {
			return domain.Recomputation{}, false, invErr
		}
		rc, err = s.Recompute(ctx, lp)
	}
	switch {
	case errors.Is(err, domain.ErrNoComputeRoutine):
		return domain.Recomputation{}, false, nil
	case errors.Is(err, domain.ErrNodeNotFound):
		run.Add(domain.NewFailedFindingNode(lp.Locator()))
		return domain.Recomputation{Value: observe(run, domain.NewException(MsgLocatorFailed))}, true, nil
	case errors.Is(err, domain.ErrValueEncoding):
		run.Add(domain.NewExceptionThrown(lp, err.Error()))
		return domain.Recomputation{Value: observe(run, domain.NewException(err.Error()))}, true, nil
	case err != nil:
		return domain.Recomputation{}, false, err
	}
	if rc.Value.IsException() {
		run.Add(domain.NewExceptionThrown(lp, rc.Value.Message()))
	}
	observe(run, rc.Value)
	return rc, true, nil
}

// Fresh opens a new session for tool, evaluates lp and closes the session again.
func Fresh(ctx context.Context, run *runctx.RunContext, ev ports.Evaluator, tool domain.ToolConfig, lp domain.LocatedProperty) (domain.EvaluatedValue, error) {
	s, err := ev.Open(ctx, tool)
	if err != nil {
		return domain.EvaluatedValue{}, err
	}
	defer closeSession(run, s)
	return Evaluate(ctx, run, s, lp)
}

// Sequence evaluates steps in order on a fresh session and returns the value of lp evaluated
// after them.
func Sequence(
	ctx context.Context,
	run *runctx.RunContext,
	ev ports.Evaluator,
	tool domain.ToolConfig,
	steps []domain.LocatedProperty,
	lp domain.LocatedProperty,
) (domain.EvaluatedValue, error) {
	s, err := ev.Open(ctx, tool)
	if err != nil {
		return domain.EvaluatedValue{}, err
	}
	defer closeSession(run, s)
	for _, step := range steps {
		if _, err := Evaluate(ctx, run, s, step); err != nil {
			return domain.EvaluatedValue{}, err
		}
	}
	return Evaluate(ctx, run, s, lp)
}

func closeSession(run *runctx.RunContext, s ports.Session) {
	if err := s.Close(); err != nil {
		run.Logger.Warn("failed to close session: " + err.Error())
	}
}
