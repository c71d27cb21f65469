package ports

import (
	"time"

	"go.trai.ch/sidefx/internal/core/domain"
)

// Metrics records run counters.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// ObserveEvaluation counts one property evaluation.
	ObserveEvaluation(kind domain.ValueKind)
	// ObserveDivergence counts one value that differed from its reference.
	ObserveDivergence(alg domain.Algorithm)
	// ObserveReport counts one filed report.
	ObserveReport(t domain.ReportType)
	// ObserveCycle records the duration of one search cycle.
	ObserveCycle(alg domain.Algorithm, d time.Duration)
}
