// Package runctxtest builds run contexts for engine tests.
package runctxtest

import (
	"path/filepath"
	"testing"

	"go.trai.ch/sidefx/internal/adapters/reports"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports/mocks"
	"go.trai.ch/sidefx/internal/engine/runctx"
	"go.uber.org/mock/gomock"
)

// QuietLogger returns a logger mock that accepts every call.
func QuietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return log
}

// QuietMetrics returns a metrics mock that accepts every call.
func QuietMetrics(ctrl *gomock.Controller) *mocks.MockMetrics {
	m := mocks.NewMockMetrics(ctrl)
	m.EXPECT().ObserveEvaluation(gomock.Any()).AnyTimes()
	m.EXPECT().ObserveDivergence(gomock.Any()).AnyTimes()
	m.EXPECT().ObserveReport(gomock.Any()).AnyTimes()
	m.EXPECT().ObserveCycle(gomock.Any(), gomock.Any()).AnyTimes()
	return m
}

// New returns a RunContext saving to a temporary report file, with quiet logger and metrics.
// A nil cfg is replaced by a configuration with one sandbox tool.
func New(t testing.TB, cfg *domain.RunConfig, opts ...runctx.Option) *runctx.RunContext {
	t.Helper()
	ctrl := gomock.NewController(t)
	if cfg == nil {
		cfg = &domain.RunConfig{
			Tools:          []domain.ToolConfig{{Command: "sandbox"}},
			CaptureValues:  true,
			IgnoreCircular: true,
		}
	}
	path := filepath.Join(t.TempDir(), domain.ReportFileName)
	return runctx.New(cfg, reports.NewStore(), path, QuietLogger(ctrl), QuietMetrics(ctrl), opts...)
}
