package evaluation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/sandbox"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports/mocks"
	"go.trai.ch/sidefx/internal/engine/evaluation"
	"go.trai.ch/sidefx/internal/engine/runctx/runctxtest"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

var subject = domain.NewLocatedProperty(domain.Locator{
	Result: domain.TypeAtLocation{Type: "calc.Let", Start: 3, End: 9},
	Steps:  []domain.LocatorStep{{Kind: domain.StepChild, Child: 0}},
}, domain.NewProperty("value"))

func value(s string) domain.EvaluatedValue {
	return domain.NewValue([]domain.Line{domain.PlainLine(s)})
}

func reportTypes(reports []*domain.Report) []domain.ReportType {
	out := make([]domain.ReportType, len(reports))
	for i, r := range reports {
		out[i] = r.Type
	}
	return out
}

func TestEvaluate_Value(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSession(ctrl)
	run := runctxtest.New(t, nil)

	s.EXPECT().Evaluate(gomock.Any(), subject).Return(domain.Evaluation{Value: value("3")}, nil)

	v, err := evaluation.Evaluate(context.Background(), run, s, subject)
	require.NoError(t, err)
	assert.True(t, v.Equal(value("3")))
	assert.Empty(t, run.Reports())
}

func TestEvaluate_RetriesAfterLocatorInvalidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSession(ctrl)
	run := runctxtest.New(t, nil)

	gomock.InOrder(
		s.EXPECT().Evaluate(gomock.Any(), subject).Return(domain.Evaluation{}, zerr.Wrap(domain.ErrNodeNotFound, "stale")),
		s.EXPECT().InvalidateLocators(gomock.Any()).Return(nil),
		s.EXPECT().Evaluate(gomock.Any(), subject).Return(domain.Evaluation{Value: value("3")}, nil),
	)

	v, err := evaluation.Evaluate(context.Background(), run, s, subject)
	require.NoError(t, err)
	assert.Equal(t, "3", v.String())
	assert.Empty(t, run.Reports())
}

func TestEvaluate_FailedFindingNode(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSession(ctrl)
	run := runctxtest.New(t, nil)

	s.EXPECT().Evaluate(gomock.Any(), subject).Return(domain.Evaluation{}, domain.ErrNodeNotFound).Times(2)
	s.EXPECT().InvalidateLocators(gomock.Any()).Return(nil)

	v, err := evaluation.Evaluate(context.Background(), run, s, subject)
	require.NoError(t, err)
	assert.True(t, v.IsException())
	assert.Equal(t, evaluation.MsgLocatorFailed, v.Message())
	assert.Equal(t, []domain.ReportType{domain.ReportFailedFindingNode}, reportTypes(run.Reports()))
}

func TestEvaluate_ExceptionsAndUnattachedAreReported(t *testing.T) {
	tests := []struct {
		name   string
		result domain.Evaluation
		err    error
		want   []domain.ReportType
	}{
		{
			name:   "exception",
			result: domain.Evaluation{Value: domain.NewException("boom")},
			want:   []domain.ReportType{domain.ReportExceptionThrown},
		},
		{
			name:   "unattached",
			result: domain.Evaluation{Value: value("Let (detached)"), Unattached: true},
			want:   []domain.ReportType{domain.ReportUnattachedNode},
		},
		{
			name: "encoding",
			err:  zerr.Wrap(domain.ErrValueEncoding, "chan int"),
			want: []domain.ReportType{domain.ReportExceptionThrown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			s := mocks.NewMockSession(ctrl)
			run := runctxtest.New(t, nil)
			s.EXPECT().Evaluate(gomock.Any(), subject).Return(tt.result, tt.err)

			_, err := evaluation.Evaluate(context.Background(), run, s, subject)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reportTypes(run.Reports()))
		})
	}
}

func TestEvaluate_TransportErrorIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSession(ctrl)
	run := runctxtest.New(t, nil)

	s.EXPECT().Evaluate(gomock.Any(), subject).Return(domain.Evaluation{}, domain.ErrToolProtocol)

	_, err := evaluation.Evaluate(context.Background(), run, s, subject)
	assert.ErrorIs(t, err, domain.ErrToolProtocol)
}

func TestRecompute(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSession(ctrl)
	run := runctxtest.New(t, nil)

	s.EXPECT().Recompute(gomock.Any(), subject).Return(domain.Recomputation{}, zerr.Wrap(domain.ErrNoComputeRoutine, "circular"))
	_, supported, err := evaluation.Recompute(context.Background(), run, s, subject)
	require.NoError(t, err)
	assert.False(t, supported)

	s.EXPECT().Recompute(gomock.Any(), subject).Return(domain.Recomputation{Value: value("4"), AfterReset: true}, nil)
	rc, supported, err := evaluation.Recompute(context.Background(), run, s, subject)
	require.NoError(t, err)
	assert.True(t, supported)
	assert.True(t, rc.AfterReset)

	s.EXPECT().Recompute(gomock.Any(), subject).Return(domain.Recomputation{}, errors.New("pipe closed"))
	_, _, err = evaluation.Recompute(context.Background(), run, s, subject)
	assert.Error(t, err)
}

func TestSequence_OnSandbox(t *testing.T) {
	ctx := context.Background()
	ev := sandbox.NewEvaluator()
	run := runctxtest.New(t, nil)
	tool := domain.ToolConfig{Command: "sandbox"}

	s, err := ev.Open(ctx, tool)
	require.NoError(t, err)
	find := func(predicate, property string) domain.LocatedProperty {
		props, err := s.Find(ctx, domain.EntryPoint{Predicate: predicate, Property: property})
		require.NoError(t, err)
		require.Len(t, props, 1)
		return props[0]
	}
	uidA := find("this<:Let&label=a", "uid")
	uidC := find("this<:Let&label=c", "uid")
	require.NoError(t, s.Close())

	alone, err := evaluation.Fresh(ctx, run, ev, tool, uidC)
	require.NoError(t, err)
	after, err := evaluation.Sequence(ctx, run, ev, tool, []domain.LocatedProperty{uidA}, uidC)
	require.NoError(t, err)
	assert.False(t, alone.Equal(after), "uid depends on which let asked first")

	again, err := evaluation.Fresh(ctx, run, ev, tool, uidC)
	require.NoError(t, err)
	assert.True(t, alone.Equal(again))
}
