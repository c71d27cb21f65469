package telemetry_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/sidefx/internal/adapters/telemetry"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

func setupMonitor(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func TestInterfaceSatisfaction(_ *testing.T) {
	var _ ports.Tracer = (*telemetry.OTelTracer)(nil)
	var _ ports.Span = (*telemetry.OTelSpan)(nil)
	var _ ports.Tracer = (*telemetry.NoOpTracer)(nil)
	var _ ports.Span = (*telemetry.NoOpSpan)(nil)
}

func TestOTelTracer_StartWithAttributes(t *testing.T) {
	sr := setupMonitor(t)
	tracer := telemetry.NewOTelTracer("test-tracer")

	_, span := tracer.Start(t.Context(), "search",
		ports.WithAttribute("tool.idx", 3),
		ports.WithAttribute("algorithm", domain.AlgorithmRIDO),
	)
	span.SetAttribute("cycles", int64(12))
	span.SetAttribute("entries", []string{"errors"})
	span.SetAttribute("minimize", true)
	span.SetAttribute("ratio", 0.5)
	span.SetAttribute("other", struct{ A int }{1})
	_, err := span.Write([]byte("cycle 1 done"))
	require.NoError(t, err)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(3), attrs["tool.idx"].AsInt64())
	assert.Equal(t, "rido", attrs["algorithm"].AsString())
	assert.Equal(t, int64(12), attrs["cycles"].AsInt64())
	assert.Equal(t, []string{"errors"}, attrs["entries"].AsStringSlice())
	assert.True(t, attrs["minimize"].AsBool())
	assert.InDelta(t, 0.5, attrs["ratio"].AsFloat64(), 0)
	assert.Equal(t, "{1}", attrs["other"].AsString())

	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "log", events[0].Name)
}

func TestOTelSpan_RecordError(t *testing.T) {
	sr := setupMonitor(t)

	_, span := telemetry.NewOTelTracer("test-tracer").Start(t.Context(), "reference")
	span.RecordError(errors.New("tool crashed"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "tool crashed", spans[0].Status().Description)
}

func TestNoOpTracer(t *testing.T) {
	ctx := t.Context()
	got, span := telemetry.NewNoOpTracer().Start(ctx, "x")
	assert.Equal(t, ctx, got)

	n, err := span.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	span.SetAttribute("k", "v")
	span.RecordError(errors.New("ignored"))
	span.End()
}

func TestSetup_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := telemetry.Setup(&buf, 2)
	require.NoError(t, err)

	_, span := telemetry.NewOTelTracer(telemetry.InstrumentationName).Start(t.Context(), "generate")
	span.End()
	require.NoError(t, shutdown(t.Context()))

	assert.Contains(t, buf.String(), `"Name":"generate"`)
	assert.Contains(t, buf.String(), "sidefx.worker_id")
}

func TestSetupFile_EmptyPathIsNoop(t *testing.T) {
	shutdown, err := telemetry.SetupFile("", 0)
	require.NoError(t, err)
	assert.NoError(t, shutdown(t.Context()))
}
