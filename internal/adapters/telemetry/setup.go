package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/sidefx/internal/build"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// ShutdownFunc flushes and stops what Setup installed.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting spans as JSON to w. The returned
// function flushes pending spans.
func Setup(w io.Writer, workerID int) (ShutdownFunc, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create span exporter")
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", InstrumentationName),
		attribute.String("service.version", build.Version),
		attribute.Int("sidefx.worker_id", workerID),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// SetupFile is Setup writing to path. An empty path installs nothing.
func SetupFile(path string, workerID int) (ShutdownFunc, error) {
	if path == "" {
		return func(context.Context) error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create trace directory"), "path", path)
	}
	//nolint:gosec // Path is provided by the user
	f, err := os.Create(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create trace file"), "path", path)
	}
	shutdown, err := Setup(f, workerID)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), f.Close())
	}, nil
}
