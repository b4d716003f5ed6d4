package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracerOption configures InitTracer.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	out  io.Writer
	sync bool
}

// WithOutput writes exported spans to w instead of stdout.
func WithOutput(w io.Writer) TracerOption {
	return func(c *tracerConfig) { c.out = w }
}

// WithSyncExport exports each span as it ends instead of batching.
func WithSyncExport() TracerOption {
	return func(c *tracerConfig) { c.sync = true }
}

// InitTracer installs a global tracer provider that exports spans as JSON
// and returns its shutdown function, which flushes pending spans.
func InitTracer(serviceName string, logger *slog.Logger, opts ...TracerOption) (func(context.Context) error, error) {
	cfg := tracerConfig{out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(cfg.out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	export := sdktrace.WithBatcher(exporter)
	if cfg.sync {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized",
		slog.String("service", serviceName),
		slog.Bool("sync_export", cfg.sync),
	)
	return tp.Shutdown, nil
}
