package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flowgate/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled and returns the global no-op backed
// tracer otherwise. The returned function flushes pending spans.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string, logger *slog.Logger) (trace.Tracer, func(context.Context) error) {
	noop := func(context.Context) error { return nil }

	if !enabled {
		return otel.Tracer(serviceName), noop
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize tracer, spans are disabled", "error", err)

		return otel.Tracer(serviceName), noop
	}

	return tracer, shutdown
}
