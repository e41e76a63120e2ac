// Package telemetry wires OpenTelemetry tracing for the rentdesk binaries.
package telemetry

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs an OTLP gRPC tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise tracing stays disabled.
// RENTDESK_TRACE_RATIO (0..1) samples root spans, children follow the parent.
func Setup(serviceName string, logger *zap.Logger) ShutdownFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		logger.Warn("otel exporter unavailable, tracing disabled", zap.Error(err))
		return noop
	}

	attrs := resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceNamespace("rentdesk"),
	)
	res, err := resource.New(context.Background(), attrs, resource.WithHost())
	if err != nil {
		logger.Warn("otel resource incomplete", zap.Error(err))
	}

	ratio := samplingRatio(os.Getenv("RENTDESK_TRACE_RATIO"))
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled",
		zap.String("endpoint", endpoint),
		zap.String("service", serviceName),
		zap.Float64("ratio", ratio),
	)
	return provider.Shutdown
}

// samplingRatio defaults to sampling everything; values outside 0..1 are
// ignored.
func samplingRatio(raw string) float64 {
	if raw == "" {
		return 1
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1
	}
	return ratio
}
