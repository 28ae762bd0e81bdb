// Package telemetry configures OpenTelemetry tracing for the server.
package telemetry

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"media-streamer/internal/logging"
)

const defaultSampleRate = 0.1

// ShutdownFunc flushes and stops the trace provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs the global trace provider. Without OTEL_EXPORTER_OTLP_ENDPOINT
// tracing stays disabled and the returned shutdown does nothing. The sample
// rate comes from OTEL_TRACE_SAMPLE_RATE (0..1, default 0.1).
func Init(ctx context.Context, serviceName, version string) (ShutdownFunc, error) {
	return initWith(ctx, os.Getenv, serviceName, version)
}

func initWith(ctx context.Context, getenv func(string) string, serviceName, version string) (ShutdownFunc, error) {
	endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		logging.Debug("Tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		return noop, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(trimScheme(endpoint)),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if !strings.HasPrefix(endpoint, "https://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(initCtx, opts...)
	if err != nil {
		logging.Warn("Tracing disabled: %v", err)
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	rate := parseSampleRate(getenv("OTEL_TRACE_SAMPLE_RATE"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logging.Info("Tracing enabled: exporting to %s (sample rate %.2f)", endpoint, rate)
	return tp.Shutdown, nil
}

func trimScheme(endpoint string) string {
	return strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
}

// parseSampleRate returns raw as a rate in [0,1], or the default.
func parseSampleRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSampleRate
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate < 0 || rate > 1 {
		return defaultSampleRate
	}
	return rate
}
