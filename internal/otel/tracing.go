// Package otel installs the process-wide tracer provider from the standard
// OTEL_* environment variables.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"docapi/internal/logger"
)

// Settings is the tracing configuration after env defaults are applied.
type Settings struct {
	Disabled    bool
	ServiceName string
	Protocol    string
	Endpoint    string
	Sampler     string
	SamplerArg  string
}

// SettingsFromEnv reads the OTEL_* variables the exporters and samplers honour.
func SettingsFromEnv() Settings {
	s := Settings{
		Disabled:    os.Getenv("OTEL_SDK_DISABLED") == "true",
		ServiceName: envOr("OTEL_SERVICE_NAME", "docapi"),
		Protocol:    envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
		Sampler:     envOr("OTEL_TRACES_SAMPLER", "parentbased_always_on"),
		SamplerArg:  envOr("OTEL_TRACES_SAMPLER_ARG", "1.0"),
	}
	if s.Endpoint == "" {
		s.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return s
}

// Init installs the W3C propagators and, unless tracing is disabled, an OTLP
// batch exporter. An exporter that cannot be built leaves the global no-op
// provider in place; startup does not fail on tracing. The returned function
// flushes pending spans.
func Init(ctx context.Context, log *logger.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	s := SettingsFromEnv()
	if s.Disabled {
		log.Info("tracing_configured", map[string]any{"tracing_enabled": false})
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.ServiceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(ctx, s.Protocol)
	if err != nil {
		log.Error("tracing_init_failed", err, map[string]any{"otlp_protocol": s.Protocol})
		return noopShutdown, nil
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(s.sampler()),
	)
	otel.SetTracerProvider(tp)

	log.Info("tracing_configured", map[string]any{
		"tracing_enabled": true,
		"service_name":    s.ServiceName,
		"otlp_protocol":   s.Protocol,
		"otlp_endpoint":   s.Endpoint,
		"sampler":         s.Sampler,
		"sampler_arg":     s.SamplerArg,
	})
	return tp.Shutdown, nil
}

// newExporter builds the OTLP client; both clients read their endpoint and
// headers from the environment themselves.
func newExporter(ctx context.Context, protocol string) (*otlptrace.Exporter, error) {
	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
}

func (s Settings) sampler() trace.Sampler {
	switch s.Sampler {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(parseRatio(s.SamplerArg))
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(parseRatio(s.SamplerArg)))
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}

func noopShutdown(context.Context) error { return nil }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseRatio reads a sampling ratio, defaulting to 1.0 when arg is not a number in [0, 1].
func parseRatio(arg string) float64 {
	ratio, err := strconv.ParseFloat(arg, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1.0
	}
	return ratio
}
