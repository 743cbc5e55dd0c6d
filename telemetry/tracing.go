package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gomind-labs/execrt/core"
)

// Provider wires OpenTelemetry tracing for the router: exactly one
// span per routed intent (per the determinism guarantee that tracing
// never drives routing decisions, only observes them). Candidate
// attempts get no spans of their own, and the WAL, recorder and
// recovery packages start no spans.
//
// Two exporters are supported: OTLP/gRPC against a collector in
// production, and a pretty stdout exporter when development mode is
// enabled so a single `execrt route` invocation prints its own trace.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
}

// NewProvider builds a Provider from telemetry/development config. If
// telemetry is disabled it returns a Provider backed by OTel's no-op
// tracer so callers never need a nil check.
func NewProvider(ctx context.Context, telCfg core.TelemetryConfig, devCfg core.DevelopmentConfig, logger core.Logger) (*Provider, func(context.Context) error, error) {
	if !telCfg.Enabled {
		tp := trace.NewNoopTracerProvider()
		return &Provider{tracer: tp.Tracer("execrt")}, func(context.Context) error { return nil }, nil
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceNameKey.String(telCfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nil, core.NewFrameworkError("telemetry.NewProvider", "configuration", err)
	}

	var exporter sdktrace.SpanExporter
	if devCfg.Enabled || devCfg.DebugLogging {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, core.NewFrameworkError("telemetry.NewProvider", "configuration", err)
		}
		logger.Info("telemetry exporter selected", map[string]interface{}{"exporter": "stdout"})
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(telCfg.Endpoint)}
		if telCfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, core.NewFrameworkError("telemetry.NewProvider", "transport", err).WithID(telCfg.Endpoint)
		}
		logger.Info("telemetry exporter selected", map[string]interface{}{"exporter": "otlp-grpc", "endpoint": telCfg.Endpoint})
	}

	sampler := sdktrace.TraceIDRatioBased(telCfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	p := &Provider{tracerProvider: tp, tracer: tp.Tracer("execrt")}
	shutdown := func(shutdownCtx context.Context) error {
		c, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(c); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
		return nil
	}
	return p, shutdown, nil
}

// StartSpan starts a span, associating it with the given intent name
// and any additional attributes the caller supplies as key/value
// string pairs (always an even count).
func (p *Provider) StartSpan(ctx context.Context, name string, kvs ...string) (context.Context, trace.Span) {
	attrs := make([]trace.SpanStartOption, 0, 1)
	if len(kvs) > 0 {
		attrs = append(attrs, trace.WithAttributes(stringAttributes(kvs)...))
	}
	return p.tracer.Start(ctx, name, attrs...)
}

// Tracer exposes the underlying trace.Tracer for callers that need
// finer control than StartSpan provides.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

func stringAttributes(kvs []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		attrs = append(attrs, attribute.String(kvs[i], kvs[i+1]))
	}
	return attrs
}
