// Package otelx installs the global OpenTelemetry tracer provider and
// propagators for the process.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/keithlinneman/sitestore/internal/xerrors"
)

type Options struct {
	Enabled bool
	// Endpoint is the collector host:port.
	Endpoint string
	Insecure bool
	// Sample is the ratio of root traces kept, clamped to [0,1].
	Sample    float64
	Service   string
	Component string
	Version   string
}

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(context.Context) error

const exporterDialTimeout = 3 * time.Second

// Init sets the global tracer provider. With tracing disabled it still
// installs an SDK provider without exporters so spans stay valid in-process
// and trace ids still reach the logs.
func Init(ctx context.Context, o Options) (ShutdownFunc, error) {
	setPropagator()

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if o.Endpoint == "" {
		return func(context.Context) error { return nil }, xerrors.New("otelx: tracing enabled without an endpoint")
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, exporterOptions(o)...)
	if err != nil {
		return func(context.Context) error { return nil }, xerrors.Wrapf(err, "otelx: otlp exporter %s", o.Endpoint)
	}

	// resource detection failures are partial; keep whatever was detected
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(o)),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler(o.Sample)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

func exporterOptions(o Options) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	// system roots, server name taken from the endpoint
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func serviceName(o Options) string {
	switch {
	case o.Service == "":
		return o.Component
	case o.Component == "":
		return o.Service
	default:
		return o.Service + "." + o.Component
	}
}
