// Package telemetry initializes the process-wide OpenTelemetry SDK: the
// OTLP gRPc trace and metric exporters for the host's own spans and
// metrics. The guest telemetry bridge (internal/capabilities/otelcap) does
// not export through them; it dials the collector itself and shares only
// the Resource built here.
//
// Mirrors the teacher's internal/telemetry/telemetry.go, extended with a
// metrics pipeline since spec.md §4.7 requires both ("Metrics follow the
// same pattern via the OTLP metrics endpoint").
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/wasmgate/wasmgate/internal/config"
)

// Telemetry holds the process-wide providers for host telemetry and the
// process Resource the guest bridge also uses.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Resource       *resource.Resource
	Shutdown       func(context.Context) error
}

// processResource is set once at startup and returned by Resource — the Go
// analogue of the original's warp_otel::init::resource() accessor. The
// otelcap bridge receives the same resource through Telemetry.Resource.
var processResource atomic.Pointer[resource.Resource]

// Resource returns the process resource set by Init, or nil if telemetry
// was never initialized (in which case the bridge must skip export, per
// spec.md §4.7 step 1's Rust equivalent).
func Resource() *resource.Resource {
	return processResource.Load()
}

// Init sets up OpenTelemetry tracing and metrics with OTLP gRPC exporters.
// Returns a no-op shutdown when telemetry is disabled (OTEL_GRPC_URL unset),
// matching spec.md §6's "unset; disables export" default.
func Init(cfg config.TelemetryConfig, component string) (*Telemetry, error) {
	if !cfg.Enabled {
		log.Info().Msg("telemetry disabled (OTEL_GRPC_URL not set)")
		return &Telemetry{Shutdown: func(context.Context) error { return nil }}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", component),
		),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}
	processResource.Store(res)

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.GRPCURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.GRPCURL),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	log.Info().
		Str("endpoint", cfg.GRPCURL).
		Str("component", component).
		Msg("OpenTelemetry initialized")

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Resource:       res,
		Shutdown: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return err
			}
			return mp.Shutdown(ctx)
		},
	}, nil
}
