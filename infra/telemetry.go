package infra

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/opencmp/cmp-orchestrator/config"
)

// TelemetryClient owns the trace and metric providers. Telemetry is
// optional: without an OTLP endpoint both providers stay nil and Shutdown
// is a no-op.
type TelemetryClient struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

func InitTelemetryClient(cfg *config.EnvConfig) *TelemetryClient {
	if cfg.Telemetry.OTLPEndpoint == "" {
		return &TelemetryClient{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.Telemetry.ServiceName)),
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to build telemetry resource: %v", err))
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint)}
	if cfg.Environment.Mode == "development" {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(traceOpts...))
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize OTLP trace exporter: %v", err))
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize OTLP metric exporter: %v", err))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		panic(fmt.Sprintf("Failed to start runtime instrumentation: %v", err))
	}

	return &TelemetryClient{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
	}
}

func (t *TelemetryClient) Shutdown(ctx context.Context) error {
	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if t.MeterProvider != nil {
		return t.MeterProvider.Shutdown(ctx)
	}
	return nil
}
