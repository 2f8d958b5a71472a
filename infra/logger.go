package infra

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/opencmp/cmp-orchestrator/config"
)

// LoggerClient wraps a slog logger bridged to the OTLP collector. When no
// collector endpoint is configured it falls back to JSON on stdout.
type LoggerClient struct {
	Logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

func InitLoggerClient(cfg *config.EnvConfig) *LoggerClient {
	if cfg.Telemetry.OTLPEndpoint == "" {
		return &LoggerClient{
			Logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		}
	}

	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint),
	}
	if cfg.Environment.Mode == "development" {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize OTLP log exporter: %v", err))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.Telemetry.ServiceName)),
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to build telemetry resource: %v", err))
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(provider)

	return &LoggerClient{
		Logger:   otelslog.NewLogger(cfg.Telemetry.ServiceName, otelslog.WithLoggerProvider(provider)),
		provider: provider,
	}
}

func (l *LoggerClient) InfoWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.Logger.InfoContext(ctx, fmt.Sprintf(format, args...))
}

func (l *LoggerClient) WarningWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.Logger.WarnContext(ctx, fmt.Sprintf(format, args...))
}

func (l *LoggerClient) ErrorWithContextf(ctx context.Context, err error, format string, args ...interface{}) {
	if err != nil {
		l.Logger.ErrorContext(ctx, fmt.Sprintf(format, args...), slog.String("error", err.Error()))
		return
	}
	l.Logger.ErrorContext(ctx, fmt.Sprintf(format, args...))
}

// Shutdown flushes buffered log records.
func (l *LoggerClient) Shutdown(ctx context.Context) error {
	if l.provider == nil {
		return nil
	}
	return l.provider.Shutdown(ctx)
}
