package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is "stdout" or "none"
	Exporter     string
	SamplingRate float64
	// OutputPath receives the exported spans; empty writes to stderr since
	// stdout may carry unloaded data
	OutputPath   string
	BatchTimeout time.Duration
}

// DefaultTracingConfig returns tracing disabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "cqlloader",
		ServiceVersion: "dev",
		Exporter:       "none",
		SamplingRate:   1.0,
		BatchTimeout:   5 * time.Second,
	}
}

var (
	mu       sync.Mutex
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer("cqlloader")
	provider *sdktrace.TracerProvider
	output   io.Closer
)

// Initialize installs the tracer provider described by config. With the
// "none" exporter spans are dropped.
func Initialize(config TracingConfig) error {
	if config.Exporter == "" || config.Exporter == "none" {
		return nil
	}
	if config.Exporter != "stdout" {
		return fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if config.OutputPath != "" {
		f, err := os.Create(config.OutputPath)
		if err != nil {
			return fmt.Errorf("failed to open trace output: %w", err)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}
	return install(config, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)), closer)
}

// InitializeWithProcessor installs a provider exporting through sp.
func InitializeWithProcessor(config TracingConfig, sp sdktrace.SpanProcessor) error {
	return install(config, sdktrace.WithSpanProcessor(sp), nil)
}

func install(config TracingConfig, export sdktrace.TracerProviderOption, closer io.Closer) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		export,
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	mu.Lock()
	defer mu.Unlock()
	provider = tp
	output = closer
	tracer = tp.Tracer(config.ServiceName)
	return nil
}

// Tracer returns the installed tracer, a no-op one before Initialize.
func Tracer() trace.Tracer {
	mu.Lock()
	defer mu.Unlock()
	return tracer
}

// Shutdown flushes pending spans and restores the no-op tracer.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp, closer := provider, output
	provider, output = nil, nil
	tracer = noop.NewTracerProvider().Tracer("cqlloader")
	mu.Unlock()

	var errs []error
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace output: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
