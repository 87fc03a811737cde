// Package observability provides OpenTelemetry-based tracing and metrics for
// promoguard's two guarded paths: the promotion gate and the caption editor.
//
// A nil *Provider is valid and records nothing, so components can take one
// unconditionally.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "promoguard"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g., "localhost:4317" for gRPC
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // How long to wait before sending batched spans
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns the defaults used when no config is supplied.
// Export is off until explicitly enabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "promoguard",
		ServiceVersion: "0.3.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider manages OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	gateAttempts    metric.Int64Counter
	analysisResults metric.Int64Counter
	storageFailures metric.Int64Counter
	durationHist    metric.Float64Histogram
}

// New creates a new observability provider. When config.Enabled is false the
// provider is inert: spans go to the global (no-op) tracer and no instruments
// are registered.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.DebugContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

// NewWithMeterProvider builds a provider around an existing meter provider.
// Used by tests with a manual reader and by hosts that own their own SDK setup.
func NewWithMeterProvider(mp *sdkmetric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config:        DefaultConfig(),
		meterProvider: mp,
		meter:         mp.Meter(instrumentationName),
		logger:        slog.Default().With("component", "observability"),
	}
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.gateAttempts, err = p.meter.Int64Counter("promoguard.gate.attempts",
		metric.WithDescription("Promotion gate attempts by outcome and skip reason"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	p.analysisResults, err = p.meter.Int64Counter("promoguard.analysis.results",
		metric.WithDescription("Caption analysis results by style and failure kind"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return err
	}

	p.storageFailures, err = p.meter.Int64Counter("promoguard.storage.failures",
		metric.WithDescription("Swallowed durable-state read/write failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	p.durationHist, err = p.meter.Float64Histogram("promoguard.operation.duration",
		metric.WithDescription("Guarded operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// RecordGateAttempt counts one gate evaluation.
func (p *Provider) RecordGateAttempt(ctx context.Context, status, reason string) {
	if p == nil || p.gateAttempts == nil {
		return
	}
	p.gateAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", status),
		attribute.String("reason", reason),
	))
}

// RecordAnalysisResult counts one editor decision.
func (p *Provider) RecordAnalysisResult(ctx context.Context, style, failureKind string) {
	if p == nil || p.analysisResults == nil {
		return
	}
	p.analysisResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("style", style),
		attribute.String("failure_kind", failureKind),
	))
}

// RecordStorageFailure counts a read or write error that was logged and
// swallowed.
func (p *Provider) RecordStorageFailure(ctx context.Context, store, op string) {
	if p == nil || p.storageFailures == nil {
		return
	}
	p.storageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("op", op),
	))
}

// TrackOperation starts a span and returns a function that ends it and
// records the duration.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if p != nil && p.durationHist != nil {
			all := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(all...))
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
