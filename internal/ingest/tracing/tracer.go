package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ingest/internal/ingest"
)

// Config holds configuration parameters for OpenTelemetry tracing setup.
// With Enabled unset the tracer is a no-op and nothing is exported.
type Config struct {
	Enabled        bool          `env:"TRACING_ENABLED" envDefault:"false"`
	ServiceName    string        `env:"TRACING_SERVICE_NAME" envDefault:"ingest"`
	ServiceVersion string        `env:"TRACING_SERVICE_VERSION" envDefault:"1.0.0"`
	Endpoint       string        `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate     float64       `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
	BatchTimeout   time.Duration `env:"TRACING_BATCH_TIMEOUT" envDefault:"1s"`
	ExportTimeout  time.Duration `env:"TRACING_EXPORT_TIMEOUT" envDefault:"30s"`
	MaxExportBatch int           `env:"TRACING_MAX_EXPORT_BATCH" envDefault:"512"`
	MaxQueueSize   int           `env:"TRACING_MAX_QUEUE_SIZE" envDefault:"2048"`
}

// Tracer wraps the OpenTelemetry tracer with helpers for ingestion spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates and configures a new OpenTelemetry tracer with OTLP HTTP export.
// The returned cleanup flushes pending spans and shuts the provider down.
func NewTracer(config Config) (*Tracer, func(context.Context) error, error) {
	if !config.Enabled {
		return NewTracerFromProvider(config.ServiceName, noop.NewTracerProvider()), func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(config.Endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(config.ExportTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	processor := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(config.BatchTimeout),
		sdktrace.WithExportTimeout(config.ExportTimeout),
		sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
		sdktrace.WithMaxQueueSize(config.MaxQueueSize),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cleanup := func(ctx context.Context) error {
		if err := tp.ForceFlush(ctx); err != nil {
			return fmt.Errorf("failed to flush traces: %w", err)
		}
		return tp.Shutdown(ctx)
	}

	return NewTracerFromProvider(config.ServiceName, tp), cleanup, nil
}

// NewTracerFromProvider builds a Tracer on an existing provider.
func NewTracerFromProvider(name string, tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

func (t *Tracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// RecordError records err on the active span and marks it failed.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// BatchAttributes describe a submitted batch.
func (t *Tracer) BatchAttributes(size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("ingest.batch_size", size),
	}
}

// ResultAttributes summarize a processed batch.
func (t *Tracer) ResultAttributes(result ingest.BatchResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ingest.batch_id", result.BatchID),
		attribute.String("ingest.batch_status", string(result.Status)),
		attribute.Int("ingest.items_succeeded", result.Count(ingest.StatusSuccess)),
		attribute.Int("ingest.items_failed", result.Count(ingest.StatusFailed)),
		attribute.Int("ingest.items_aborted", result.Count(ingest.StatusAborted)),
	}
}

// PublishAttributes identify the log an event is appended to.
func (t *Tracer) PublishAttributes(key ingest.PartitionKey, eid string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ingest.event_type", key.EventType),
		attribute.String("ingest.partition", key.Partition),
		attribute.String("ingest.eid", eid),
	}
}

// DatabaseAttributes creates attributes for database operations.
func (t *Tracer) DatabaseAttributes(operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.system", "couchbase"),
	}
}

// ErrorAttributes creates attributes based on error state.
func (t *Tracer) ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{
			attribute.Bool("error", false),
		}
	}
	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String("error.kind", string(ingest.KindOf(err))),
		attribute.Bool("error.retryable", ingest.IsRetryable(err)),
		attribute.String("error.message", err.Error()),
	}
}
