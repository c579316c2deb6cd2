package appender

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"ingest/internal/ingest"
	"ingest/internal/ingest/tracing"
)

// TracedAppender wraps an ingest.LogAppender with distributed tracing
// Layer order: TracedAppender -> MetricsAppender -> RateLimited -> backend
type TracedAppender struct {
	appender ingest.LogAppender
	tracer   *tracing.Tracer
}

func NewTracedAppender(appender ingest.LogAppender, tracer *tracing.Tracer) ingest.LogAppender {
	return &TracedAppender{
		appender: appender,
		tracer:   tracer,
	}
}

func (a *TracedAppender) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	ctx, span := a.tracer.StartSpan(ctx, "appender.publish")
	defer span.End()

	span.SetAttributes(a.tracer.PublishAttributes(key, event.EID())...)

	err := a.appender.Publish(ctx, key, event)
	if err != nil {
		a.tracer.RecordError(ctx, err)
		span.SetAttributes(a.tracer.ErrorAttributes(err)...)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}
