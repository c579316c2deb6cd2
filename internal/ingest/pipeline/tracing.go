package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"ingest/internal/ingest"
	"ingest/internal/ingest/tracing"
)

// TracedProcessor wraps an ingest.BatchProcessor with distributed tracing
// Layer order: TracedProcessor -> MetricsProcessor -> Pipeline
type TracedProcessor struct {
	processor ingest.BatchProcessor
	tracer    *tracing.Tracer
}

func NewTracedProcessor(processor ingest.BatchProcessor, tracer *tracing.Tracer) ingest.BatchProcessor {
	return &TracedProcessor{
		processor: processor,
		tracer:    tracer,
	}
}

func (p *TracedProcessor) ProcessBatch(ctx context.Context, events []ingest.RawEvent) (ingest.BatchResult, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.process_batch")
	defer span.End()

	span.SetAttributes(p.tracer.BatchAttributes(len(events))...)

	result, err := p.processor.ProcessBatch(ctx, events)
	if err != nil {
		p.tracer.RecordError(ctx, err)
	} else {
		span.SetAttributes(p.tracer.ResultAttributes(result)...)
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(p.tracer.ErrorAttributes(err)...)

	return result, err
}
