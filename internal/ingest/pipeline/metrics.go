package pipeline

import (
	"context"
	"time"

	"ingest/internal/ingest"
	"ingest/internal/ingest/metrics"
)

// MetricsProcessor wraps an ingest.BatchProcessor with metrics collection
type MetricsProcessor struct {
	processor ingest.BatchProcessor
	registry  *metrics.Registry
}

func NewMetricsProcessor(processor ingest.BatchProcessor, registry *metrics.Registry) ingest.BatchProcessor {
	return &MetricsProcessor{
		processor: processor,
		registry:  registry,
	}
}

func (p *MetricsProcessor) ProcessBatch(ctx context.Context, events []ingest.RawEvent) (ingest.BatchResult, error) {
	start := time.Now()

	result, err := p.processor.ProcessBatch(ctx, events)
	p.registry.RecordBatch(len(events), result, time.Since(start), err)

	return result, err
}
