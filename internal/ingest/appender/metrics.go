package appender

import (
	"context"
	"time"

	"ingest/internal/ingest"
	"ingest/internal/ingest/metrics"
)

// MetricsAppender wraps an ingest.LogAppender with metrics collection
type MetricsAppender struct {
	appender ingest.LogAppender
	registry *metrics.Registry
}

func NewMetricsAppender(appender ingest.LogAppender, registry *metrics.Registry) ingest.LogAppender {
	return &MetricsAppender{
		appender: appender,
		registry: registry,
	}
}

func (a *MetricsAppender) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	start := time.Now()

	err := a.appender.Publish(ctx, key, event)
	a.registry.RecordPublish(key.EventType, time.Since(start), err)

	return err
}
