package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ingest/internal/ingest"
	"ingest/internal/ingest/metrics"
	"ingest/internal/ingest/tracing"
)

func TestDecoratedProcessor(t *testing.T) {
	h := newHarness(t)
	registry := metrics.NewRegistry()
	sr := tracetest.NewSpanRecorder()
	tracer := tracing.NewTracerFromProvider("test", sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	processor := NewTracedProcessor(NewMetricsProcessor(h.pipeline(t), registry), tracer)

	result, err := processor.ProcessBatch(context.Background(), []ingest.RawEvent{
		audit("e-1", 1),
		ingest.RawEvent(`{"metadata":{"event_type":"nope"}}`),
	})
	require.NoError(t, err)
	require.Equal(t, ingest.BatchPartialSuccess, result.Status)

	expected := `
# HELP ingest_batch_total Total number of processed batches
# TYPE ingest_batch_total counter
ingest_batch_total{status="partial_success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry.Gatherer(), strings.NewReader(expected), "ingest_batch_total"))

	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "pipeline.process_batch", ended[0].Name())
	require.Contains(t, ended[0].Attributes(), attribute.Int("ingest.batch_size", 2))
	require.Contains(t, ended[0].Attributes(), attribute.String("ingest.batch_status", "partial_success"))
}
