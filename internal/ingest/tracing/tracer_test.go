package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ingest/internal/ingest"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tr, cleanup, err := NewTracer(Config{ServiceName: "ingest"})
	require.NoError(t, err)
	require.NoError(t, cleanup(context.Background()))

	_, span := tr.StartSpan(context.Background(), "x")
	require.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestRecordError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tr := NewTracerFromProvider("test", sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	ctx, span := tr.StartSpan(context.Background(), "publish")
	err := ingest.Transient(errors.New("down"))
	tr.RecordError(ctx, err)
	span.SetAttributes(tr.ErrorAttributes(err)...)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Contains(t, ended[0].Attributes(), attribute.String("error.kind", "publish_transient"))
	require.Contains(t, ended[0].Attributes(), attribute.Bool("error.retryable", true))
}

func TestResultAttributes(t *testing.T) {
	tr := NewTracerFromProvider("test", sdktrace.NewTracerProvider())
	attrs := tr.ResultAttributes(ingest.BatchResult{
		BatchID: "b",
		Status:  ingest.BatchAllFailed,
		Items:   []ingest.ItemResponse{{Status: ingest.StatusFailed}, {Status: ingest.StatusAborted}},
	})
	require.Contains(t, attrs, attribute.String("ingest.batch_status", "all_failed"))
	require.Contains(t, attrs, attribute.Int("ingest.items_failed", 1))
	require.Contains(t, attrs, attribute.Int("ingest.items_aborted", 1))
	require.Equal(t, []attribute.KeyValue{attribute.Bool("error", false)}, tr.ErrorAttributes(nil))
}
