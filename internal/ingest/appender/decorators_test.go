package appender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ingest/internal/ingest"
	"ingest/internal/ingest/metrics"
	"ingest/internal/ingest/tracing"
)

type appenderFunc func(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error

func (f appenderFunc) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	return f(ctx, key, event)
}

type waitRecorder struct{ waits []time.Duration }

func (w *waitRecorder) RecordRateLimitWait(d time.Duration) { w.waits = append(w.waits, d) }

var ordersKey = ingest.PartitionKey{EventType: "orders", Partition: "0"}

func TestRateLimitedDisabled(t *testing.T) {
	inner := NewMemory()
	require.Same(t, ingest.LogAppender(inner), NewRateLimited(inner, RateLimitConfig{}, nil))
}

func TestRateLimitedWaits(t *testing.T) {
	inner := NewMemory()
	rec := &waitRecorder{}
	a := NewRateLimited(inner, RateLimitConfig{PerSecond: 1000, Burst: 1}, rec)

	for range 3 {
		require.NoError(t, a.Publish(context.Background(), ordersKey, ingest.Event{}))
	}
	require.Equal(t, 3, inner.Len())
	require.Len(t, rec.waits, 3)
}

func TestRateLimitedDeadlineIsTransient(t *testing.T) {
	inner := NewMemory()
	a := NewRateLimited(inner, RateLimitConfig{PerSecond: 0.001, Burst: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Publish(ctx, ordersKey, ingest.Event{}))
	err := a.Publish(ctx, ordersKey, ingest.Event{})
	require.ErrorIs(t, err, ingest.ErrPublishTransient)
	require.Equal(t, 1, inner.Len())
}

func TestMetricsAppender(t *testing.T) {
	registry := metrics.NewRegistry()
	fail := errors.New("down")
	calls := 0
	a := NewMetricsAppender(appenderFunc(func(context.Context, ingest.PartitionKey, ingest.Event) error {
		calls++
		if calls == 2 {
			return ingest.Transient(fail)
		}
		return nil
	}), registry)

	require.NoError(t, a.Publish(context.Background(), ordersKey, ingest.Event{}))
	require.ErrorIs(t, a.Publish(context.Background(), ordersKey, ingest.Event{}), fail)

	count, err := testutil.GatherAndCount(registry.Gatherer(), "ingest_publish_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestTracedAppender(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := tracing.NewTracerFromProvider("test", sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	a := NewTracedAppender(appenderFunc(func(context.Context, ingest.PartitionKey, ingest.Event) error {
		return ingest.Permanent(errors.New("rejected"))
	}), tracer)

	err := a.Publish(context.Background(), ordersKey, ingest.Event{"metadata": map[string]any{"eid": "e-1"}})
	require.ErrorIs(t, err, ingest.ErrPublishPermanent)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "appender.publish", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Contains(t, ended[0].Attributes(), attribute.String("ingest.eid", "e-1"))
	require.Contains(t, ended[0].Attributes(), attribute.String("error.kind", "publish_permanent"))
}
