package eventtype

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ingest/internal/ingest"
	"ingest/internal/ingest/tracing"
)

// TracedStore wraps a Store with distributed tracing
// Layer order: TracedStore -> MetricsStore -> CouchbaseStore
type TracedStore struct {
	store  Store
	tracer *tracing.Tracer
}

func NewTracedStore(store Store, tracer *tracing.Tracer) Store {
	return &TracedStore{
		store:  store,
		tracer: tracer,
	}
}

func (s *TracedStore) GetConfig(ctx context.Context, name string) (ingest.EventType, bool, error) {
	ctx, span := s.tracer.StartSpan(ctx, "eventtype.get")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("get_event_type")...)
	span.SetAttributes(attribute.String("ingest.event_type", name))

	et, found, err := s.store.GetConfig(ctx, name)
	s.finish(ctx, span, err)
	span.SetAttributes(attribute.Bool("ingest.event_type_found", found))

	return et, found, err
}

func (s *TracedStore) List(ctx context.Context) ([]ingest.EventType, error) {
	ctx, span := s.tracer.StartSpan(ctx, "eventtype.list")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("list_event_types")...)

	types, err := s.store.List(ctx)
	s.finish(ctx, span, err)
	span.SetAttributes(attribute.Int("ingest.event_type_count", len(types)))

	return types, err
}

func (s *TracedStore) Put(ctx context.Context, et ingest.EventType) error {
	ctx, span := s.tracer.StartSpan(ctx, "eventtype.put")
	defer span.End()

	span.SetAttributes(s.tracer.DatabaseAttributes("put_event_type")...)
	span.SetAttributes(attribute.String("ingest.event_type", et.Name))

	err := s.store.Put(ctx, et)
	s.finish(ctx, span, err)

	return err
}

func (s *TracedStore) finish(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		s.tracer.RecordError(ctx, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}
