package eventtype

import (
	"context"
	"time"

	"ingest/internal/ingest"
	"ingest/internal/ingest/metrics"
)

// MetricsStore wraps a Store with metrics collection
type MetricsStore struct {
	store    Store
	registry *metrics.Registry
}

func NewMetricsStore(store Store, registry *metrics.Registry) Store {
	return &MetricsStore{
		store:    store,
		registry: registry,
	}
}

func (s *MetricsStore) GetConfig(ctx context.Context, name string) (ingest.EventType, bool, error) {
	start := time.Now()

	et, found, err := s.store.GetConfig(ctx, name)
	s.registry.RecordDatabaseOperation("get_event_type", time.Since(start), err)

	return et, found, err
}

func (s *MetricsStore) List(ctx context.Context) ([]ingest.EventType, error) {
	start := time.Now()

	types, err := s.store.List(ctx)
	s.registry.RecordDatabaseOperation("list_event_types", time.Since(start), err)

	return types, err
}

func (s *MetricsStore) Put(ctx context.Context, et ingest.EventType) error {
	start := time.Now()

	err := s.store.Put(ctx, et)
	s.registry.RecordDatabaseOperation("put_event_type", time.Since(start), err)

	return err
}
