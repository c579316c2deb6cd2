package eventtype

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ingest/internal/ingest"
)

// Static keeps event types in memory.
type Static struct {
	mu    sync.RWMutex
	types map[string]ingest.EventType
}

var _ Store = (*Static)(nil)

// NewStatic rejects invalid and duplicate event types.
func NewStatic(types ...ingest.EventType) (*Static, error) {
	s := &Static{types: make(map[string]ingest.EventType, len(types))}
	for _, et := range types {
		if err := et.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.types[et.Name]; ok {
			return nil, fmt.Errorf("event type %s defined twice", et.Name)
		}
		s.types[et.Name] = et
	}
	return s, nil
}

func (s *Static) GetConfig(_ context.Context, name string) (ingest.EventType, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.types[name]
	return et, ok, nil
}

// List returns every event type ordered by name.
func (s *Static) List(context.Context) ([]ingest.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ingest.EventType, 0, len(s.types))
	for _, et := range s.types {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put adds or replaces an event type.
func (s *Static) Put(_ context.Context, et ingest.EventType) error {
	if err := et.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[et.Name] = et
	return nil
}
