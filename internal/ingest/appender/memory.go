// Package appender provides ingest.LogAppender implementations for the
// supported log backends, plus decorators for metrics, tracing and rate
// limiting.
package appender

import (
	"context"
	"sort"
	"sync"

	"ingest/internal/ingest"
)

// Memory keeps one in-process log per partition. It is meant for local runs
// and tests.
type Memory struct {
	mu   sync.Mutex
	logs map[ingest.PartitionKey][]ingest.Event
}

var _ ingest.LogAppender = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{logs: make(map[ingest.PartitionKey][]ingest.Event)}
}

func (m *Memory) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	if err := ctx.Err(); err != nil {
		return ingest.Transient(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[key] = append(m.logs[key], event.Clone())
	return nil
}

// Log returns the events appended to key, oldest first.
func (m *Memory) Log(key ingest.PartitionKey) []ingest.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ingest.Event(nil), m.logs[key]...)
}

// Keys lists every partition with at least one event.
func (m *Memory) Keys() []ingest.PartitionKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]ingest.PartitionKey, 0, len(m.logs))
	for k := range m.logs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len is the total number of stored events.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, l := range m.logs {
		n += len(l)
	}
	return n
}
