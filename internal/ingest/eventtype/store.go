// Package eventtype provides the sources of event type configuration: an
// in-memory registry fed from a file, and a Couchbase backed store.
package eventtype

import (
	"context"

	"ingest/internal/ingest"
)

// Store resolves, enumerates and saves event types.
type Store interface {
	ingest.EventTypeRegistry
	ingest.EventTypeLister
	Put(ctx context.Context, eventType ingest.EventType) error
}
