package ingest

import "context"

// EventTypeRegistry resolves event type configuration by name.
type EventTypeRegistry interface {
	// GetConfig returns the configuration of the named event type. found is
	// false when the type does not exist; err is reserved for backend failures.
	GetConfig(ctx context.Context, name string) (eventType EventType, found bool, err error)
}

// EventTypeLister enumerates every known event type. It is used to rebuild
// in-memory state on startup.
type EventTypeLister interface {
	List(ctx context.Context) ([]EventType, error)
}
