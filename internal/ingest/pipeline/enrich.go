package pipeline

import (
	"fmt"
	"time"

	"ingest/internal/id"
	"ingest/internal/ingest"
)

// Enricher applies an event type's enrichment strategies. It never mutates
// its input; enriched events are deep copies.
type Enricher struct {
	eids id.Generator
	now  func() time.Time
}

// NewEnricher uses eids for missing event ids and now for received_at.
func NewEnricher(eids id.Generator, now func() time.Time) *Enricher {
	return &Enricher{eids: eids, now: now}
}

func (e *Enricher) Enrich(event ingest.Event, eventType ingest.EventType) (ingest.Event, error) {
	if eventType.RequiresMetadata() {
		if _, ok := event.Metadata(); !ok {
			return nil, ingest.NewError(ingest.KindEnrichmentFailed,
				fmt.Sprintf("%s events must carry a metadata object", eventType.Category))
		}
	}
	if len(eventType.EnrichmentStrategies) == 0 {
		return event, nil
	}

	out := event.Clone()
	for _, s := range eventType.EnrichmentStrategies {
		switch s {
		case ingest.EnrichmentMetadata:
			if err := e.enrichMetadata(out, eventType); err != nil {
				return nil, err
			}
		default:
			return nil, ingest.NewError(ingest.KindEnrichmentFailed, fmt.Sprintf("unknown enrichment strategy %q", s))
		}
	}
	return out, nil
}

func (e *Enricher) enrichMetadata(event ingest.Event, eventType ingest.EventType) error {
	var meta map[string]any
	switch m := event[ingest.MetadataField].(type) {
	case nil:
		meta = make(map[string]any, 3)
	case map[string]any:
		meta = m
	default:
		return ingest.NewError(ingest.KindEnrichmentFailed, fmt.Sprintf("metadata must be an object, got %T", m))
	}

	if eid, _ := meta[ingest.EIDField].(string); eid == "" {
		meta[ingest.EIDField] = e.eids.New()
	}
	meta[ingest.ReceivedAtField] = e.now().UTC().Format(time.RFC3339Nano)
	meta[ingest.EventTypeField] = eventType.Name

	event[ingest.MetadataField] = meta
	return nil
}
