package ingest

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// RawEvent is one event exactly as it was submitted by a producer.
type RawEvent []byte

// Event is a decoded event: a JSON object with arbitrary JSON-typed values.
// Producers put routing information under the "metadata" object.
type Event map[string]any

const (
	// MetadataField is the top-level object holding event metadata.
	MetadataField = "metadata"
	// EIDField is the event identifier inside the metadata object.
	EIDField = "eid"
	// EventTypeField names the event type inside the metadata object.
	EventTypeField = "event_type"
	// ReceivedAtField is set by enrichment inside the metadata object.
	ReceivedAtField = "received_at"
	// PartitionField carries a producer-chosen partition inside the metadata object.
	PartitionField = "partition"
)

// ParseEvent decodes a raw event. Anything that is not a JSON object is rejected.
func ParseEvent(raw RawEvent) (Event, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("failed to parse event: empty payload")
	}

	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("failed to parse event: not a JSON object")
	}

	return e, nil
}

// Metadata returns the metadata object, if the event carries one.
func (e Event) Metadata() (map[string]any, bool) {
	m, ok := e[MetadataField].(map[string]any)
	return m, ok
}

// EID returns metadata.eid when it is a non-empty string.
func (e Event) EID() string {
	return e.metadataString(EIDField)
}

// EventType returns metadata.event_type when it is a non-empty string.
func (e Event) EventType() string {
	return e.metadataString(EventTypeField)
}

func (e Event) metadataString(field string) string {
	m, ok := e.Metadata()
	if !ok {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

// Lookup resolves a dot separated path ("order.customer.id") through nested
// objects. The second result is false when any segment is missing.
func (e Event) Lookup(path string) (any, bool) {
	var cur any = map[string]any(e)
	for _, segment := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// Clone returns a deep copy so that enrichment never mutates the submitted event.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	return Event(cloneValue(map[string]any(e)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
