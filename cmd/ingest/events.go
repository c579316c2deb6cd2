package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/goccy/go-json"

	"ingest/internal/id"
	"ingest/internal/ingest"
)

// defaultEventTypes is used when no definitions file is available.
func defaultEventTypes() []ingest.EventType {
	return []ingest.EventType{
		{
			Name:                 "order.created",
			OwningApplication:    "shop",
			Category:             ingest.CategoryBusiness,
			PartitionStrategy:    ingest.PartitionHash,
			PartitionKeyFields:   []string{"customer_id"},
			Partitions:           8,
			EnrichmentStrategies: []ingest.EnrichmentStrategy{ingest.EnrichmentMetadata},
			ValidationStrategies: []ingest.ValidationStrategyConfiguration{
				{StrategyName: "required-fields", Params: map[string]any{"fields": []any{"order_id", "customer_id", "amount"}}},
				{StrategyName: "field-range", Params: map[string]any{"field": "amount", "min": "0.01", "max": "10000"}},
				{StrategyName: "field-format", Params: map[string]any{"rules": map[string]any{"currency": "required,iso4217"}}},
			},
		},
		{
			Name:                 "audit.log",
			OwningApplication:    "platform",
			Category:             ingest.CategoryUndefined,
			PartitionStrategy:    ingest.PartitionSingle,
			EnrichmentStrategies: []ingest.EnrichmentStrategy{ingest.EnrichmentMetadata},
		},
	}
}

type generator struct {
	invalidRatio float64
	seq          int
}

func newGenerator(invalidRatio float64) *generator {
	return &generator{invalidRatio: invalidRatio}
}

// batch generates order and audit events. Roughly invalidRatio of them are
// broken in one of several ways.
func (g *generator) batch(size int) []ingest.RawEvent {
	customers := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	currencies := []string{"EUR", "USD", "GBP"}
	events := make([]ingest.RawEvent, 0, size)

	for range size {
		g.seq++

		var e map[string]any
		if rand.IntN(10) == 0 {
			e = map[string]any{
				"metadata": map[string]any{"eid": id.UUID.New(), "event_type": "audit.log"},
				"action":   "order.viewed",
				"actor":    customers[rand.IntN(len(customers))],
			}
		} else {
			e = map[string]any{
				"metadata":    map[string]any{"eid": id.UUID.New(), "event_type": "order.created"},
				"order_id":    fmt.Sprintf("ORD-%06d", g.seq),
				"customer_id": customers[rand.IntN(len(customers))],
				"amount":      10.0 + rand.Float64()*990.0,
				"currency":    currencies[rand.IntN(len(currencies))],
				"timestamp":   time.Now().Format(time.RFC3339),
			}
		}

		if rand.Float64() < g.invalidRatio {
			if raw := corrupt(e); raw != nil {
				events = append(events, raw)
				continue
			}
		}

		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		events = append(events, b)
	}

	return events
}

// corrupt breaks an event. A non-nil result replaces the event as-is.
func corrupt(e map[string]any) ingest.RawEvent {
	switch rand.IntN(5) {
	case 0:
		e["metadata"].(map[string]any)["event_type"] = "order.deleted"
	case 1:
		delete(e, "order_id")
		delete(e, "action")
	case 2:
		e["amount"] = -1
	case 3:
		e["currency"] = "euros"
	default:
		return ingest.RawEvent(`{"metadata": {"event_type": "order.created"`)
	}
	return nil
}
