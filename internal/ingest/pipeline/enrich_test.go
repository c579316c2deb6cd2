package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ingest/internal/id"
	"ingest/internal/ingest"
)

func testEnricher() *Enricher {
	return NewEnricher(id.Func(func() string { return "generated" }),
		func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 8, time.FixedZone("CET", 3600)) })
}

func TestEnrichMetadata(t *testing.T) {
	et := ingest.EventType{
		Name:                 "orders",
		Category:             ingest.CategoryBusiness,
		EnrichmentStrategies: []ingest.EnrichmentStrategy{ingest.EnrichmentMetadata},
	}

	tests := []struct {
		name    string
		event   ingest.Event
		wantEID string
	}{
		{
			name:    "keeps producer eid",
			event:   ingest.Event{"metadata": map[string]any{"eid": "e-1", "event_type": "orders"}},
			wantEID: "e-1",
		},
		{
			name:    "generates missing eid",
			event:   ingest.Event{"metadata": map[string]any{"event_type": "orders"}},
			wantEID: "generated",
		},
		{
			name:    "replaces empty eid",
			event:   ingest.Event{"metadata": map[string]any{"eid": "", "event_type": "orders"}},
			wantEID: "generated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.event.Clone()

			got, err := testEnricher().Enrich(tt.event, et)
			require.NoError(t, err)
			require.Equal(t, before, tt.event, "input must not be mutated")

			meta, ok := got.Metadata()
			require.True(t, ok)
			require.Equal(t, tt.wantEID, meta["eid"])
			require.Equal(t, "orders", meta["event_type"])
			require.Equal(t, "2024-03-04T04:06:07.000000008Z", meta["received_at"])
		})
	}
}

func TestEnrichUndefinedCategoryCreatesMetadata(t *testing.T) {
	et := ingest.EventType{Name: "audit", EnrichmentStrategies: []ingest.EnrichmentStrategy{ingest.EnrichmentMetadata}}

	got, err := testEnricher().Enrich(ingest.Event{"x": 1.0}, et)
	require.NoError(t, err)
	require.Equal(t, "generated", got.EID())
	require.Equal(t, "audit", got.EventType())
}

func TestEnrichWithoutStrategiesReturnsInput(t *testing.T) {
	event := ingest.Event{"x": 1.0}

	got, err := testEnricher().Enrich(event, ingest.EventType{Name: "audit"})
	require.NoError(t, err)
	require.Equal(t, event, got)
}

func TestEnrichFailures(t *testing.T) {
	tests := []struct {
		name   string
		event  ingest.Event
		et     ingest.EventType
		detail string
	}{
		{
			name:   "business event without metadata",
			event:  ingest.Event{"x": 1.0},
			et:     ingest.EventType{Name: "orders", Category: ingest.CategoryBusiness},
			detail: "business events must carry a metadata object",
		},
		{
			name:  "metadata is not an object",
			event: ingest.Event{"metadata": "nope"},
			et: ingest.EventType{
				Name:                 "audit",
				EnrichmentStrategies: []ingest.EnrichmentStrategy{ingest.EnrichmentMetadata},
			},
			detail: "metadata must be an object, got string",
		},
		{
			name:  "unknown strategy",
			event: ingest.Event{},
			et: ingest.EventType{
				Name:                 "audit",
				EnrichmentStrategies: []ingest.EnrichmentStrategy{"geo_lookup"},
			},
			detail: `unknown enrichment strategy "geo_lookup"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testEnricher().Enrich(tt.event, tt.et)
			require.ErrorIs(t, err, ingest.ErrEnrichmentFailed)
			require.Equal(t, tt.detail, ingest.DetailOf(err))
		})
	}
}
