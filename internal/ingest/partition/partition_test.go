package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"ingest/internal/ingest"
)

func TestAssignSingle(t *testing.T) {
	a := NewAssigner()
	for _, s := range []ingest.PartitionStrategy{"", ingest.PartitionSingle} {
		p, err := a.Assign(ingest.Event{}, ingest.EventType{Name: "a", PartitionStrategy: s, Partitions: 8})
		require.NoError(t, err)
		require.Equal(t, "0", p)
	}

	_, err := a.Assign(ingest.Event{}, ingest.EventType{Name: "a", PartitionStrategy: "random"})
	require.ErrorIs(t, err, ingest.ErrPartitioningFailed)
}

func TestAssignHashIsDeterministic(t *testing.T) {
	a := NewAssigner()
	et := ingest.EventType{
		Name:               "order.created",
		PartitionStrategy:  ingest.PartitionHash,
		PartitionKeyFields: []string{"order.customer_id", "region"},
		Partitions:         16,
	}

	seen := map[string]bool{}
	for _, customer := range []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"} {
		e := ingest.Event{"order": map[string]any{"customer_id": customer}, "region": "eu"}
		p1, err := a.Assign(e, et)
		require.NoError(t, err)
		p2, err := a.Assign(e.Clone(), et)
		require.NoError(t, err)
		require.Equal(t, p1, p2)
		seen[p1] = true
	}
	require.Greater(t, len(seen), 1)

	_, err := a.Assign(ingest.Event{"region": "eu"}, et)
	require.ErrorIs(t, err, ingest.ErrPartitioningFailed)

	et.PartitionKeyFields = nil
	_, err = a.Assign(ingest.Event{}, et)
	require.ErrorIs(t, err, ingest.ErrPartitioningFailed)
}

func TestAssignHashSeparatesFields(t *testing.T) {
	a := NewAssigner()
	et := ingest.EventType{
		Name:               "a",
		PartitionStrategy:  ingest.PartitionHash,
		PartitionKeyFields: []string{"x", "y"},
		Partitions:         1 << 20,
	}
	p1, err := a.Assign(ingest.Event{"x": "ab", "y": "c"}, et)
	require.NoError(t, err)
	p2, err := a.Assign(ingest.Event{"x": "a", "y": "bc"}, et)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
}

func TestAssignUserDefined(t *testing.T) {
	a := NewAssigner()
	et := ingest.EventType{Name: "a", PartitionStrategy: ingest.PartitionUserDefined, Partitions: 4}

	tests := []struct {
		name      string
		metadata  any
		want      string
		wantError bool
	}{
		{name: "string", metadata: map[string]any{"partition": "3"}, want: "3"},
		{name: "number", metadata: map[string]any{"partition": 2.0}, want: "2"},
		{name: "out of range", metadata: map[string]any{"partition": "4"}, wantError: true},
		{name: "negative", metadata: map[string]any{"partition": -1.0}, wantError: true},
		{name: "number out of range", metadata: map[string]any{"partition": 4.0}, wantError: true},
		{name: "huge", metadata: map[string]any{"partition": 1e300}, wantError: true},
		{name: "huge negative", metadata: map[string]any{"partition": -1e300}, wantError: true},
		{name: "infinite", metadata: map[string]any{"partition": math.Inf(1)}, wantError: true},
		{name: "fractional", metadata: map[string]any{"partition": 1.5}, wantError: true},
		{name: "not a number", metadata: map[string]any{"partition": "x"}, wantError: true},
		{name: "wrong type", metadata: map[string]any{"partition": true}, wantError: true},
		{name: "missing", metadata: map[string]any{}, wantError: true},
		{name: "no metadata", metadata: nil, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ingest.Event{}
			if tt.metadata != nil {
				e["metadata"] = tt.metadata
			}
			p, err := a.Assign(e, et)
			if tt.wantError {
				require.ErrorIs(t, err, ingest.ErrPartitioningFailed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p)
		})
	}
}
