package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "object", raw: `{"a":1}`},
		{name: "empty object", raw: `{}`},
		{name: "empty payload", raw: ``, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "string", raw: `"x"`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "truncated", raw: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseEvent(RawEvent(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, e)
		})
	}
}

func TestEventAccessors(t *testing.T) {
	e, err := ParseEvent(RawEvent(`{
		"metadata": {"eid": "e-1", "event_type": "order.created"},
		"order": {"customer": {"id": "c-7"}, "lines": [1, 2]}
	}`))
	require.NoError(t, err)

	require.Equal(t, "e-1", e.EID())
	require.Equal(t, "order.created", e.EventType())

	v, ok := e.Lookup("order.customer.id")
	require.True(t, ok)
	require.Equal(t, "c-7", v)

	_, ok = e.Lookup("order.customer.name")
	require.False(t, ok)
	_, ok = e.Lookup("order.lines.0")
	require.False(t, ok)

	noMeta := Event{"metadata": "nope"}
	require.Empty(t, noMeta.EID())
	_, ok = noMeta.Metadata()
	require.False(t, ok)
}

func TestEventCloneIsDeep(t *testing.T) {
	e := Event{
		"metadata": map[string]any{"eid": "e-1"},
		"lines":    []any{map[string]any{"sku": "a"}},
	}
	c := e.Clone()

	c["metadata"].(map[string]any)["eid"] = "changed"
	c["lines"].([]any)[0].(map[string]any)["sku"] = "b"

	require.Equal(t, "e-1", e.EID())
	require.Equal(t, "a", e["lines"].([]any)[0].(map[string]any)["sku"])
	require.Nil(t, Event(nil).Clone())
}
