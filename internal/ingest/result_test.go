package ingest

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func statuses(ss ...Status) []ItemResponse {
	out := make([]ItemResponse, len(ss))
	for i, s := range ss {
		out[i] = ItemResponse{Status: s}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemResponse
		want  BatchStatus
	}{
		{name: "empty", items: nil, want: BatchAllSuccess},
		{name: "all success", items: statuses(StatusSuccess, StatusSuccess), want: BatchAllSuccess},
		{name: "some failed", items: statuses(StatusSuccess, StatusFailed), want: BatchPartialSuccess},
		{name: "some aborted", items: statuses(StatusAborted, StatusSuccess), want: BatchPartialSuccess},
		{name: "all failed", items: statuses(StatusFailed, StatusFailed), want: BatchAllFailed},
		{name: "failed and aborted", items: statuses(StatusAborted, StatusFailed), want: BatchAllFailed},
		{name: "all aborted", items: statuses(StatusAborted, StatusAborted), want: BatchAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Aggregate(tt.items))
		})
	}
}

func TestBatchResultJSON(t *testing.T) {
	res := BatchResult{
		BatchID: "b1",
		Status:  BatchPartialSuccess,
		Items: []ItemResponse{
			{EID: "e1", Step: StepPublished, Status: StatusSuccess, Partition: "0"},
			{Step: StepValidating, Status: StatusFailed, Kind: KindUnknownEventType, Detail: "unknown event type: x"},
		},
	}
	require.Equal(t, 1, res.Count(StatusSuccess))
	require.Equal(t, 1, res.Count(StatusFailed))
	require.Equal(t, 0, res.Count(StatusAborted))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"batch_id": "b1",
		"status": "partial_success",
		"items": [
			{"eid": "e1", "step": "published", "publishing_status": "success", "partition": "0"},
			{"step": "validating", "publishing_status": "failed", "error_kind": "unknown_event_type", "detail": "unknown event type: x"}
		]
	}`, string(b))

	var back BatchResult
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, res, back)
}

func TestStepAndStatusText(t *testing.T) {
	var s Step
	require.NoError(t, s.UnmarshalText([]byte("PUBLISHING")))
	require.Equal(t, StepPublishing, s)
	require.Error(t, s.UnmarshalText([]byte("flying")))
	require.Equal(t, "step(42)", Step(42).String())
	_, err := Step(-1).MarshalText()
	require.Error(t, err)

	var st Status
	require.NoError(t, st.UnmarshalText([]byte("Aborted")))
	require.Equal(t, StatusAborted, st)
	require.True(t, st.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.Error(t, st.UnmarshalText([]byte("done")))
}
