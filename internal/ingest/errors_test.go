package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	tests := []struct {
		name       string
		err        *Error
		wantError  string
		wantDetail string
	}{
		{
			name:       "message only",
			err:        NewError(KindUnknownEventType, "unknown event type: x"),
			wantError:  "unknown_event_type: unknown event type: x",
			wantDetail: "unknown event type: x",
		},
		{
			name:       "with index and reasons",
			err:        NewError(KindValidationFailed, "validation failed", WithIndex(2), WithReasons("a", "b")),
			wantError:  "validation_failed (item 2): validation failed: a; b",
			wantDetail: "validation failed: a; b",
		},
		{
			name:       "reasons without message",
			err:        NewError(KindValidationFailed, " ", WithReasons("a")),
			wantError:  "validation_failed: a",
			wantDetail: "a",
		},
		{
			name:       "with cause",
			err:        NewError(KindPublishTransient, "unavailable", WithCause(cause)),
			wantError:  "publish_transient: unavailable: dial tcp: refused",
			wantDetail: "unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.wantError)
			require.Equal(t, tt.wantDetail, tt.err.Detail())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("broker down")
	err := fmt.Errorf("publish: %w", Transient(cause))

	require.ErrorIs(t, err, ErrPublishTransient)
	require.NotErrorIs(t, err, ErrPublishPermanent)
	require.ErrorIs(t, err, cause)
	require.True(t, IsRetryable(err))
	require.Equal(t, KindPublishTransient, KindOf(err))
	require.Equal(t, "log backend temporarily unavailable", DetailOf(err))

	perm := Permanent(cause)
	require.ErrorIs(t, perm, ErrPublishPermanent)
	require.False(t, IsRetryable(perm))

	require.Nil(t, Transient(nil))
	require.Nil(t, Permanent(nil))
	require.False(t, IsRetryable(nil))
	require.Equal(t, KindInternal, KindOf(cause))
	require.Equal(t, "broker down", DetailOf(cause))
	require.Empty(t, DetailOf(nil))
}

func TestEventTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		et      EventType
		wantErr bool
	}{
		{name: "minimal", et: EventType{Name: "order.created"}},
		{name: "hash with keys", et: EventType{Name: "a", PartitionStrategy: PartitionHash, PartitionKeyFields: []string{"id"}, Partitions: 4}},
		{name: "bad name", et: EventType{Name: "order created"}, wantErr: true},
		{name: "empty name", et: EventType{}, wantErr: true},
		{name: "negative partitions", et: EventType{Name: "a", Partitions: -1}, wantErr: true},
		{name: "hash without keys", et: EventType{Name: "a", PartitionStrategy: PartitionHash}, wantErr: true},
		{name: "unknown strategy", et: EventType{Name: "a", PartitionStrategy: "random"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.et.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}

	require.Equal(t, 1, EventType{}.PartitionCount())
	require.Equal(t, 8, EventType{Partitions: 8}.PartitionCount())
	require.True(t, EventType{Category: CategoryBusiness}.RequiresMetadata())
	require.False(t, EventType{Category: CategoryUndefined}.RequiresMetadata())
}
