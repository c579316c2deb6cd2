package appender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ingest/internal/id"
	"ingest/internal/ingest"
)

func newTestKafka(t *testing.T, producer sarama.SyncProducer) *Kafka {
	t.Helper()

	k, err := NewKafka(producer, KafkaConfig{TopicPrefix: "ingest.", Source: "/test"},
		id.Func(func() string { return "generated" }), zaptest.NewLogger(t))
	require.NoError(t, err)
	k.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return k
}

func TestKafkaPublishesCloudEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "ingest.orders", msg.Topic)
		assert.Equal(t, int32(3), msg.Partition)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "e-1", string(key))

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		assert.Equal(t, "orders", headers["ce_type"])
		assert.Equal(t, "/test", headers["ce_source"])
		assert.Equal(t, "e-1", headers["ce_id"])

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var ce cloudevents.Event
		require.NoError(t, json.Unmarshal(value, &ce))
		assert.Equal(t, "e-1", ce.ID())
		assert.True(t, ce.Time().Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

		var data map[string]any
		require.NoError(t, ce.DataAs(&data))
		assert.Equal(t, "42", data["order_id"])
		return nil
	})

	k := newTestKafka(t, producer)
	event := ingest.Event{
		"order_id": "42",
		"metadata": map[string]any{"eid": "e-1", "event_type": "orders"},
	}
	require.NoError(t, k.Publish(context.Background(), ingest.PartitionKey{EventType: "orders", Partition: "3"}, event))
	require.NoError(t, k.Close())
}

func TestKafkaGeneratesIDWithoutEID(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "generated", string(key))
		return nil
	})

	k := newTestKafka(t, producer)
	require.NoError(t, k.Publish(context.Background(), ingest.PartitionKey{EventType: "orders", Partition: "0"}, ingest.Event{}))
	require.NoError(t, k.Close())
}

func TestKafkaClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"leader election", sarama.ErrNotLeaderForPartition, ingest.ErrPublishTransient},
		{"not enough replicas", sarama.ErrNotEnoughReplicas, ingest.ErrPublishTransient},
		{"out of brokers", sarama.ErrOutOfBrokers, ingest.ErrPublishTransient},
		{"message too large", sarama.ErrMessageSizeTooLarge, ingest.ErrPublishPermanent},
		{"unknown", errors.New("boom"), ingest.ErrPublishPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := mocks.NewSyncProducer(t, nil)
			producer.ExpectSendMessageAndFail(tt.err)

			k := newTestKafka(t, producer)
			err := k.Publish(context.Background(), ingest.PartitionKey{EventType: "orders", Partition: "0"}, ingest.Event{})
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.err)
			require.NoError(t, k.Close())
		})
	}
}

func TestKafkaRejectsNonNumericPartition(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	k := newTestKafka(t, producer)

	err := k.Publish(context.Background(), ingest.PartitionKey{EventType: "orders", Partition: "eu"}, ingest.Event{})
	require.ErrorIs(t, err, ingest.ErrPublishPermanent)
	require.NoError(t, k.Close())
}

func TestSaramaConfig(t *testing.T) {
	c := SaramaConfig(KafkaConfig{RequiredAcks: 1, Compression: "zstd", Idempotent: true, MaxMessageBytes: 2048})

	require.True(t, c.Producer.Return.Successes)
	require.Equal(t, sarama.WaitForAll, c.Producer.RequiredAcks)
	require.Equal(t, sarama.CompressionZSTD, c.Producer.Compression)
	require.Equal(t, 1, c.Net.MaxOpenRequests)
	require.Equal(t, 2048, c.Producer.MaxMessageBytes)
	require.NoError(t, c.Validate())
}
