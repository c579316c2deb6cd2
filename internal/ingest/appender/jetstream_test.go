package appender

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"

	"ingest/internal/ingest"
)

func runJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	t.Cleanup(func() { shutdownServer(s) })

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream()
	require.NoError(t, err)
	return js
}

func shutdownServer(s *server.Server) {
	var sd string
	if config := s.JetStreamConfig(); config != nil {
		sd = config.StoreDir
	}
	s.Shutdown()
	if sd != "" {
		os.RemoveAll(sd)
	}
	s.WaitForShutdown()
}

func TestJetStreamPublish(t *testing.T) {
	js := runJetStream(t)
	config := JetStreamConfig{Stream: "INGEST", SubjectPrefix: "ingest", Codec: "json"}
	require.NoError(t, EnsureStream(js, config))
	require.NoError(t, EnsureStream(js, config))

	j, err := NewJetStream(js, config, zaptest.NewLogger(t))
	require.NoError(t, err)

	key := ingest.PartitionKey{EventType: "orders", Partition: "2"}
	event := ingest.Event{"order_id": "42", "metadata": map[string]any{"eid": "e-1"}}
	require.NoError(t, j.Publish(context.Background(), key, event))

	sub, err := js.SubscribeSync("ingest.orders.>", nats.DeliverAll())
	require.NoError(t, err)
	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)

	require.Equal(t, "ingest.orders.2", msg.Subject)
	require.Equal(t, "application/json", msg.Header.Get(contentTypeHdr))
	require.Equal(t, "2", msg.Header.Get(partitionHdr))
	require.Equal(t, "e-1", msg.Header.Get(nats.MsgIdHdr))
	require.JSONEq(t, `{"order_id":"42","metadata":{"eid":"e-1"}}`, string(msg.Data))
}

func TestJetStreamDeduplicatesByEID(t *testing.T) {
	js := runJetStream(t)
	config := JetStreamConfig{Stream: "INGEST", SubjectPrefix: "ingest", Codec: "msgpack"}
	require.NoError(t, EnsureStream(js, config))

	j, err := NewJetStream(js, config, zaptest.NewLogger(t))
	require.NoError(t, err)

	key := ingest.PartitionKey{EventType: "orders", Partition: "0"}
	event := ingest.Event{"metadata": map[string]any{"eid": "e-1"}}
	require.NoError(t, j.Publish(context.Background(), key, event))
	require.NoError(t, j.Publish(context.Background(), key, event))

	info, err := js.StreamInfo("INGEST")
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.State.Msgs)

	sub, err := js.SubscribeSync("ingest.>", nats.DeliverAll())
	require.NoError(t, err)
	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(msg.Data, &decoded))
	require.Equal(t, "e-1", decoded["metadata"].(map[string]any)["eid"])
}

func TestJetStreamWithoutStreamFails(t *testing.T) {
	js := runJetStream(t)

	j, err := NewJetStream(js, JetStreamConfig{Stream: "INGEST", SubjectPrefix: "ingest"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = j.Publish(ctx, ingest.PartitionKey{EventType: "orders", Partition: "0"}, ingest.Event{})
	require.Contains(t, []ingest.Kind{ingest.KindPublishTransient, ingest.KindPublishPermanent}, ingest.KindOf(err))
}

func TestNewJetStreamUnknownCodec(t *testing.T) {
	js := runJetStream(t)

	_, err := NewJetStream(js, JetStreamConfig{Codec: "xml"}, zaptest.NewLogger(t))
	require.Error(t, err)
}
