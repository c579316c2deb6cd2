package appender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"ingest/internal/deps"
	"ingest/internal/id"
	"ingest/internal/ingest"
)

// KafkaConfig configures the Kafka log backend. Each event type maps to the
// topic TopicPrefix+name; ingest partitions map one to one onto topic
// partitions.
type KafkaConfig struct {
	Brokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	TopicPrefix     string   `env:"KAFKA_TOPIC_PREFIX" envDefault:""`
	Source          string   `env:"KAFKA_EVENT_SOURCE" envDefault:"/ingest"`
	RequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"-1"`
	Compression     string   `env:"KAFKA_COMPRESSION" envDefault:"snappy"`
	MaxMessageBytes int      `env:"KAFKA_MAX_MESSAGE_BYTES" envDefault:"1000000"`
	Idempotent      bool     `env:"KAFKA_IDEMPOTENT" envDefault:"true"`
}

// SaramaConfig builds a producer configuration that honors explicit
// partitions.
func SaramaConfig(cfg KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V2_8_0_0
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Partitioner = sarama.NewManualPartitioner
	c.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	c.Producer.Compression = parseCompression(cfg.Compression)
	if cfg.MaxMessageBytes > 0 {
		c.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	// The pipeline reports transient failures to the caller instead of
	// retrying, so the producer only retries what it can do quickly.
	c.Producer.Retry.Max = 1
	if cfg.Idempotent {
		c.Producer.Idempotent = true
		c.Producer.RequiredAcks = sarama.WaitForAll
		c.Net.MaxOpenRequests = 1
	}
	return c
}

func NewKafkaProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, SaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return p, nil
}

func parseCompression(name string) sarama.CompressionCodec {
	switch name {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}

// Kafka appends events to Kafka as structured CloudEvents.
type Kafka struct {
	producer sarama.SyncProducer
	config   KafkaConfig
	ids      id.Generator
	now      func() time.Time
	logger   *zap.Logger
}

var _ ingest.LogAppender = (*Kafka)(nil)

// NewKafka uses ids for events that reach the log without an eid.
func NewKafka(producer sarama.SyncProducer, config KafkaConfig, ids id.Generator, logger *zap.Logger) (*Kafka, error) {
	if err := deps.Validate("kafka appender", producer, ids, logger); err != nil {
		return nil, err
	}
	return &Kafka{
		producer: producer,
		config:   config,
		ids:      ids,
		now:      time.Now,
		logger:   logger.Named("kafka"),
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	partition, err := strconv.ParseInt(key.Partition, 10, 32)
	if err != nil {
		return ingest.Permanent(fmt.Errorf("partition %q is not numeric: %w", key.Partition, err))
	}

	ce, err := k.cloudEvent(key, event)
	if err != nil {
		return ingest.Permanent(err)
	}
	value, err := json.Marshal(ce)
	if err != nil {
		return ingest.Permanent(fmt.Errorf("failed to marshal CloudEvent: %w", err))
	}

	msg := &sarama.ProducerMessage{
		Topic:     k.config.TopicPrefix + key.EventType,
		Partition: int32(partition),
		Key:       sarama.StringEncoder(ce.ID()),
		Value:     sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(ce.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(ce.Type())},
			{Key: []byte("ce_source"), Value: []byte(ce.Source())},
			{Key: []byte("ce_id"), Value: []byte(ce.ID())},
		},
		Timestamp: ce.Time(),
	}

	if err := ctx.Err(); err != nil {
		return ingest.Transient(err)
	}

	type sent struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan sent, 1)
	go func() {
		p, o, err := k.producer.SendMessage(msg)
		done <- sent{partition: p, offset: o, err: err}
	}()

	select {
	case <-ctx.Done():
		return ingest.Transient(ctx.Err())
	case res := <-done:
		if res.err != nil {
			return classifyKafka(res.err)
		}
		k.logger.Debug("event appended",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", res.partition),
			zap.Int64("offset", res.offset),
			zap.String("eid", ce.ID()),
		)
		return nil
	}
}

func (k *Kafka) cloudEvent(key ingest.PartitionKey, event ingest.Event) (cloudevents.Event, error) {
	eid := event.EID()
	if eid == "" {
		eid = k.ids.New()
	}

	ce := cloudevents.NewEvent()
	ce.SetID(eid)
	ce.SetSource(k.config.Source)
	ce.SetType(key.EventType)
	ce.SetTime(k.now().UTC())
	ce.SetExtension("partition", key.Partition)
	if err := ce.SetData(cloudevents.ApplicationJSON, map[string]any(event)); err != nil {
		return ce, fmt.Errorf("failed to set CloudEvent data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid CloudEvent: %w", err)
	}
	return ce, nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}

// classifyKafka separates broker conditions that clear up on their own from
// rejections of the message itself.
func classifyKafka(err error) error {
	var kerr sarama.KError
	if errors.As(err, &kerr) {
		switch kerr {
		case sarama.ErrNotLeaderForPartition,
			sarama.ErrLeaderNotAvailable,
			sarama.ErrRequestTimedOut,
			sarama.ErrNotEnoughReplicas,
			sarama.ErrNotEnoughReplicasAfterAppend,
			sarama.ErrNetworkException,
			sarama.ErrBrokerNotAvailable,
			sarama.ErrReplicaNotAvailable:
			return ingest.Transient(err)
		default:
			return ingest.Permanent(err)
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrNotConnected),
		errors.As(err, &netErr):
		return ingest.Transient(err)
	default:
		return ingest.Permanent(err)
	}
}
