package appender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ingest/internal/codec"
	"ingest/internal/deps"
	"ingest/internal/ingest"
)

const (
	eventTypeHdr   = "Ingest-Event-Type"
	partitionHdr   = "Ingest-Partition"
	contentTypeHdr = "Content-Type"
)

// JetStreamConfig configures the NATS JetStream log backend. Events are
// published to SubjectPrefix.<event type>.<partition>.
type JetStreamConfig struct {
	URL           string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Stream        string `env:"NATS_STREAM" envDefault:"INGEST"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"ingest"`
	Codec         string `env:"NATS_CODEC" envDefault:"json"`
}

// Subject is the subject events of key are published to.
func (c JetStreamConfig) Subject(key ingest.PartitionKey) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, key.EventType, key.Partition)
}

// EnsureStream creates the stream backing the log unless it already exists.
func EnsureStream(js nats.JetStreamContext, config JetStreamConfig) error {
	_, err := js.StreamInfo(config.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", config.Stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       config.Stream,
		Subjects:   []string{config.SubjectPrefix + ".>"},
		Storage:    nats.FileStorage,
		DenyDelete: true,
		DenyPurge:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", config.Stream, err)
	}
	return nil
}

// JetStream appends events to a JetStream stream. The eid is used as the
// message id so the server drops duplicates inside its dedupe window.
type JetStream struct {
	js     nats.JetStreamContext
	config JetStreamConfig
	codec  codec.Codec
	logger *zap.Logger
}

var _ ingest.LogAppender = (*JetStream)(nil)

func NewJetStream(js nats.JetStreamContext, config JetStreamConfig, logger *zap.Logger) (*JetStream, error) {
	if err := deps.Validate("jetstream appender", js, logger); err != nil {
		return nil, err
	}

	c := codec.Default
	if config.Codec != "" {
		var err error
		if c, err = codec.Get(config.Codec); err != nil {
			return nil, fmt.Errorf("failed to configure jetstream appender: %w", err)
		}
	}

	return &JetStream{
		js:     js,
		config: config,
		codec:  c,
		logger: logger.Named("jetstream"),
	}, nil
}

func (j *JetStream) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	data, err := j.codec.Marshal(map[string]any(event))
	if err != nil {
		return ingest.Permanent(fmt.Errorf("failed to encode event: %w", err))
	}

	msg := nats.NewMsg(j.config.Subject(key))
	msg.Data = data
	msg.Header.Set(contentTypeHdr, j.codec.ContentType())
	msg.Header.Set(eventTypeHdr, key.EventType)
	msg.Header.Set(partitionHdr, key.Partition)

	opts := []nats.PubOpt{
		nats.Context(ctx),
		nats.ExpectStream(j.config.Stream),
	}
	if eid := event.EID(); eid != "" {
		opts = append(opts, nats.MsgId(eid))
	}

	start := time.Now()
	ack, err := j.js.PublishMsg(msg, opts...)
	if err != nil {
		return classifyNATS(err)
	}

	j.logger.Debug("event appended",
		zap.String("subject", msg.Subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func classifyNATS(err error) error {
	switch {
	case errors.Is(err, nats.ErrMaxPayload),
		errors.Is(err, nats.ErrBadSubject),
		errors.Is(err, nats.ErrStreamNotFound):
		return ingest.Permanent(err)
	case errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ingest.Transient(err)
	default:
		return ingest.Permanent(err)
	}
}
