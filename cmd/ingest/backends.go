package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"
	"github.com/couchbase/gocb/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ingest/internal/codec"
	"ingest/internal/couchbase"
	"ingest/internal/id"
	"ingest/internal/ingest"
	"ingest/internal/ingest/appender"
	"ingest/internal/ingest/eventtype"
	"ingest/internal/ingest/metrics"
	"ingest/internal/ingest/tracing"
)

const (
	eventTypesCollection = "event_types"
	offsetsCollection    = "log_offsets"
	recordsCollection    = "log_records"
)

// backends connects to external systems on first use and closes them on
// shutdown.
type backends struct {
	cfg      Config
	logger   *zap.Logger
	registry *metrics.Registry
	tracer   *tracing.Tracer

	cluster *gocb.Cluster
	bucket  *gocb.Bucket
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("failed to close backend", zap.Error(err))
		}
	}
}

// connect retries op with exponential backoff until ConnectTimeout elapses.
func connect[T any](ctx context.Context, b *backends, what string, op func() (T, error)) (T, error) {
	return backoff.Retry[T](ctx, func() (T, error) {
		v, err := op()
		if err != nil {
			b.logger.Warn("backend not reachable, retrying", zap.String("backend", what), zap.Error(err))
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(b.cfg.ConnectTimeout),
	)
}

func (b *backends) couchbase(ctx context.Context) (*gocb.Cluster, *gocb.Bucket, error) {
	if b.cluster != nil {
		return b.cluster, b.bucket, nil
	}

	type conn struct {
		cluster *gocb.Cluster
		bucket  *gocb.Bucket
	}
	c, err := connect(ctx, b, "couchbase", func() (conn, error) {
		cluster, bucket, err := couchbase.Connect(ctx, b.cfg.Couchbase)
		return conn{cluster, bucket}, err
	})
	if err != nil {
		return nil, nil, err
	}

	b.cluster, b.bucket = c.cluster, c.bucket
	b.closers = append(b.closers, func() error { return c.cluster.Close(nil) })
	return b.cluster, b.bucket, nil
}

func (b *backends) collection(name string) *gocb.Collection {
	return b.bucket.Scope(b.cfg.Couchbase.Scope).Collection(name)
}

// eventTypes returns the configured event type source. With the Couchbase
// source, definitions from the file, if present, are saved first.
func (b *backends) eventTypes(ctx context.Context) (eventtype.Store, error) {
	var fromFile []ingest.EventType
	if _, err := os.Stat(b.cfg.EventTypesFile); err == nil {
		types, err := eventtype.LoadFile(b.cfg.EventTypesFile)
		if err != nil {
			return nil, err
		}
		fromFile = types
	} else {
		b.logger.Info("no event type file, using built in definitions", zap.String("path", b.cfg.EventTypesFile))
		fromFile = defaultEventTypes()
	}

	switch b.cfg.EventTypeSource {
	case "file":
		static, err := eventtype.NewStatic(fromFile...)
		if err != nil {
			return nil, err
		}
		return static, nil
	case "couchbase":
		cluster, _, err := b.couchbase(ctx)
		if err != nil {
			return nil, err
		}
		base, err := eventtype.NewCouchbaseStore(cluster, b.collection(eventTypesCollection),
			b.cfg.Couchbase.Bucket, b.cfg.Couchbase.Scope)
		if err != nil {
			return nil, err
		}
		store := eventtype.NewTracedStore(eventtype.NewMetricsStore(base, b.registry), b.tracer)

		for _, et := range fromFile {
			if err := store.Put(ctx, et); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown event type source %q", b.cfg.EventTypeSource)
	}
}

func (b *backends) appender(ctx context.Context) (ingest.LogAppender, error) {
	switch b.cfg.LogBackend {
	case "memory":
		return appender.NewMemory(), nil

	case "kafka":
		producer, err := connect(ctx, b, "kafka", func() (sarama.SyncProducer, error) {
			return appender.NewKafkaProducer(b.cfg.Kafka)
		})
		if err != nil {
			return nil, err
		}
		k, err := appender.NewKafka(producer, b.cfg.Kafka, id.UUID, b.logger)
		if err != nil {
			return nil, errors.Join(err, producer.Close())
		}
		b.closers = append(b.closers, k.Close)
		return k, nil

	case "jetstream":
		nc, err := connect(ctx, b, "nats", func() (*nats.Conn, error) {
			return nats.Connect(b.cfg.JetStream.URL, nats.Name("ingest"), nats.MaxReconnects(-1))
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { nc.Close(); return nil })

		js, err := nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		if err := appender.EnsureStream(js, b.cfg.JetStream); err != nil {
			return nil, err
		}
		j, err := appender.NewJetStream(js, b.cfg.JetStream, b.logger)
		if err != nil {
			return nil, err
		}
		return j, nil

	case "couchbase":
		cluster, _, err := b.couchbase(ctx)
		if err != nil {
			return nil, err
		}
		recordLog, err := appender.NewCouchbaseLog(cluster,
			b.collection(offsetsCollection), b.collection(recordsCollection), b.cfg.TxnTimeout)
		if err != nil {
			return nil, err
		}
		c, err := codec.Get(b.cfg.RecordCodec)
		if err != nil {
			return nil, err
		}
		cb, err := appender.NewCouchbase(recordLog, c, time.Now)
		if err != nil {
			return nil, err
		}
		return cb, nil

	default:
		return nil, fmt.Errorf("unknown log backend %q", b.cfg.LogBackend)
	}
}
