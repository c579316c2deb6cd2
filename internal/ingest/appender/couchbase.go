package appender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"ingest/internal/codec"
	"ingest/internal/couchbase"
	"ingest/internal/deps"
	"ingest/internal/ingest"
)

// Record is one appended event as stored in Couchbase.
type Record struct {
	couchbase.Cas `json:"-"`

	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Partition   string    `json:"partition"`
	Offset      int64     `json:"offset"`
	EID         string    `json:"eid,omitempty"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	AppendedAt  time.Time `json:"appended_at"`
}

// RecordLog assigns the next offset of a partition to a record and stores it.
type RecordLog interface {
	Append(ctx context.Context, record *Record) error
}

type partitionOffset struct {
	couchbase.Cas `json:"-"`

	ID   string `json:"id"`
	Next int64  `json:"next"`
}

// OffsetKey is the document holding the next offset of a partition.
func OffsetKey(key ingest.PartitionKey) string {
	return fmt.Sprintf("offset::%s::%s", key.EventType, key.Partition)
}

// RecordKey is the document holding the record at offset.
func RecordKey(key ingest.PartitionKey, offset int64) string {
	return fmt.Sprintf("record::%s::%s::%d", key.EventType, key.Partition, offset)
}

// CouchbaseLog keeps per-partition offset counters next to the records and
// updates both in one transaction, so offsets are gapless.
type CouchbaseLog struct {
	offsets *couchbase.Store[partitionOffset]
	records *couchbase.Store[Record]
	txns    *couchbase.Transactions
}

var _ RecordLog = (*CouchbaseLog)(nil)

func NewCouchbaseLog(cluster *gocb.Cluster, offsets, records *gocb.Collection, txnTimeout time.Duration) (*CouchbaseLog, error) {
	offsetStore, err := couchbase.NewStore[partitionOffset](cluster, offsets)
	if err != nil {
		return nil, fmt.Errorf("failed to create offset store: %w", err)
	}
	recordStore, err := couchbase.NewStore[Record](cluster, records)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}
	txns, err := couchbase.NewTransactions(cluster, txnTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions: %w", err)
	}

	return &CouchbaseLog{
		offsets: offsetStore,
		records: recordStore,
		txns:    txns,
	}, nil
}

func (l *CouchbaseLog) Append(ctx context.Context, record *Record) error {
	// gocb transactions do not take a context.
	if err := ctx.Err(); err != nil {
		return err
	}

	key := ingest.PartitionKey{EventType: record.EventType, Partition: record.Partition}
	offsetKey := OffsetKey(key)

	_, err := l.txns.Transaction(func(t couchbase.TransactionRunner) error {
		next, err := l.reserveOffset(t, offsetKey)
		if err != nil {
			return err
		}

		record.Offset = next
		record.ID = RecordKey(key, next)
		if _, err := t.Insert(l.records, record.ID, record); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.ID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

// reserveOffset returns the next offset of a partition and advances the
// counter within the same transaction attempt.
func (l *CouchbaseLog) reserveOffset(t couchbase.TransactionRunner, offsetKey string) (int64, error) {
	retry := true
	for retry {
		retry = false

		res, err := t.Get(l.offsets, offsetKey)
		switch {
		case err == nil:
		case errors.Is(err, gocb.ErrDocumentNotFound):
			_, err := t.Insert(l.offsets, offsetKey, partitionOffset{ID: offsetKey, Next: 1})
			switch {
			case err == nil:
				return 0, nil
			case errors.Is(err, gocb.ErrDocumentExists):
				// another writer created the counter first
				retry = true
				continue
			default:
				return 0, fmt.Errorf("failed to insert offset %s: %w", offsetKey, err)
			}
		default:
			return 0, fmt.Errorf("failed to get offset %s: %w", offsetKey, err)
		}

		var offset partitionOffset
		if err := res.Content(&offset); err != nil {
			return 0, fmt.Errorf("failed to decode offset %s: %w", offsetKey, err)
		}

		next := offset.Next
		offset.Next++
		if _, err := t.Replace(res, offset); err != nil {
			return 0, fmt.Errorf("failed to advance offset %s: %w", offsetKey, err)
		}
		return next, nil
	}

	return 0, fmt.Errorf("failed to reserve offset %s", offsetKey)
}

// Couchbase appends codec-encoded events to a RecordLog.
type Couchbase struct {
	log   RecordLog
	codec codec.Codec
	now   func() time.Time
}

var _ ingest.LogAppender = (*Couchbase)(nil)

func NewCouchbase(log RecordLog, c codec.Codec, now func() time.Time) (*Couchbase, error) {
	if err := deps.Validate("couchbase appender", log); err != nil {
		return nil, err
	}
	if c == nil {
		c = codec.Default
	}
	if now == nil {
		now = time.Now
	}
	return &Couchbase{log: log, codec: c, now: now}, nil
}

func (c *Couchbase) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	body, err := c.codec.Marshal(map[string]any(event))
	if err != nil {
		return ingest.Permanent(fmt.Errorf("failed to encode event: %w", err))
	}

	record := &Record{
		EventType:   key.EventType,
		Partition:   key.Partition,
		EID:         event.EID(),
		ContentType: c.codec.ContentType(),
		Body:        body,
		AppendedAt:  c.now().UTC(),
	}
	if err := c.log.Append(ctx, record); err != nil {
		return classifyCouchbase(err)
	}
	return nil
}

func classifyCouchbase(err error) error {
	switch {
	case errors.Is(err, gocb.ErrTimeout),
		errors.Is(err, gocb.ErrAmbiguousTimeout),
		errors.Is(err, gocb.ErrUnambiguousTimeout),
		errors.Is(err, gocb.ErrTemporaryFailure),
		errors.Is(err, gocb.ErrServiceNotAvailable),
		errors.Is(err, gocb.ErrDocumentLocked),
		errors.Is(err, gocb.ErrRequestCanceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ingest.Transient(err)
	default:
		return ingest.Permanent(err)
	}
}
