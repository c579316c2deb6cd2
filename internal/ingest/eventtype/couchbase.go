package eventtype

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/couchbase/gocb/v2"

	"ingest/internal/couchbase"
	"ingest/internal/ingest"
)

const docType = "event_type"

type document struct {
	couchbase.Cas `json:"-"`
	ingest.EventType

	Type string `json:"type"`
}

// documents is the subset of couchbase.Store the event type store needs.
type documents interface {
	Get(ctx context.Context, key string, opts *gocb.GetOptions) (*document, error)
	Upsert(ctx context.Context, key string, value *document, opts *gocb.UpsertOptions) error
	Query(ctx context.Context, statement string, opts *gocb.QueryOptions) ([]document, error)
}

// Key is the document key of an event type.
func Key(name string) string {
	return "event_type::" + name
}

// CouchbaseStore keeps event types as documents in one collection.
type CouchbaseStore struct {
	docs     documents
	keyspace string
}

var _ Store = (*CouchbaseStore)(nil)

// NewCouchbaseStore stores event types in collection. The keyspace is used
// for listing queries.
func NewCouchbaseStore(cluster *gocb.Cluster, collection *gocb.Collection, bucket, scope string) (*CouchbaseStore, error) {
	store, err := couchbase.NewStore[document](cluster, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to create event type store: %w", err)
	}
	keyspace := fmt.Sprintf("`%s`.`%s`.`%s`", bucket, scope, collection.Name())
	return newCouchbaseStore(store, keyspace), nil
}

func newCouchbaseStore(docs documents, keyspace string) *CouchbaseStore {
	return &CouchbaseStore{docs: docs, keyspace: keyspace}
}

func (s *CouchbaseStore) GetConfig(ctx context.Context, name string) (ingest.EventType, bool, error) {
	doc, err := s.docs.Get(ctx, Key(name), nil)
	switch {
	case err == nil:
		return doc.EventType, true, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return ingest.EventType{}, false, nil
	default:
		return ingest.EventType{}, false, fmt.Errorf("failed to get event type %s: %w", name, err)
	}
}

func (s *CouchbaseStore) List(ctx context.Context) ([]ingest.EventType, error) {
	statement := fmt.Sprintf("SELECT e.* FROM %s e WHERE e.type = $type", s.keyspace)
	docs, err := s.docs.Query(ctx, statement, &gocb.QueryOptions{
		NamedParameters: map[string]any{"type": docType},
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list event types: %w", err)
	}

	out := make([]ingest.EventType, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.EventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *CouchbaseStore) Put(ctx context.Context, et ingest.EventType) error {
	if err := et.Validate(); err != nil {
		return err
	}

	doc := &document{EventType: et, Type: docType}
	if err := s.docs.Upsert(ctx, Key(et.Name), doc, nil); err != nil {
		return fmt.Errorf("failed to save event type %s: %w", et.Name, err)
	}
	return nil
}
