package eventtype

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/couchbase/gocb/v2"
	"github.com/stretchr/testify/require"

	"ingest/internal/ingest"
)

type fakeDocuments struct {
	docs       map[string]document
	statements []string
	params     []map[string]any
	err        error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: map[string]document{}}
}

func (f *fakeDocuments) Get(_ context.Context, key string, _ *gocb.GetOptions) (*document, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.docs[key]
	if !ok {
		return nil, fmt.Errorf("failed to get document with key %s: %w", key, gocb.ErrDocumentNotFound)
	}
	return &d, nil
}

func (f *fakeDocuments) Upsert(_ context.Context, key string, value *document, _ *gocb.UpsertOptions) error {
	if f.err != nil {
		return f.err
	}
	f.docs[key] = *value
	return nil
}

func (f *fakeDocuments) Query(_ context.Context, statement string, opts *gocb.QueryOptions) ([]document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.statements = append(f.statements, statement)
	f.params = append(f.params, opts.NamedParameters)

	var out []document
	for _, d := range f.docs {
		if d.Type == opts.NamedParameters["type"] {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestCouchbaseStore(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocuments()
	s := newCouchbaseStore(docs, "`ingest`.`_default`.`event_types`")

	require.NoError(t, s.Put(ctx, ingest.EventType{Name: "orders", Partitions: 2}))
	require.NoError(t, s.Put(ctx, ingest.EventType{Name: "audit"}))
	require.Equal(t, docType, docs.docs["event_type::orders"].Type)

	et, found, err := s.GetConfig(ctx, "orders")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, et.Partitions)

	_, found, err = s.GetConfig(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	types, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	require.Equal(t, "audit", types[0].Name)
	require.Equal(t, "SELECT e.* FROM `ingest`.`_default`.`event_types` e WHERE e.type = $type", docs.statements[0])

	require.Error(t, s.Put(ctx, ingest.EventType{Name: ""}))
}

func TestCouchbaseStoreBackendErrors(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocuments()
	docs.err = gocb.ErrTimeout
	s := newCouchbaseStore(docs, "ks")

	_, found, err := s.GetConfig(ctx, "orders")
	require.False(t, found)
	require.ErrorIs(t, err, gocb.ErrTimeout)

	_, err = s.List(ctx)
	require.ErrorIs(t, err, gocb.ErrTimeout)

	err = s.Put(ctx, ingest.EventType{Name: "orders"})
	require.True(t, errors.Is(err, gocb.ErrTimeout))
}
