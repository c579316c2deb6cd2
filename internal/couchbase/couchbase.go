// Package couchbase is a small generic layer over the Couchbase Go SDK with
// context support and CAS tracking.
package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// Config locates a cluster, bucket and scope.
type Config struct {
	ConnectionString string        `env:"COUCHBASE_CONNECTION_STRING" envDefault:"couchbase://localhost"`
	Username         string        `env:"COUCHBASE_USERNAME" envDefault:"Administrator"`
	Password         string        `env:"COUCHBASE_PASSWORD" envDefault:"password"`
	Bucket           string        `env:"COUCHBASE_BUCKET_NAME" envDefault:"ingest"`
	Scope            string        `env:"COUCHBASE_SCOPE_NAME" envDefault:"_default"`
	ConnectTimeout   time.Duration `env:"COUCHBASE_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Connect opens the cluster and waits until the bucket is ready.
func Connect(ctx context.Context, cfg Config) (*gocb.Cluster, *gocb.Bucket, error) {
	cluster, err := gocb.Connect(cfg.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	if err := bucket.WaitUntilReady(cfg.ConnectTimeout, &gocb.WaitUntilReadyOptions{Context: ctx}); err != nil {
		_ = cluster.Close(nil)
		return nil, nil, fmt.Errorf("failed to wait for bucket %s: %w", cfg.Bucket, err)
	}

	return cluster, bucket, nil
}

// Store provides typed CRUD operations on one collection. Documents that
// implement CasHolder get their CAS updated on every read and write.
type Store[T any] struct {
	cluster    *gocb.Cluster
	collection *gocb.Collection
}

func NewStore[T any](cluster *gocb.Cluster, collection *gocb.Collection) (*Store[T], error) {
	if cluster == nil || collection == nil {
		return nil, errors.New("invalid Couchbase parameters: cluster and collection must not be nil")
	}

	return &Store[T]{
		cluster:    cluster,
		collection: collection,
	}, nil
}

// Insert fails with gocb.ErrDocumentExists if key is taken.
func (s *Store[T]) Insert(ctx context.Context, key string, value *T, opts *gocb.InsertOptions) error {
	if opts == nil {
		opts = new(gocb.InsertOptions)
	}
	opts.Context = ctx

	res, err := s.collection.Insert(key, value, opts)
	if err != nil {
		return fmt.Errorf("failed to insert document with key %s: %w", key, err)
	}
	setCas(value, res.Cas())

	return nil
}

func (s *Store[T]) Upsert(ctx context.Context, key string, value *T, opts *gocb.UpsertOptions) error {
	if opts == nil {
		opts = new(gocb.UpsertOptions)
	}
	opts.Context = ctx

	res, err := s.collection.Upsert(key, value, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert document with key %s: %w", key, err)
	}
	setCas(value, res.Cas())

	return nil
}

func (s *Store[T]) Get(ctx context.Context, key string, opts *gocb.GetOptions) (*T, error) {
	if opts == nil {
		opts = new(gocb.GetOptions)
	}
	opts.Context = ctx

	res, err := s.collection.Get(key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get document with key %s: %w", key, err)
	}

	v := new(T)
	if err := res.Content(v); err != nil {
		return nil, fmt.Errorf("failed to parse document content for key %s: %w", key, err)
	}
	setCas(v, res.Cas())

	return v, nil
}

// Replace uses the document's CAS, when it has one, for optimistic locking.
func (s *Store[T]) Replace(ctx context.Context, key string, value *T, opts *gocb.ReplaceOptions) error {
	if opts == nil {
		opts = new(gocb.ReplaceOptions)
	}
	opts.Context = ctx
	if h, ok := any(value).(CasHolder); ok && opts.Cas == 0 {
		opts.Cas = gocb.Cas(h.GetCas())
	}

	res, err := s.collection.Replace(key, value, opts)
	if err != nil {
		return fmt.Errorf("failed to replace document with key %s: %w", key, err)
	}
	setCas(value, res.Cas())

	return nil
}

// Remove is a no-op for missing documents.
func (s *Store[T]) Remove(ctx context.Context, key string, opts *gocb.RemoveOptions) error {
	if opts == nil {
		opts = new(gocb.RemoveOptions)
	}
	opts.Context = ctx

	_, err := s.collection.Remove(key, opts)
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to remove document with key %s: %w", key, err)
	}

	return nil
}

// Query runs a SQL++ statement and decodes every row into T.
func (s *Store[T]) Query(ctx context.Context, statement string, opts *gocb.QueryOptions) ([]T, error) {
	if opts == nil {
		opts = new(gocb.QueryOptions)
	}
	opts.Context = ctx

	result, err := s.cluster.Query(statement, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer result.Close()

	var items []T
	for result.Next() {
		var item T
		if err := result.Row(&item); err != nil {
			return nil, fmt.Errorf("failed to parse query row: %w", err)
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}

	return items, nil
}

// Collection returns the underlying collection, e.g. for transactions.
func (s *Store[T]) Collection() *gocb.Collection {
	return s.collection
}

func setCas(v any, cas gocb.Cas) {
	if h, ok := v.(CasHolder); ok {
		h.SetCas(uint64(cas))
	}
}
