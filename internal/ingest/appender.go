package ingest

import "context"

// LogAppender is the durable log the pipeline publishes validated events to.
// Calls for the same PartitionKey are never made concurrently by the pipeline
// and arrive in batch order.
//
// Failures should be classified with Transient or Permanent. Unclassified
// errors are treated as permanent.
type LogAppender interface {
	Publish(ctx context.Context, key PartitionKey, event Event) error
}
