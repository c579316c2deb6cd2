package ingest

import "context"

// BatchProcessor turns a batch of raw events into per-item outcomes.
//
// The returned error is reserved for batch-level faults such as a panic in a
// worker; per-item failures are reported in BatchResult only.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []RawEvent) (BatchResult, error)
}
