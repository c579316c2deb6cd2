package ingest

// ItemResponse is the outcome of one submitted event. Responses are returned
// in input order so producers can correlate them by index.
type ItemResponse struct {
	EID       string `json:"eid,omitempty"`
	Step      Step   `json:"step"`
	Status    Status `json:"publishing_status"`
	Detail    string `json:"detail,omitempty"`
	Kind      Kind   `json:"error_kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Partition string `json:"partition,omitempty"`
}

// BatchStatus aggregates the outcome of a whole batch.
type BatchStatus string

const (
	BatchAllSuccess     BatchStatus = "all_success"
	BatchPartialSuccess BatchStatus = "partial_success"
	BatchAllFailed      BatchStatus = "all_failed"
	// BatchAborted means nothing succeeded and nothing was rejected: every
	// item was abandoned, typically on deadline expiry.
	BatchAborted BatchStatus = "aborted"
)

// BatchResult is what the pipeline hands back to the transport layer.
type BatchResult struct {
	BatchID string         `json:"batch_id"`
	Status  BatchStatus    `json:"status"`
	Items   []ItemResponse `json:"items"`
}

// Aggregate derives the batch status from item outcomes. An empty batch
// trivially succeeds.
func Aggregate(items []ItemResponse) BatchStatus {
	var succeeded, failed int
	for _, it := range items {
		switch it.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case succeeded == len(items):
		return BatchAllSuccess
	case succeeded > 0:
		return BatchPartialSuccess
	case failed > 0:
		return BatchAllFailed
	default:
		return BatchAborted
	}
}

// Count returns how many items ended in status.
func (r BatchResult) Count(status Status) int {
	var n int
	for _, it := range r.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}
