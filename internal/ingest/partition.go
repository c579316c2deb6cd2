package ingest

import "fmt"

// PartitionKey identifies one ordered log: a partition of an event type.
type PartitionKey struct {
	EventType string
	Partition string
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s", k.EventType, k.Partition)
}

// PartitionAssigner decides the partition of an event. Implementations must be
// deterministic so that a resubmitted batch is routed to the same partitions.
type PartitionAssigner interface {
	Assign(event Event, eventType EventType) (string, error)
}
