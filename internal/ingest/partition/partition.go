// Package partition assigns events to partitions of their event type.
package partition

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"ingest/internal/ingest"
)

// Assigner implements ingest.PartitionAssigner for every partition strategy.
// It is stateless and deterministic: the same event and configuration always
// yield the same partition.
type Assigner struct{}

var _ ingest.PartitionAssigner = Assigner{}

func NewAssigner() Assigner { return Assigner{} }

func (a Assigner) Assign(event ingest.Event, eventType ingest.EventType) (string, error) {
	switch eventType.PartitionStrategy {
	case ingest.PartitionHash:
		return a.hash(event, eventType)
	case ingest.PartitionUserDefined:
		return a.userDefined(event, eventType)
	case ingest.PartitionSingle, "":
		return "0", nil
	default:
		return "", failed("unknown partition strategy %q", eventType.PartitionStrategy)
	}
}

// hash digests the JSON encoding of each key field. A zero byte separates
// fields so that ("ab","c") and ("a","bc") land on different digests.
func (Assigner) hash(event ingest.Event, eventType ingest.EventType) (string, error) {
	if len(eventType.PartitionKeyFields) == 0 {
		return "", failed("event type %s has no partition key fields", eventType.Name)
	}

	d := xxhash.New()
	for _, field := range eventType.PartitionKeyFields {
		v, ok := event.Lookup(field)
		if !ok || v == nil {
			return "", failed("partition key field %q is missing", field)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", failed("partition key field %q cannot be encoded: %v", field, err)
		}
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{0})
	}

	p := d.Sum64() % uint64(eventType.PartitionCount())
	return strconv.FormatUint(p, 10), nil
}

func (Assigner) userDefined(event ingest.Event, eventType ingest.EventType) (string, error) {
	m, ok := event.Metadata()
	if !ok {
		return "", failed("user defined partitioning requires metadata.%s", ingest.PartitionField)
	}

	var p int
	switch v := m[ingest.PartitionField].(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", failed("metadata.%s %q is not a partition number", ingest.PartitionField, v)
		}
		p = n
	case float64:
		if v != math.Trunc(v) {
			return "", failed("metadata.%s %v is not a partition number", ingest.PartitionField, v)
		}
		if v < 0 || v >= float64(eventType.PartitionCount()) {
			return "", failed("partition %v out of range [0, %d)", v, eventType.PartitionCount())
		}
		p = int(v)
	case nil:
		return "", failed("user defined partitioning requires metadata.%s", ingest.PartitionField)
	default:
		return "", failed("metadata.%s has unsupported type %T", ingest.PartitionField, v)
	}

	if p < 0 || p >= eventType.PartitionCount() {
		return "", failed("partition %d out of range [0, %d)", p, eventType.PartitionCount())
	}
	return strconv.Itoa(p), nil
}

func failed(format string, args ...any) error {
	return ingest.NewError(ingest.KindPartitioningFailed, fmt.Sprintf(format, args...))
}
