package ingest

import (
	"fmt"
	"regexp"
)

// Category of an event type. Business and data events must carry metadata.
type Category string

const (
	CategoryUndefined Category = "undefined"
	CategoryData      Category = "data"
	CategoryBusiness  Category = "business"
)

// PartitionStrategy selects how events of a type are spread over partitions.
type PartitionStrategy string

const (
	// PartitionHash hashes the values of the partition key fields.
	PartitionHash PartitionStrategy = "hash"
	// PartitionUserDefined takes metadata.partition from the event.
	PartitionUserDefined PartitionStrategy = "user_defined"
	// PartitionSingle routes everything to partition "0".
	PartitionSingle PartitionStrategy = "single"
)

// EnrichmentStrategy names a metadata enrichment applied before partitioning.
type EnrichmentStrategy string

const (
	EnrichmentMetadata EnrichmentStrategy = "metadata_enrichment"
)

// ValidationStrategyConfiguration selects a validation strategy by name and
// carries its strategy specific parameters.
type ValidationStrategyConfiguration struct {
	StrategyName string         `json:"strategy_name" mapstructure:"strategy_name"`
	Params       map[string]any `json:"additional_configuration,omitempty" mapstructure:"additional_configuration"`
}

// EventType is the configuration the pipeline needs for one event type.
type EventType struct {
	Name                 string                            `json:"name" mapstructure:"name"`
	OwningApplication    string                            `json:"owning_application,omitempty" mapstructure:"owning_application"`
	Category             Category                          `json:"category,omitempty" mapstructure:"category"`
	PartitionStrategy    PartitionStrategy                 `json:"partition_strategy,omitempty" mapstructure:"partition_strategy"`
	PartitionKeyFields   []string                          `json:"partition_key_fields,omitempty" mapstructure:"partition_key_fields"`
	Partitions           int                               `json:"partitions,omitempty" mapstructure:"partitions"`
	EnrichmentStrategies []EnrichmentStrategy              `json:"enrichment_strategies,omitempty" mapstructure:"enrichment_strategies"`
	ValidationStrategies []ValidationStrategyConfiguration `json:"validation_strategies,omitempty" mapstructure:"validation_strategies"`
}

var eventTypeNameRegex = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*$`)

// Validate checks the configuration is usable by the pipeline.
func (et EventType) Validate() error {
	if !eventTypeNameRegex.MatchString(et.Name) {
		return fmt.Errorf("event type name %q has invalid characters", et.Name)
	}
	if et.Partitions < 0 {
		return fmt.Errorf("event type %s: partitions must not be negative", et.Name)
	}

	switch et.PartitionStrategy {
	case "", PartitionSingle, PartitionUserDefined:
	case PartitionHash:
		if len(et.PartitionKeyFields) == 0 {
			return fmt.Errorf("event type %s: hash partitioning requires partition_key_fields", et.Name)
		}
	default:
		return fmt.Errorf("event type %s: unknown partition strategy %q", et.Name, et.PartitionStrategy)
	}

	return nil
}

// PartitionCount is the number of partitions, at least one.
func (et EventType) PartitionCount() int {
	return max(et.Partitions, 1)
}

// RequiresMetadata reports whether events of this type must carry a metadata object.
func (et EventType) RequiresMetadata() bool {
	return et.Category == CategoryBusiness || et.Category == CategoryData
}
