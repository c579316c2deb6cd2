package eventtype

import (
	"fmt"

	"github.com/spf13/viper"

	"ingest/internal/ingest"
)

type definitions struct {
	EventTypes []ingest.EventType `mapstructure:"event_types"`
}

// LoadFile reads event type definitions from a yaml, json or toml file with
// a top level "event_types" list.
//
// Keys of nested maps are lowercased by the loader, so json-schema documents
// with mixed case property names should be given as a string.
func LoadFile(path string) ([]ingest.EventType, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read event types from %s: %w", path, err)
	}

	var defs definitions
	if err := v.Unmarshal(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode event types from %s: %w", path, err)
	}

	for _, et := range defs.EventTypes {
		if err := et.Validate(); err != nil {
			return nil, fmt.Errorf("invalid event type in %s: %w", path, err)
		}
	}
	return defs.EventTypes, nil
}

// LoadStatic builds a Static registry from a definitions file.
func LoadStatic(path string) (*Static, error) {
	types, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(types...)
}
