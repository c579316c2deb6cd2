// Package validation compiles per event type validators from named
// validation strategies and keeps them in an injectable registry.
package validation

import (
	"fmt"
	"sort"

	"ingest/internal/ingest"
)

// EventValidator checks one rule against an event. A nil error means the
// event passes; otherwise the error message is the reason reported back.
type EventValidator interface {
	Validate(event ingest.Event) error
}

// ValidatorFunc adapts a function into an EventValidator.
type ValidatorFunc func(event ingest.Event) error

func (f ValidatorFunc) Validate(event ingest.Event) error { return f(event) }

// ValidationStrategy materializes validators from configuration. Materialize
// must be a pure factory.
type ValidationStrategy interface {
	Name() string
	Materialize(eventType ingest.EventType, cfg ingest.ValidationStrategyConfiguration) (EventValidator, error)
}

// StrategyRegistry maps strategy names to strategies. It is populated once at
// construction and read-only afterwards, so lookups need no locking.
type StrategyRegistry struct {
	strategies map[string]ValidationStrategy
}

// NewStrategyRegistry registers the given strategies. Names must be unique.
func NewStrategyRegistry(strategies ...ValidationStrategy) (*StrategyRegistry, error) {
	r := &StrategyRegistry{strategies: make(map[string]ValidationStrategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("nil validation strategy")
		}
		if _, ok := r.strategies[s.Name()]; ok {
			return nil, fmt.Errorf("validation strategy %q registered twice", s.Name())
		}
		r.strategies[s.Name()] = s
	}
	return r, nil
}

// DefaultStrategies returns a registry holding every built-in strategy.
func DefaultStrategies() *StrategyRegistry {
	r, err := NewStrategyRegistry(
		NewRequiredFieldsStrategy(),
		NewJSONSchemaStrategy(),
		NewFieldFormatStrategy(),
		NewFieldRangeStrategy(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the strategy registered under name.
func (r *StrategyRegistry) Lookup(name string) (ValidationStrategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, ingest.NewError(ingest.KindUnknownStrategy, fmt.Sprintf("unknown validation strategy %q", name))
	}
	return s, nil
}

// Names lists registered strategies in lexical order.
func (r *StrategyRegistry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func stringParam(cfg ingest.ValidationStrategyConfiguration, key string) (string, bool) {
	s, ok := cfg.Params[key].(string)
	return s, ok && s != ""
}

func stringsParam(cfg ingest.ValidationStrategyConfiguration, key string) ([]string, error) {
	switch v := cfg.Params[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q: expected strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q: expected a list of strings, got %T", key, v)
	}
}
