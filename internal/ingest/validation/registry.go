package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"ingest/internal/deps"
	"ingest/internal/ingest"
)

type validatorTable map[string]*EventTypeValidator

// Registry maps event type names to published validators.
//
// Readers load an immutable snapshot through an atomic pointer and never
// block. Writers serialize on mu and publish a copied table, so a validator
// that was looked up stays valid after it is invalidated or replaced.
type Registry struct {
	strategies *StrategyRegistry
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	table   atomic.Pointer[validatorTable]
}

func NewRegistry(strategies *StrategyRegistry, logger *zap.Logger) (*Registry, error) {
	if err := deps.Validate("validation registry", strategies, logger); err != nil {
		return nil, err
	}

	r := &Registry{
		strategies: strategies,
		logger:     logger.Named("validators"),
		pending:    make(map[string]struct{}),
	}
	r.table.Store(&validatorTable{})
	return r, nil
}

// ForType reserves eventType's name and returns a builder for it. It fails
// with a duplicate_validator error when the name is already published or
// being built. The check and the reservation happen under one lock.
func (r *Registry) ForType(eventType ingest.EventType) (*Builder, error) {
	if err := eventType.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event type: %w", err)
	}
	name := eventType.Name

	r.mu.Lock()
	defer r.mu.Unlock()

	_, published := (*r.table.Load())[name]
	_, building := r.pending[name]
	if published || building {
		return nil, ingest.NewError(ingest.KindDuplicateValidator,
			fmt.Sprintf("validator for event type %s already registered", name))
	}
	r.pending[name] = struct{}{}

	return &Builder{registry: r, eventType: eventType}, nil
}

// Lookup returns the published validator for name. A missing entry means the
// event type is unknown, which is not a validation failure.
func (r *Registry) Lookup(name string) (*EventTypeValidator, bool) {
	v, ok := (*r.table.Load())[name]
	return v, ok
}

// Invalidate removes the validator for name, returning whether one existed.
// Callers holding the old validator may keep using it.
func (r *Registry) Invalidate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.table.Load()
	if _, ok := cur[name]; !ok {
		return false
	}

	next := make(validatorTable, len(cur))
	for k, v := range cur {
		if k != name {
			next[k] = v
		}
	}
	r.table.Store(&next)
	r.logger.Info("validator invalidated", zap.String("event_type", name))
	return true
}

// Register builds and publishes a validator from the event type's own
// validation strategies.
func (r *Registry) Register(eventType ingest.EventType) (*EventTypeValidator, error) {
	b, err := r.ForType(eventType)
	if err != nil {
		return nil, err
	}
	for _, cfg := range eventType.ValidationStrategies {
		b.WithConfiguration(cfg)
	}
	return b.Publish()
}

// Replace swaps the validator of an updated event type. Readers see either
// the old or the new validator, never neither.
func (r *Registry) Replace(eventType ingest.EventType) (*EventTypeValidator, error) {
	v, err := r.compile(eventType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, building := r.pending[eventType.Name]; building {
		return nil, ingest.NewError(ingest.KindDuplicateValidator,
			fmt.Sprintf("validator for event type %s is being built", eventType.Name))
	}
	r.store(v)
	return v, nil
}

// Rebuild replaces the whole table with validators compiled from every event
// type the lister knows about. Types that fail to compile are logged, left out
// and reported in the joined error; the rest are still published.
//
// Rebuild never overwrites concurrent writers. A name reserved by ForType is
// left to its builder, and a validator published or replaced while Rebuild was
// compiling is kept. Both cases are reported as duplicate_validator errors when
// the lister also returned the name.
func (r *Registry) Rebuild(ctx context.Context, lister ingest.EventTypeLister) (int, error) {
	before := *r.table.Load()

	eventTypes, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list event types: %w", err)
	}

	var errs []error
	next := make(validatorTable, len(eventTypes))
	for _, et := range eventTypes {
		if _, dup := next[et.Name]; dup {
			errs = append(errs, ingest.NewError(ingest.KindDuplicateValidator,
				fmt.Sprintf("event type %s listed twice", et.Name)))
			continue
		}
		v, err := r.compile(et)
		if err != nil {
			r.logger.Error("failed to build validator", zap.String("event_type", et.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		next[et.Name] = v
	}

	r.mu.Lock()
	for name := range r.pending {
		if _, listed := next[name]; listed {
			delete(next, name)
			errs = append(errs, ingest.NewError(ingest.KindDuplicateValidator,
				fmt.Sprintf("validator for event type %s is being built", name)))
		}
	}
	for name, v := range *r.table.Load() {
		if prev, ok := before[name]; ok && prev == v {
			continue
		}
		if _, listed := next[name]; listed {
			errs = append(errs, ingest.NewError(ingest.KindDuplicateValidator,
				fmt.Sprintf("validator for event type %s was published during rebuild", name)))
		}
		next[name] = v
	}
	r.table.Store(&next)
	r.mu.Unlock()

	r.logger.Info("validators rebuilt", zap.Int("count", len(next)), zap.Int("failed", len(errs)))
	return len(next), errors.Join(errs...)
}

// Names lists published event types in lexical order.
func (r *Registry) Names() []string {
	cur := *r.table.Load()
	names := make([]string, 0, len(cur))
	for n := range cur {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int { return len(*r.table.Load()) }

// compile builds a validator without touching the table.
func (r *Registry) compile(eventType ingest.EventType) (*EventTypeValidator, error) {
	if err := eventType.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event type: %w", err)
	}
	b := &Builder{registry: r, eventType: eventType}
	for _, cfg := range eventType.ValidationStrategies {
		b.WithConfiguration(cfg)
	}
	if b.err != nil {
		return nil, b.err
	}
	return &EventTypeValidator{eventType: eventType.Name, validators: b.validators}, nil
}

func (r *Registry) publish(v *EventTypeValidator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, v.eventType)
	if _, ok := (*r.table.Load())[v.eventType]; ok {
		return ingest.NewError(ingest.KindDuplicateValidator,
			fmt.Sprintf("validator for event type %s already registered", v.eventType))
	}
	r.store(v)
	r.logger.Info("validator published", zap.String("event_type", v.eventType), zap.Int("validators", len(v.validators)))
	return nil
}

// store must be called with mu held.
func (r *Registry) store(v *EventTypeValidator) {
	cur := *r.table.Load()
	next := make(validatorTable, len(cur)+1)
	for k, existing := range cur {
		next[k] = existing
	}
	next[v.eventType] = v
	r.table.Store(&next)
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, name)
}
