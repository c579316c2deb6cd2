package validation

import (
	"errors"
	"fmt"

	"ingest/internal/ingest"
)

// ErrBuilderClosed is returned when a builder is used after Publish or Discard.
var ErrBuilderClosed = errors.New("validator builder already published or discarded")

// Reason is one validator's rejection of an event.
type Reason struct {
	Strategy string
	Message  string
}

func (r Reason) String() string {
	return r.Strategy + ": " + r.Message
}

// ValidationResult holds every reason an event was rejected, in the order the
// validators were configured. A result without reasons is valid.
type ValidationResult struct {
	Reasons []Reason
}

func (r ValidationResult) Valid() bool { return len(r.Reasons) == 0 }

// Err converts an invalid result into a validation_failed error carrying one
// reason per failing validator. It returns nil for a valid result.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	reasons := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		reasons[i] = reason.String()
	}
	return ingest.NewError(ingest.KindValidationFailed, "validation failed", ingest.WithReasons(reasons...))
}

type boundValidator struct {
	strategy  string
	validator EventValidator
}

// validate keeps a panicking validator from escaping into the caller's worker.
// The panic is reported as a rejection of this event only.
func (bv boundValidator) validate(event ingest.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return bv.validator.Validate(event)
}

// EventTypeValidator is the frozen, immutable set of validators of one event
// type. It is only obtainable from Builder.Publish and is safe for concurrent
// use.
type EventTypeValidator struct {
	eventType  string
	validators []boundValidator
}

func (v *EventTypeValidator) EventType() string { return v.eventType }

// Len is the number of configured validators.
func (v *EventTypeValidator) Len() int { return len(v.validators) }

// Validate runs every validator and collects all failures.
func (v *EventTypeValidator) Validate(event ingest.Event) ValidationResult {
	var res ValidationResult
	for _, bv := range v.validators {
		if err := bv.validate(event); err != nil {
			res.Reasons = append(res.Reasons, Reason{Strategy: bv.strategy, Message: err.Error()})
		}
	}
	return res
}

// Builder accumulates validators for one event type. It holds the registry's
// reservation for the name until Publish or Discard is called.
type Builder struct {
	registry   *Registry
	eventType  ingest.EventType
	validators []boundValidator
	err        error
	closed     bool
}

func (b *Builder) EventType() string { return b.eventType.Name }

// WithConfiguration materializes cfg and appends it. The first failure is
// kept and reported by Publish; later calls become no-ops.
func (b *Builder) WithConfiguration(cfg ingest.ValidationStrategyConfiguration) *Builder {
	if b.err != nil {
		return b
	}
	if b.closed {
		b.err = ErrBuilderClosed
		return b
	}

	strategy, err := b.registry.strategies.Lookup(cfg.StrategyName)
	if err != nil {
		b.err = fmt.Errorf("event type %s: %w", b.eventType.Name, err)
		return b
	}
	v, err := strategy.Materialize(b.eventType, cfg)
	if err != nil {
		b.err = fmt.Errorf("failed to materialize validator: %w", err)
		return b
	}

	b.validators = append(b.validators, boundValidator{strategy: strategy.Name(), validator: v})
	return b
}

// Err reports the first configuration error, if any.
func (b *Builder) Err() error { return b.err }

// Publish freezes the validator and makes it visible to Lookup. On error the
// reservation is released and nothing is published. Publishing never replaces
// a validator that is already visible.
func (b *Builder) Publish() (*EventTypeValidator, error) {
	if b.closed {
		return nil, ErrBuilderClosed
	}
	b.closed = true

	if b.err != nil {
		b.registry.release(b.eventType.Name)
		return nil, b.err
	}

	v := &EventTypeValidator{
		eventType:  b.eventType.Name,
		validators: append([]boundValidator(nil), b.validators...),
	}
	if err := b.registry.publish(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Discard abandons the build and releases the reservation. It is safe to call
// after Publish.
func (b *Builder) Discard() {
	if b.closed {
		return
	}
	b.closed = true
	b.registry.release(b.eventType.Name)
}
