package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrTerminalState  = errors.New("item is already in a terminal state")
	ErrStepRegression = errors.New("step does not move forward")
	ErrPartitionSet   = errors.New("partition already assigned")
)

// ItemState is one immutable snapshot of an item's publishing progress.
// Every transition produces a new snapshot; BatchItem keeps all of them.
type ItemState struct {
	Step      Step
	Status    Status
	Detail    string
	Kind      Kind
	Retryable bool
}

func (s ItemState) begin(step Step) (ItemState, error) {
	if s.Status.Terminal() {
		return s, fmt.Errorf("cannot begin %s: %w", step, ErrTerminalState)
	}
	if step <= s.Step || step >= StepPublished {
		return s, fmt.Errorf("cannot move from %s to %s: %w", s.Step, step, ErrStepRegression)
	}

	next := s
	next.Step = step
	next.Status = StatusProcessing
	return next, nil
}

func (s ItemState) succeed() (ItemState, error) {
	if s.Status.Terminal() {
		return s, fmt.Errorf("cannot succeed: %w", ErrTerminalState)
	}
	if s.Step != StepPublishing {
		return s, fmt.Errorf("cannot succeed from %s: %w", s.Step, ErrStepRegression)
	}

	return ItemState{Step: StepPublished, Status: StatusSuccess}, nil
}

func (s ItemState) terminate(status Status, err error) (ItemState, error) {
	if s.Status.Terminal() {
		return s, fmt.Errorf("cannot mark %s: %w", status, ErrTerminalState)
	}

	next := s
	next.Status = status
	next.Kind = KindOf(err)
	next.Detail = DetailOf(err)
	next.Retryable = IsRetryable(err)
	return next, nil
}

// BatchItem is the unit of work of the pipeline: one event plus its state
// history. An item is owned by exactly one stage at a time and is not safe
// for concurrent use.
type BatchItem struct {
	index     int
	event     Event
	eid       string
	eventType string
	partition string
	history   []ItemState
}

// NewBatchItem wraps an event. The eid and event type are captured now and
// are reported even if enrichment later rewrites the event.
func NewBatchItem(index int, event Event) *BatchItem {
	return &BatchItem{
		index:     index,
		event:     event,
		eid:       event.EID(),
		eventType: event.EventType(),
		history:   []ItemState{{Step: StepNone, Status: StatusSubmitted}},
	}
}

func (b *BatchItem) Index() int        { return b.index }
func (b *BatchItem) Event() Event      { return b.event }
func (b *BatchItem) EID() string       { return b.eid }
func (b *BatchItem) EventType() string { return b.eventType }
func (b *BatchItem) Partition() string { return b.partition }

// State is the current snapshot.
func (b *BatchItem) State() ItemState {
	return b.history[len(b.history)-1]
}

// History returns every snapshot, oldest first.
func (b *BatchItem) History() []ItemState {
	out := make([]ItemState, len(b.history))
	copy(out, b.history)
	return out
}

// ReplaceEvent swaps in the enriched event. Only the enrichment stage calls it.
func (b *BatchItem) ReplaceEvent(e Event) error {
	if b.State().Status.Terminal() {
		return ErrTerminalState
	}
	b.event = e
	return nil
}

// SetPartition records the partition assignment. It may be set only once.
func (b *BatchItem) SetPartition(partition string) error {
	if b.partition != "" {
		return fmt.Errorf("item %d: %w: %s", b.index, ErrPartitionSet, b.partition)
	}
	b.partition = partition
	return nil
}

// Begin moves the item to step and marks it processing.
func (b *BatchItem) Begin(step Step) error {
	return b.apply(b.State().begin(step))
}

// Succeed marks the item published.
func (b *BatchItem) Succeed() error {
	return b.apply(b.State().succeed())
}

// Fail marks the item failed at its current step. Kind, detail and the
// retryable flag are taken from err.
func (b *BatchItem) Fail(err error) error {
	return b.apply(b.State().terminate(StatusFailed, err))
}

// Abort marks the item aborted at its current step.
func (b *BatchItem) Abort(err error) error {
	return b.apply(b.State().terminate(StatusAborted, err))
}

func (b *BatchItem) apply(next ItemState, err error) error {
	if err != nil {
		return fmt.Errorf("item %d: %w", b.index, err)
	}
	b.history = append(b.history, next)
	return nil
}

// Response is the producer-facing view of the item.
func (b *BatchItem) Response() ItemResponse {
	s := b.State()
	return ItemResponse{
		EID:       b.eid,
		Step:      s.Step,
		Status:    s.Status,
		Detail:    s.Detail,
		Kind:      s.Kind,
		Retryable: s.Retryable,
		Partition: b.partition,
	}
}
