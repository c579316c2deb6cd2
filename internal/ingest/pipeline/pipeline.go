// Package pipeline turns batches of raw events into per-item outcomes:
// validate, enrich, partition, then publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ingest/internal/deps"
	"ingest/internal/id"
	"ingest/internal/ingest"
	"ingest/internal/ingest/validation"
)

// Config controls concurrency and the default batch deadline.
type Config struct {
	// Workers bounds the goroutines validating, enriching and partitioning.
	Workers int `env:"PIPELINE_WORKERS" envDefault:"8"`
	// PublishLanes bounds how many partitions publish concurrently.
	PublishLanes int `env:"PIPELINE_PUBLISH_LANES" envDefault:"16"`
	// BatchTimeout applies when the caller's context has no deadline.
	BatchTimeout time.Duration `env:"PIPELINE_BATCH_TIMEOUT" envDefault:"5s"`
}

// Validators resolves the published validator of an event type.
type Validators interface {
	Lookup(name string) (*validation.EventTypeValidator, bool)
}

// ValidationRecorder is told about every validator that rejected an event.
type ValidationRecorder interface {
	RecordValidationFailure(eventType, strategy string)
}

type Option func(*Pipeline)

// WithEnricher replaces the default enricher (random UUIDs, wall clock).
func WithEnricher(e *Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

// WithBatchIDs replaces the batch id generator.
func WithBatchIDs(g id.Generator) Option {
	return func(p *Pipeline) { p.batchIDs = g }
}

func WithValidationRecorder(r ValidationRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline implements ingest.BatchProcessor.
type Pipeline struct {
	config     Config
	validators Validators
	eventTypes ingest.EventTypeRegistry
	assigner   ingest.PartitionAssigner
	appender   ingest.LogAppender
	enricher   *Enricher
	batchIDs   id.Generator
	recorder   ValidationRecorder
	logger     *zap.Logger
}

var _ ingest.BatchProcessor = (*Pipeline)(nil)

func New(
	config Config,
	validators Validators,
	eventTypes ingest.EventTypeRegistry,
	assigner ingest.PartitionAssigner,
	appender ingest.LogAppender,
	logger *zap.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if err := deps.Validate("pipeline", validators, eventTypes, assigner, appender, logger); err != nil {
		return nil, err
	}
	if config.Workers < 1 || config.PublishLanes < 1 {
		return nil, fmt.Errorf("pipeline needs at least one worker and one publish lane, got %d and %d",
			config.Workers, config.PublishLanes)
	}

	p := &Pipeline{
		config:     config,
		validators: validators,
		eventTypes: eventTypes,
		assigner:   assigner,
		appender:   appender,
		enricher:   NewEnricher(id.UUID, time.Now),
		batchIDs:   id.NUID,
		logger:     logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// ProcessBatch runs every event through the pipeline. Items are independent:
// one item's failure never affects another. The error is reserved for faults
// that make the whole batch unreliable, such as a panicking worker.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []ingest.RawEvent) (ingest.BatchResult, error) {
	batchID := p.batchIDs.New()
	logger := p.logger.With(zap.String("batch_id", batchID))

	if _, ok := ctx.Deadline(); !ok && p.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.BatchTimeout)
		defer cancel()
	}

	b := &batch{
		items: make([]*ingest.BatchItem, len(events)),
		types: make([]ingest.EventType, len(events)),
	}

	if err := p.prepare(ctx, b, events); err != nil {
		logger.Error("batch aborted while preparing items", zap.Error(err))
		return ingest.BatchResult{BatchID: batchID}, err
	}
	if err := p.publish(ctx, b); err != nil {
		logger.Error("batch aborted while publishing items", zap.Error(err))
		return ingest.BatchResult{BatchID: batchID}, err
	}
	if err := abortRemaining(ctx, b.items); err != nil {
		return ingest.BatchResult{BatchID: batchID}, err
	}

	result := ingest.BatchResult{
		BatchID: batchID,
		Items:   make([]ingest.ItemResponse, len(b.items)),
	}
	for i, item := range b.items {
		result.Items[i] = item.Response()
		if s := item.State(); s.Status != ingest.StatusSuccess {
			logger.Debug("item not published",
				zap.Int("index", i),
				zap.String("event_type", item.EventType()),
				zap.Stringer("step", s.Step),
				zap.Stringer("status", s.Status),
				zap.String("detail", s.Detail),
			)
		}
	}
	result.Status = ingest.Aggregate(result.Items)

	logger.Info("batch processed",
		zap.Int("size", len(events)),
		zap.String("status", string(result.Status)),
		zap.Int("succeeded", result.Count(ingest.StatusSuccess)),
		zap.Int("failed", result.Count(ingest.StatusFailed)),
		zap.Int("aborted", result.Count(ingest.StatusAborted)),
	)

	return result, nil
}

// batch holds per-item state. Index i of each slice is written only by the
// goroutine currently owning item i.
type batch struct {
	items []*ingest.BatchItem
	types []ingest.EventType
}

// prepare validates, enriches and partitions items on a bounded pool.
func (p *Pipeline) prepare(ctx context.Context, b *batch, events []ingest.RawEvent) error {
	var g errgroup.Group
	g.SetLimit(p.config.Workers)

	for i, raw := range events {
		g.Go(func() error {
			return catch(i, func() error {
				return p.prepareItem(ctx, b, i, raw)
			})
		})
	}

	return g.Wait()
}

func (p *Pipeline) prepareItem(ctx context.Context, b *batch, i int, raw ingest.RawEvent) error {
	event, parseErr := ingest.ParseEvent(raw)
	item := ingest.NewBatchItem(i, event)
	b.items[i] = item

	if err := ctx.Err(); err != nil {
		return item.Abort(timeoutError(err))
	}
	if err := item.Begin(ingest.StepValidating); err != nil {
		return err
	}
	if parseErr != nil {
		return item.Fail(ingest.NewError(ingest.KindValidationFailed, "malformed event", ingest.WithCause(parseErr)))
	}

	et, failure := p.resolve(ctx, item)
	if failure != nil {
		return terminate(item, failure)
	}

	if err := ctx.Err(); err != nil {
		return item.Abort(timeoutError(err))
	}
	if err := item.Begin(ingest.StepEnriching); err != nil {
		return err
	}
	enriched, err := p.enricher.Enrich(item.Event(), et)
	if err != nil {
		return item.Fail(classify(err, ingest.KindEnrichmentFailed, "enrichment failed"))
	}
	if err := item.ReplaceEvent(enriched); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return item.Abort(timeoutError(err))
	}
	if err := item.Begin(ingest.StepPartitioning); err != nil {
		return err
	}
	partition, err := p.assigner.Assign(item.Event(), et)
	if err != nil {
		return item.Fail(classify(err, ingest.KindPartitioningFailed, "partitioning failed"))
	}
	if err := item.SetPartition(partition); err != nil {
		return err
	}

	b.types[i] = et
	return nil
}

// resolve looks up the validator and configuration of the item's event type
// and validates the event. A non-nil error ends the item.
func (p *Pipeline) resolve(ctx context.Context, item *ingest.BatchItem) (ingest.EventType, error) {
	name := item.EventType()
	if name == "" {
		return ingest.EventType{}, ingest.NewError(ingest.KindUnknownEventType,
			"unknown event type: metadata.event_type is missing")
	}

	validator, ok := p.validators.Lookup(name)
	if !ok {
		return ingest.EventType{}, unknownEventType(name)
	}

	et, found, err := p.eventTypes.GetConfig(ctx, name)
	switch {
	case err != nil && ctx.Err() != nil:
		return ingest.EventType{}, timeoutError(ctx.Err())
	case err != nil:
		return ingest.EventType{}, ingest.NewError(ingest.KindInternal, "event type registry unavailable",
			ingest.WithCause(err),
			ingest.WithRetryable(true),
		)
	case !found:
		return ingest.EventType{}, unknownEventType(name)
	}

	res := validator.Validate(item.Event())
	if !res.Valid() {
		if p.recorder != nil {
			for _, r := range res.Reasons {
				p.recorder.RecordValidationFailure(name, r.Strategy)
			}
		}
		return ingest.EventType{}, res.Err()
	}

	return et, nil
}

// publish runs one lane per partition. Within a lane items are appended in
// batch order; lanes run concurrently up to PublishLanes.
func (p *Pipeline) publish(ctx context.Context, b *batch) error {
	var (
		order []ingest.PartitionKey
		lanes = make(map[ingest.PartitionKey][]int)
	)
	for i, item := range b.items {
		if item.State().Status.Terminal() {
			continue
		}
		key := ingest.PartitionKey{EventType: b.types[i].Name, Partition: item.Partition()}
		if _, ok := lanes[key]; !ok {
			order = append(order, key)
		}
		lanes[key] = append(lanes[key], i)
	}
	if len(order) == 0 {
		return nil
	}

	pl := pool.New().WithErrors().WithMaxGoroutines(p.config.PublishLanes)
	for _, key := range order {
		lane := lanes[key]
		pl.Go(func() error {
			for _, i := range lane {
				if err := catch(i, func() error {
					return p.publishItem(ctx, key, b.items[i])
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return pl.Wait()
}

// publishItem appends one item. Items of a lane are published one after the
// other, so a failure never reorders the items behind it.
func (p *Pipeline) publishItem(ctx context.Context, key ingest.PartitionKey, item *ingest.BatchItem) error {
	if err := ctx.Err(); err != nil {
		return item.Abort(timeoutError(err))
	}
	if err := item.Begin(ingest.StepPublishing); err != nil {
		return err
	}

	err := p.appender.Publish(ctx, key, item.Event())
	switch {
	case err == nil:
		return item.Succeed()
	case ctx.Err() != nil:
		return item.Abort(timeoutError(ctx.Err()))
	default:
		return item.Fail(publishError(err))
	}
}

// abortRemaining ends any item that did not reach a terminal state.
func abortRemaining(ctx context.Context, items []*ingest.BatchItem) error {
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	for _, item := range items {
		if item.State().Status.Terminal() {
			continue
		}
		if err := item.Abort(timeoutError(cause)); err != nil {
			return err
		}
	}
	return nil
}

// catch runs f for the item at index and turns a panic into a batch-level
// internal error tied to that item.
func catch(index int, f func() error) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = f() })
	if r := pc.Recovered(); r != nil {
		return ingest.NewError(ingest.KindInternal, "pipeline worker panicked",
			ingest.WithIndex(index),
			ingest.WithCause(r.AsError()),
		)
	}
	if err != nil {
		return ingest.NewError(ingest.KindInternal, "item state invariant violated",
			ingest.WithIndex(index),
			ingest.WithCause(err),
		)
	}
	return nil
}

func terminate(item *ingest.BatchItem, err error) error {
	if ingest.KindOf(err) == ingest.KindBatchTimeout || ingest.KindOf(err) == ingest.KindInternal {
		return item.Abort(err)
	}
	return item.Fail(err)
}

func unknownEventType(name string) error {
	return ingest.NewError(ingest.KindUnknownEventType, fmt.Sprintf("unknown event type: %s", name))
}

func timeoutError(cause error) error {
	msg := "batch deadline exceeded"
	if errors.Is(cause, context.Canceled) {
		msg = "batch cancelled"
	}
	return ingest.NewError(ingest.KindBatchTimeout, msg, ingest.WithCause(cause), ingest.WithRetryable(true))
}

// classify keeps errors that already carry a kind and wraps the rest.
func classify(err error, kind ingest.Kind, message string) error {
	var e *ingest.Error
	if errors.As(err, &e) {
		return err
	}
	return ingest.NewError(kind, message, ingest.WithCause(err))
}

// publishError treats unclassified appender errors as permanent.
func publishError(err error) error {
	switch ingest.KindOf(err) {
	case ingest.KindPublishTransient, ingest.KindPublishPermanent:
		return err
	default:
		return ingest.Permanent(err)
	}
}
