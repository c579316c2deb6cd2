package ingest

import (
	"errors"
	"strconv"
	"strings"
)

// Kind classifies an ingestion failure.
type Kind string

const (
	KindUnknownEventType   Kind = "unknown_event_type"
	KindValidationFailed   Kind = "validation_failed"
	KindEnrichmentFailed   Kind = "enrichment_failed"
	KindPartitioningFailed Kind = "partitioning_failed"
	KindPublishTransient   Kind = "publish_transient"
	KindPublishPermanent   Kind = "publish_permanent"
	KindDuplicateValidator Kind = "duplicate_validator"
	KindUnknownStrategy    Kind = "unknown_strategy"
	KindBatchTimeout       Kind = "batch_timeout"
	KindInternal           Kind = "internal"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrUnknownEventType   = &Error{Kind: KindUnknownEventType, Index: NoIndex}
	ErrValidationFailed   = &Error{Kind: KindValidationFailed, Index: NoIndex}
	ErrEnrichmentFailed   = &Error{Kind: KindEnrichmentFailed, Index: NoIndex}
	ErrPartitioningFailed = &Error{Kind: KindPartitioningFailed, Index: NoIndex}
	ErrPublishTransient   = &Error{Kind: KindPublishTransient, Index: NoIndex}
	ErrPublishPermanent   = &Error{Kind: KindPublishPermanent, Index: NoIndex}
	ErrDuplicateValidator = &Error{Kind: KindDuplicateValidator, Index: NoIndex}
	ErrUnknownStrategy    = &Error{Kind: KindUnknownStrategy, Index: NoIndex}
	ErrBatchTimeout       = &Error{Kind: KindBatchTimeout, Index: NoIndex}
	ErrInternal           = &Error{Kind: KindInternal, Index: NoIndex}
)

// NoIndex marks an error that is not tied to a batch item.
const NoIndex = -1

// Error is the structured error used across the ingestion core.
type Error struct {
	Kind    Kind
	Message string
	// Index is the position of the item in its batch, or NoIndex.
	Index int
	// Reasons lists every individual cause, e.g. one per failed validator.
	Reasons   []string
	Retryable bool

	cause error
}

// ErrorOption configures an Error.
type ErrorOption func(*Error)

// NewError constructs an error of the given kind.
func NewError(kind Kind, message string, opts ...ErrorOption) *Error {
	e := &Error{
		Kind:    kind,
		Message: strings.TrimSpace(message),
		Index:   NoIndex,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithIndex ties the error to a batch item.
func WithIndex(index int) ErrorOption {
	return func(e *Error) {
		e.Index = index
	}
}

// WithReasons records individual failure reasons.
func WithReasons(reasons ...string) ErrorOption {
	return func(e *Error) {
		e.Reasons = append(e.Reasons, reasons...)
	}
}

// WithCause sets the underlying error.
func WithCause(err error) ErrorOption {
	return func(e *Error) {
		e.cause = err
	}
}

// WithRetryable flags the failure as safe to resubmit.
func WithRetryable(retryable bool) ErrorOption {
	return func(e *Error) {
		e.Retryable = retryable
	}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Index != NoIndex {
		b.WriteString(" (item ")
		b.WriteString(strconv.Itoa(e.Index))
		b.WriteString(")")
	}
	if d := e.Detail(); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Detail is the human readable explanation reported back to producers.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	switch {
	case len(e.Reasons) == 0:
		return e.Message
	case e.Message == "":
		return strings.Join(e.Reasons, "; ")
	default:
		return e.Message + ": " + strings.Join(e.Reasons, "; ")
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// IsRetryable implements Retryable.
func (e *Error) IsRetryable() bool {
	return e != nil && e.Retryable
}

// Retryable is implemented by errors that know whether a resubmission may succeed.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err, or anything it wraps, is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the producer-facing explanation for err.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if d := e.Detail(); d != "" {
			return d
		}
	}
	return err.Error()
}

// Transient marks a log backend failure as temporary. Appenders return it
// for conditions like an unavailable broker.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return NewError(KindPublishTransient, "log backend temporarily unavailable",
		WithCause(err),
		WithRetryable(true),
	)
}

// Permanent marks a log backend failure as irrecoverable for this event.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return NewError(KindPublishPermanent, "log backend rejected event", WithCause(err))
}
