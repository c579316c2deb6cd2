package appender

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"ingest/internal/ingest"
)

// RateLimitConfig caps appends per second across all partitions. A zero
// rate disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `env:"PUBLISH_RATE_LIMIT" envDefault:"0"`
	Burst     int     `env:"PUBLISH_RATE_BURST" envDefault:"1"`
}

// WaitRecorder observes how long publishes were held back.
type WaitRecorder interface {
	RecordRateLimitWait(wait time.Duration)
}

// RateLimited delays appends to stay under the configured rate.
type RateLimited struct {
	appender ingest.LogAppender
	limiter  *rate.Limiter
	recorder WaitRecorder
}

// NewRateLimited returns appender unchanged when limiting is disabled.
// recorder may be nil.
func NewRateLimited(appender ingest.LogAppender, config RateLimitConfig, recorder WaitRecorder) ingest.LogAppender {
	if config.PerSecond <= 0 {
		return appender
	}
	return &RateLimited{
		appender: appender,
		limiter:  rate.NewLimiter(rate.Limit(config.PerSecond), max(config.Burst, 1)),
		recorder: recorder,
	}
}

func (r *RateLimited) Publish(ctx context.Context, key ingest.PartitionKey, event ingest.Event) error {
	start := time.Now()
	// Wait fails early when the deadline would pass before a token is free.
	if err := r.limiter.Wait(ctx); err != nil {
		return ingest.Transient(err)
	}
	if r.recorder != nil {
		r.recorder.RecordRateLimitWait(time.Since(start))
	}

	return r.appender.Publish(ctx, key, event)
}
