package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ingest/internal/couchbase"
	"ingest/internal/ingest"
	"ingest/internal/ingest/appender"
	"ingest/internal/ingest/metrics"
	"ingest/internal/ingest/partition"
	"ingest/internal/ingest/pipeline"
	"ingest/internal/ingest/tracing"
	"ingest/internal/ingest/validation"
)

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile          string        `env:"LOG_FILE"`
	LogFileMaxSizeMB int           `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	LogFileBackups   int           `env:"LOG_FILE_MAX_BACKUPS" envDefault:"3"`
	Version          string        `env:"SERVICE_VERSION" envDefault:"dev"`
	LogBackend       string        `env:"LOG_BACKEND" envDefault:"memory"`
	EventTypeSource  string        `env:"EVENT_TYPE_SOURCE" envDefault:"file"`
	EventTypesFile   string        `env:"EVENT_TYPES_FILE" envDefault:"event-types.yaml"`
	ConnectTimeout   time.Duration `env:"CONNECT_MAX_ELAPSED" envDefault:"30s"`
	RecordCodec      string        `env:"COUCHBASE_RECORD_CODEC" envDefault:"json"`
	TxnTimeout       time.Duration `env:"COUCHBASE_TXN_TIMEOUT" envDefault:"10s"`
	Producers        int           `env:"PRODUCERS" envDefault:"4"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"50"`
	Rounds           int           `env:"PUBLISH_ROUNDS" envDefault:"5"`
	RoundInterval    time.Duration `env:"PUBLISH_ROUND_INTERVAL" envDefault:"1s"`
	InvalidRatio     float64       `env:"INVALID_RATIO" envDefault:"0.1"`

	Pipeline  pipeline.Config
	RateLimit appender.RateLimitConfig
	Metrics   metrics.ServerConfig
	Tracing   tracing.Config
	Kafka     appender.KafkaConfig
	JetStream appender.JetStreamConfig
	Couchbase couchbase.Config
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse environment variables: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	metricsRegistry := metrics.NewRegistry()
	metricsRegistry.SetSystemInfo(cfg.Version, cfg.LogBackend)

	var ready atomic.Bool
	metricsServer := metrics.NewServer(cfg.Metrics, metricsRegistry, ready.Load, logger)
	go func() {
		if err := metricsServer.Start(context.Background()); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("metrics server started",
		zap.String("endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.Metrics.Port)),
		zap.String("ready", fmt.Sprintf("http://localhost:%d/ready", cfg.Metrics.Port)),
	)

	tracer, tracingCleanup, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingCleanup(shutdownCtx); err != nil {
			logger.Error("failed to cleanup tracing", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := &backends{cfg: cfg, logger: logger, registry: metricsRegistry, tracer: tracer}
	defer b.Close()

	eventTypes, err := b.eventTypes(ctx)
	if err != nil {
		logger.Fatal("failed to set up event type source", zap.Error(err))
	}

	validators, err := validation.NewRegistry(validation.DefaultStrategies(), logger)
	if err != nil {
		logger.Fatal("failed to create validator registry", zap.Error(err))
	}
	n, err := validators.Rebuild(ctx, eventTypes)
	if err != nil {
		// Types that failed to compile are reported and skipped.
		logger.Error("some event types have invalid validation strategies", zap.Error(err))
	}
	metricsRegistry.SetValidatorCount(n)
	logger.Info("validators registered", zap.Int("count", n), zap.Strings("event_types", validators.Names()))

	logAppender, err := b.appender(ctx)
	if err != nil {
		logger.Fatal("failed to set up log backend", zap.Error(err), zap.String("backend", cfg.LogBackend))
	}
	logAppender = appender.NewRateLimited(logAppender, cfg.RateLimit, metricsRegistry)
	logAppender = appender.NewMetricsAppender(logAppender, metricsRegistry)
	logAppender = appender.NewTracedAppender(logAppender, tracer)

	basePipeline, err := pipeline.New(
		cfg.Pipeline,
		validators,
		eventTypes,
		partition.NewAssigner(),
		logAppender,
		logger,
		pipeline.WithValidationRecorder(metricsRegistry),
	)
	if err != nil {
		logger.Fatal("failed to create pipeline", zap.Error(err))
	}
	metricsProcessor := pipeline.NewMetricsProcessor(basePipeline, metricsRegistry)
	processor := pipeline.NewTracedProcessor(metricsProcessor, tracer)

	ready.Store(true)
	logger.Info("ingestion ready",
		zap.String("log_backend", cfg.LogBackend),
		zap.String("event_type_source", cfg.EventTypeSource),
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.Int("publish_lanes", cfg.Pipeline.PublishLanes),
	)

	start := time.Now()
	var totals totals
	g, gctx := errgroup.WithContext(ctx)
	for p := range cfg.Producers {
		g.Go(func() error {
			return produce(gctx, logger.With(zap.Int("producer", p)), processor, cfg, &totals)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("producer stopped", zap.Error(err))
	}

	logger.Info("ingestion complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("batches", totals.batches.Load()),
		zap.Int64("published", totals.published.Load()),
		zap.Int64("rejected", totals.rejected.Load()),
		zap.Int64("aborted", totals.aborted.Load()),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop metrics server", zap.Error(err))
	}
}

type totals struct {
	batches   atomic.Int64
	published atomic.Int64
	rejected  atomic.Int64
	aborted   atomic.Int64
}

func produce(ctx context.Context, logger *zap.Logger, processor ingest.BatchProcessor, cfg Config, t *totals) error {
	ticker := time.NewTicker(max(cfg.RoundInterval, time.Millisecond))
	defer ticker.Stop()

	gen := newGenerator(cfg.InvalidRatio)
	for round := 0; round < cfg.Rounds; round++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		result, err := processor.ProcessBatch(ctx, gen.batch(cfg.BatchSize))
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		t.batches.Add(1)
		t.published.Add(int64(result.Count(ingest.StatusSuccess)))
		t.rejected.Add(int64(result.Count(ingest.StatusFailed)))
		t.aborted.Add(int64(result.Count(ingest.StatusAborted)))

		logger.Info("round complete",
			zap.Int("round", round+1),
			zap.String("batch_id", result.BatchID),
			zap.String("status", string(result.Status)),
		)
	}

	return nil
}
