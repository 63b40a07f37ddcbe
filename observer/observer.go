// Package observer provides OTEL-based observability for the memory engine.
//
// It wires trace, metric, and log providers with OTLP HTTP exporters and
// offers instrumented wrappers for the hot paths (embedding calls). Export
// targets come from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT and
// friends).
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/recall/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	MemoryRequests  metric.Int64Counter
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	IngestDocuments metric.Int64Counter
	IngestChunks    metric.Int64Counter
	EmbedRequests   metric.Int64Counter

	// Histograms
	RetrieveDuration metric.Float64Histogram
	EmbedDuration    metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("recall")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := NewInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

// NewInstruments builds the instrument set against the global providers.
// Without a prior Init the instruments are no-ops, which keeps the wrappers
// safe to use in tests.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	memoryRequests, err := meter.Int64Counter("memory.requests",
		metric.WithDescription("Memory tool request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("cache.hits",
		metric.WithDescription("Query cache hit count"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("cache.misses",
		metric.WithDescription("Query cache miss count"),
		metric.WithUnit("{miss}"))
	if err != nil {
		return nil, err
	}
	ingestDocuments, err := meter.Int64Counter("ingest.documents",
		metric.WithDescription("Documents ingested"),
		metric.WithUnit("{document}"))
	if err != nil {
		return nil, err
	}
	ingestChunks, err := meter.Int64Counter("ingest.chunks",
		metric.WithDescription("Chunks stored"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}
	embedRequests, err := meter.Int64Counter("embedding.requests",
		metric.WithDescription("Embedding request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	retrieveDuration, err := meter.Float64Histogram("retrieve.duration",
		metric.WithDescription("Retrieval duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	embedDuration, err := meter.Float64Histogram("embedding.duration",
		metric.WithDescription("Embedding call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           otel.Tracer(scopeName),
		Meter:            meter,
		Logger:           global.GetLoggerProvider().Logger(scopeName),
		MemoryRequests:   memoryRequests,
		CacheHits:        cacheHits,
		CacheMisses:      cacheMisses,
		IngestDocuments:  ingestDocuments,
		IngestChunks:     ingestChunks,
		EmbedRequests:    embedRequests,
		RetrieveDuration: retrieveDuration,
		EmbedDuration:    embedDuration,
	}, nil
}
