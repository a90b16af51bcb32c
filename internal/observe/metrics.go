// Package observe provides application-wide observability primitives for
// tracegraph: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tracegraph metrics.
const meterName = "github.com/tracegraph/tracegraph"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per core operation ---

	// QueryDuration tracks Query Coordinator execution latency. Use with
	// attribute.String("kind", "vector"|"graph"|"combined").
	QueryDuration metric.Float64Histogram

	// IngestDuration tracks single-event ingestion latency.
	IngestDuration metric.Float64Histogram

	// EmbeddingDuration tracks Embedding Service call latency.
	EmbeddingDuration metric.Float64Histogram

	// GraphStoreDuration tracks Graph Store Adapter call latency. Use with
	// attribute.String("op", "create_entity"|"traverse"|...).
	GraphStoreDuration metric.Float64Histogram

	// VectorStoreDuration tracks Vector Store Adapter call latency.
	VectorStoreDuration metric.Float64Histogram

	// --- Counters ---

	// EventsIngested counts ingested events. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	EventsIngested metric.Int64Counter

	// QueriesExecuted counts Query Coordinator executions. Use with
	// attributes: attribute.String("kind", ...), attribute.String("status", ...)
	QueriesExecuted metric.Int64Counter

	// ValidationErrors counts schema validation failures. Use with
	// attribute: attribute.String("kind", "entity"|"relation")
	ValidationErrors metric.Int64Counter

	// --- Error counters ---

	// EmbeddingErrors counts embedding provider failures. Use with
	// attribute: attribute.String("provider", ...)
	EmbeddingErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTraces tracks the number of currently running traces.
	ActiveTraces metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive query/ingest latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.QueryDuration, err = m.Float64Histogram("tracegraph.query.duration",
		metric.WithDescription("Latency of Query Coordinator execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("tracegraph.ingest.duration",
		metric.WithDescription("Latency of single-event ingestion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("tracegraph.embedding.duration",
		metric.WithDescription("Latency of Embedding Service calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphStoreDuration, err = m.Float64Histogram("tracegraph.graphstore.duration",
		metric.WithDescription("Latency of Graph Store Adapter calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VectorStoreDuration, err = m.Float64Histogram("tracegraph.vectorstore.duration",
		metric.WithDescription("Latency of Vector Store Adapter calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsIngested, err = m.Int64Counter("tracegraph.events.ingested",
		metric.WithDescription("Total events ingested, by status."),
	); err != nil {
		return nil, err
	}
	if met.QueriesExecuted, err = m.Int64Counter("tracegraph.queries.executed",
		metric.WithDescription("Total Query Coordinator executions, by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ValidationErrors, err = m.Int64Counter("tracegraph.validation.errors",
		metric.WithDescription("Total schema validation failures, by kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EmbeddingErrors, err = m.Int64Counter("tracegraph.embedding.errors",
		metric.WithDescription("Total embedding provider errors, by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTraces, err = m.Int64UpDownCounter("tracegraph.active_traces",
		metric.WithDescription("Number of currently running traces."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tracegraph.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQuery is a convenience method that records a Query Coordinator
// execution counter increment with the standard attribute set.
func (m *Metrics) RecordQuery(ctx context.Context, kind, status string) {
	m.QueriesExecuted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordEventIngested is a convenience method that records an ingested-event
// counter increment.
func (m *Metrics) RecordEventIngested(ctx context.Context, status string) {
	m.EventsIngested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordValidationError is a convenience method that records a schema
// validation failure counter increment.
func (m *Metrics) RecordValidationError(ctx context.Context, kind string) {
	m.ValidationErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordEmbeddingError is a convenience method that records an embedding
// provider error counter increment.
func (m *Metrics) RecordEmbeddingError(ctx context.Context, provider string) {
	m.EmbeddingErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
