// Package observe provides application-wide observability primitives for
// the fingerspelling pipeline: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/aslstream/fingerspell"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ClassifierDuration tracks hand-extraction + tensor classifier latency
	// per frame (§4.3).
	ClassifierDuration metric.Float64Histogram

	// CommitDuration tracks sliding-window commit engine processing latency
	// per letter event (§4.4).
	CommitDuration metric.Float64Histogram

	// ResolverDuration tracks word-resolver lexicon search latency (§4.5).
	ResolverDuration metric.Float64Histogram

	// AliasBuilderJobDuration tracks end-to-end alias knowledge-base job
	// latency (§4.6), from ingestion through synthesis and persistence.
	AliasBuilderJobDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CommitsTotal counts letters committed by the sliding-window commit
	// engine. Use with attribute: attribute.String("session_id", ...)
	CommitsTotal metric.Int64Counter

	// SkipsTotal counts classifier frames skipped (multi-hand or no-hands).
	// Use with attribute: attribute.String("reason", ...)
	SkipsTotal metric.Int64Counter

	// ResolvedWordsTotal counts words successfully resolved against the
	// lexicon. Use with attribute: attribute.String("method", ...)
	ResolvedWordsTotal metric.Int64Counter

	// AliasJobsTotal counts alias knowledge-base builder jobs by terminal
	// status. Use with attribute: attribute.String("status", ...)
	AliasJobsTotal metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live fingerspelling sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveConnections tracks the number of connected ingress clients
	// across all sessions.
	ActiveConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-frame and per-word pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ClassifierDuration, err = m.Float64Histogram("aslstream.classifier.duration",
		metric.WithDescription("Latency of hand extraction and tensor classification per frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommitDuration, err = m.Float64Histogram("aslstream.commit.duration",
		metric.WithDescription("Latency of sliding-window commit engine processing per letter event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolverDuration, err = m.Float64Histogram("aslstream.resolver.duration",
		metric.WithDescription("Latency of lexicon search in the word resolver."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AliasBuilderJobDuration, err = m.Float64Histogram("aslstream.alias_builder.job.duration",
		metric.WithDescription("End-to-end latency of alias knowledge-base builder jobs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("aslstream.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CommitsTotal, err = m.Int64Counter("aslstream.commits.total",
		metric.WithDescription("Total letters committed by the sliding-window commit engine."),
	); err != nil {
		return nil, err
	}
	if met.SkipsTotal, err = m.Int64Counter("aslstream.skips.total",
		metric.WithDescription("Total classifier frames skipped, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ResolvedWordsTotal, err = m.Int64Counter("aslstream.resolved_words.total",
		metric.WithDescription("Total words resolved against the lexicon, by search method."),
	); err != nil {
		return nil, err
	}
	if met.AliasJobsTotal, err = m.Int64Counter("aslstream.alias_jobs.total",
		metric.WithDescription("Total alias knowledge-base builder jobs, by terminal status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("aslstream.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("aslstream.active_sessions",
		metric.WithDescription("Number of live fingerspelling sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("aslstream.active_connections",
		metric.WithDescription("Number of connected ingress clients across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aslstream.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordCommit is a convenience method that records a committed-letter
// counter increment for a session.
func (m *Metrics) RecordCommit(ctx context.Context, sessionID string) {
	m.CommitsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session_id", sessionID)),
	)
}

// RecordSkip is a convenience method that records a skipped-frame counter
// increment with its reason.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	m.SkipsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordResolvedWord is a convenience method that records a resolved-word
// counter increment with its search method.
func (m *Metrics) RecordResolvedWord(ctx context.Context, method string) {
	m.ResolvedWordsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// RecordAliasJob is a convenience method that records an alias-builder job
// counter increment with its terminal status.
func (m *Metrics) RecordAliasJob(ctx context.Context, status string) {
	m.AliasJobsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
