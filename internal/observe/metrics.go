// Package observe provides application-wide observability primitives for
// ZikrGate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all ZikrGate metrics.
const meterName = "github.com/zikrgate/zikrgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// VerifyDuration tracks verification scoring latency.
	VerifyDuration metric.Float64Histogram

	// LedgerOpDuration tracks ledger load/mutate/persist latency. Use with
	// attribute: attribute.String("op", ...)
	LedgerOpDuration metric.Float64Histogram

	// --- Counters ---

	// Verdicts counts verification attempts. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("reason", ...),
	//   attribute.String("requirement", ...)
	Verdicts metric.Int64Counter

	// Unlocks counts verified unlocks by requirement ID.
	Unlocks metric.Int64Counter

	// Bypasses counts emergency bypasses. Use with attribute:
	//   attribute.String("granted", "true"|"false")
	Bypasses metric.Int64Counter

	// UsageMinutes counts recorded usage minutes by app ID.
	UsageMinutes metric.Int64Counter

	// DayResets counts day-boundary ledger resets.
	DayResets metric.Int64Counter

	// --- Gauges ---

	// OutstandingDebt tracks total outstanding dhikr debt across loaded
	// ledgers.
	OutstandingDebt metric.Int64UpDownCounter

	// ActiveStreams tracks the number of live verification streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The
// scoring path is sub-millisecond CPU work, so the buckets skew low.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.VerifyDuration, err = m.Float64Histogram("zikrgate.verify.duration",
		metric.WithDescription("Latency of verification scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LedgerOpDuration, err = m.Float64Histogram("zikrgate.ledger.op.duration",
		metric.WithDescription("Latency of ledger operations by op."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Verdicts, err = m.Int64Counter("zikrgate.verify.verdicts",
		metric.WithDescription("Total verification attempts by outcome, reason, and requirement."),
	); err != nil {
		return nil, err
	}
	if met.Unlocks, err = m.Int64Counter("zikrgate.unlocks",
		metric.WithDescription("Total verified unlocks by requirement."),
	); err != nil {
		return nil, err
	}
	if met.Bypasses, err = m.Int64Counter("zikrgate.bypasses",
		metric.WithDescription("Total emergency bypass attempts by grant result."),
	); err != nil {
		return nil, err
	}
	if met.UsageMinutes, err = m.Int64Counter("zikrgate.usage.minutes",
		metric.WithDescription("Total recorded usage minutes by app ID."),
	); err != nil {
		return nil, err
	}
	if met.DayResets, err = m.Int64Counter("zikrgate.ledger.day_resets",
		metric.WithDescription("Total day-boundary ledger resets."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OutstandingDebt, err = m.Int64UpDownCounter("zikrgate.debt.outstanding",
		metric.WithDescription("Outstanding dhikr debt across loaded ledgers."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("zikrgate.active_streams",
		metric.WithDescription("Number of live verification streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("zikrgate.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordVerdict records one verification attempt with the standard
// attribute set.
func (m *Metrics) RecordVerdict(ctx context.Context, outcome, reason, requirement string) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("reason", reason),
			attribute.String("requirement", requirement),
		),
	)
}

// RecordBypass records one emergency bypass attempt.
func (m *Metrics) RecordBypass(ctx context.Context, granted bool) {
	v := "false"
	if granted {
		v = "true"
	}
	m.Bypasses.Add(ctx, 1, metric.WithAttributes(attribute.String("granted", v)))
}
