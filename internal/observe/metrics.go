// Package observe provides application-wide observability primitives for
// vivavoce: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all vivavoce metrics.
const meterName = "github.com/MrWong99/vivavoce"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LiveConnectDuration tracks how long a live session takes to open,
	// from dial to setup acknowledgement.
	LiveConnectDuration metric.Float64Histogram

	// ChatTurnDuration tracks the time from sending a chat turn until the
	// reply stream closes.
	ChatTurnDuration metric.Float64Histogram

	// VideoJobDuration tracks end-to-end video generation time including
	// polling and download.
	VideoJobDuration metric.Float64Histogram

	// --- Live audio pipeline counters ---

	// FramesCaptured counts microphone frames delivered by the device.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts captured frames or blobs discarded before sending.
	// Use with attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// BlobsSent counts encoded audio blobs written to the live session.
	BlobsSent metric.Int64Counter

	// SegmentsScheduled counts inbound audio segments queued for playback.
	SegmentsScheduled metric.Int64Counter

	// SegmentsMalformed counts inbound audio segments that failed to decode.
	SegmentsMalformed metric.Int64Counter

	// Interruptions counts barge-in events that flushed queued playback.
	Interruptions metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// interactive request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// jobBuckets covers long-running generation jobs, in seconds.
var jobBuckets = []float64{
	10, 20, 30, 60, 90, 120, 180, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LiveConnectDuration, err = m.Float64Histogram("vivavoce.live.connect.duration",
		metric.WithDescription("Latency of opening a live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatTurnDuration, err = m.Float64Histogram("vivavoce.chat.turn.duration",
		metric.WithDescription("Latency of a streamed chat turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VideoJobDuration, err = m.Float64Histogram("vivavoce.video.job.duration",
		metric.WithDescription("End-to-end video generation time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}

	// Live audio counters.
	if met.FramesCaptured, err = m.Int64Counter("vivavoce.live.frames.captured",
		metric.WithDescription("Total microphone frames captured."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("vivavoce.live.frames.dropped",
		metric.WithDescription("Total captured frames dropped before sending, by reason."),
	); err != nil {
		return nil, err
	}
	if met.BlobsSent, err = m.Int64Counter("vivavoce.live.blobs.sent",
		metric.WithDescription("Total encoded audio blobs sent to the live session."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsScheduled, err = m.Int64Counter("vivavoce.live.segments.scheduled",
		metric.WithDescription("Total inbound audio segments scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsMalformed, err = m.Int64Counter("vivavoce.live.segments.malformed",
		metric.WithDescription("Total inbound audio segments dropped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("vivavoce.live.interruptions",
		metric.WithDescription("Total playback interruptions."),
	); err != nil {
		return nil, err
	}

	// Provider counters.
	if met.ProviderRequests, err = m.Int64Counter("vivavoce.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vivavoce.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vivavoce.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vivavoce.http.request.duration",
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

// RecordFrameDropped records one dropped frame with the given reason, e.g.
// "event_queue_full" or "send_queue_full".
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
