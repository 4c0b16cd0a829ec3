// Package observe provides the observability primitives for silence
// skipping: OpenTelemetry metrics, a Prometheus scrape bridge and structured
// logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. Tests should
// use [NewMetrics] with a provider backed by a manual reader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/lokutor-ai/skip-silence"

// Metrics holds the metric instruments and implements skipper.MetricsRecorder.
type Metrics struct {
	// Transitions counts speed state changes. Attribute: state.
	Transitions metric.Int64Counter

	// RateRewrites counts force-rewrites after the host reset the rate.
	RateRewrites metric.Int64Counter

	// TimeSaved accumulates media time skipped, in seconds.
	TimeSaved metric.Float64Counter

	// CycleFailures counts sampling cycles that panicked.
	CycleFailures metric.Int64Counter

	// CaptureUnavailable counts providers that could not capture. Attribute: provider.
	CaptureUnavailable metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Transitions, err = m.Int64Counter("skipsilence_speed_transitions",
		metric.WithDescription("Speed state transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.RateRewrites, err = m.Int64Counter("skipsilence_rate_rewrites",
		metric.WithDescription("Playback rate force-rewrites after a host reset."),
	); err != nil {
		return nil, err
	}
	if met.TimeSaved, err = m.Float64Counter("skipsilence_time_saved",
		metric.WithDescription("Listening time saved by speeding through silence."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.CycleFailures, err = m.Int64Counter("skipsilence_cycle_failures",
		metric.WithDescription("Sampling cycles that failed and were skipped."),
	); err != nil {
		return nil, err
	}
	if met.CaptureUnavailable, err = m.Int64Counter("skipsilence_capture_unavailable",
		metric.WithDescription("Capture sources that could not be opened, by provider."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordTransition(ctx context.Context, state skipper.SpeedState) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

func (m *Metrics) RecordRateRewrite(ctx context.Context) {
	m.RateRewrites.Add(ctx, 1)
}

func (m *Metrics) RecordTimeSaved(ctx context.Context, saved time.Duration) {
	if saved <= 0 {
		return
	}
	m.TimeSaved.Add(ctx, saved.Seconds())
}

func (m *Metrics) RecordCycleFailure(ctx context.Context) {
	m.CycleFailures.Add(ctx, 1)
}

func (m *Metrics) RecordCaptureUnavailable(ctx context.Context, provider string) {
	m.CaptureUnavailable.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
