package skipper

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// AnalysisTap is a live view onto the audio of the monitored media.
type AnalysisTap interface {
	// TimeDomainSamples fills buf with the most recent waveform samples.
	TimeDomainSamples(buf []float32)
	// Gain returns the gain stage in front of the output, or nil if the tap
	// cannot attenuate the media (e.g. loopback capture).
	Gain() GainControl
	Close() error
}

type GainControl interface {
	// SetGain moves the gain exponentially towards value with the given
	// time constant. A zero time constant jumps immediately.
	SetGain(value float64, timeConstant time.Duration)
}

// AudioSourceProvider acquires an analysis tap for a media source. Acquire may
// block (e.g. on a permission prompt) and is called lazily by the sampling loop.
type AudioSourceProvider interface {
	Acquire(ctx context.Context) (AnalysisTap, error)
	Name() string
}

// MediaSource is the handle of the media element whose speed is controlled.
type MediaSource interface {
	PlaybackRate() float64
	SetPlaybackRate(rate float64)
	DefaultPlaybackRate() float64
	Paused() bool
	// OnRateChange registers fn for rate-change notifications. Capturing
	// listeners run before all others and may stop propagation.
	OnRateChange(capture bool, fn func(*RateChangeEvent)) (remove func())
}

// RateChangeEvent is dispatched by a MediaSource after its rate changed.
type RateChangeEvent struct {
	Rate    float64
	stopped bool
}

// StopImmediatePropagation prevents any further listener from seeing the event.
func (e *RateChangeEvent) StopImmediatePropagation() {
	e.stopped = true
}

func (e *RateChangeEvent) PropagationStopped() bool {
	return e.stopped
}

// ConfigSource hands the loop a consistent view of the user settings once per
// cycle and receives the dynamic threshold for display.
type ConfigSource interface {
	Snapshot() Config
	SetSilenceThreshold(threshold float64)
}

// MetricsRecorder receives operational measurements from the skipper.
type MetricsRecorder interface {
	RecordTransition(ctx context.Context, state SpeedState)
	RecordRateRewrite(ctx context.Context)
	RecordTimeSaved(ctx context.Context, saved time.Duration)
	RecordCycleFailure(ctx context.Context)
	RecordCaptureUnavailable(ctx context.Context, provider string)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(context.Context, SpeedState)     {}
func (noopMetrics) RecordRateRewrite(context.Context)                {}
func (noopMetrics) RecordTimeSaved(context.Context, time.Duration)   {}
func (noopMetrics) RecordCycleFailure(context.Context)               {}
func (noopMetrics) RecordCaptureUnavailable(context.Context, string) {}

type SpeedState string

const (
	StateNormal  SpeedState = "normal"
	StatePending SpeedState = "pending"
	StateSpedUp  SpeedState = "sped-up"
)

type EventType string

const (
	VolumeUpdate       EventType = "VOLUME"
	SpeedTransition    EventType = "SPEED_TRANSITION"
	ThresholdUpdate    EventType = "THRESHOLD"
	CaptureUnavailable EventType = "CAPTURE_UNAVAILABLE"
)

type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Config holds the user settings the loop reads once per cycle.
type Config struct {
	Enabled bool
	// SilenceThreshold is the static threshold on the 0-200 volume scale.
	SilenceThreshold float64
	DynamicThreshold bool
	// SamplesThreshold is the number of consecutive quiet samples required
	// before speeding up.
	SamplesThreshold int
	PlaybackSpeed    float64
	SilenceSpeed     float64
	MuteSilence      bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		SilenceThreshold: 30,
		DynamicThreshold: false,
		SamplesThreshold: 10,
		PlaybackSpeed:    1,
		SilenceSpeed:     3,
		MuteSilence:      false,
	}
}

// Timing groups the loop cadence and the anti-click delays.
type Timing struct {
	SampleInterval time.Duration
	// VerifyDelay is the "one tick" the actuator waits before checking that
	// a rate assignment held.
	VerifyDelay time.Duration
	// MuteDelay hides the mute ramp before the rate switches.
	MuteDelay       time.Duration
	MuteRamp        time.Duration
	UnmuteRamp      time.Duration
	VolumeReportGap int
	RecalcEvery     int
	FrameSize       int
}

func DefaultTiming() Timing {
	return Timing{
		SampleInterval:  25 * time.Millisecond,
		VerifyDelay:     time.Millisecond,
		MuteDelay:       20 * time.Millisecond,
		MuteRamp:        15 * time.Millisecond,
		UnmuteRamp:      40 * time.Millisecond,
		VolumeReportGap: 3,
		RecalcEvery:     50,
		FrameSize:       2048,
	}
}
