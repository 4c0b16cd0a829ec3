// Package config loads and distributes the silence-skipping settings.
//
// Settings come from a YAML file, optionally overridden by SKIP_SILENCE_*
// environment variables (which may themselves come from a .env file). A
// [Store] hands consistent snapshots to the sampling loop and notifies
// subscribers when the user changes something.
package config

import (
	"time"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// LogLevel is the minimum level written by the CLI logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Source selects where the analysis tap comes from.
type Source string

const (
	// SourceElement taps the player directly and can mute it.
	SourceElement Source = "element"
	// SourceMicrophone analyses the default capture device.
	SourceMicrophone Source = "microphone"
	// SourceLoopback analyses the system output.
	SourceLoopback Source = "loopback"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceElement, SourceMicrophone, SourceLoopback:
		return true
	}
	return false
}

// File is the on-disk configuration.
type File struct {
	LogLevel    LogLevel `yaml:"log_level"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Source      Source   `yaml:"source"`
	Skipper     Settings `yaml:"skipper"`
	Tuning      Tuning   `yaml:"tuning"`
}

// Settings are the user-facing options. They can change while playing.
type Settings struct {
	Enabled          bool    `yaml:"enabled"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	DynamicThreshold bool    `yaml:"dynamic_threshold"`
	SamplesThreshold int     `yaml:"samples_threshold"`
	PlaybackSpeed    float64 `yaml:"playback_speed"`
	SilenceSpeed     float64 `yaml:"silence_speed"`
	MuteSilence      bool    `yaml:"mute_silence"`
}

// Tuning holds loop internals. They are read once when a session starts.
type Tuning struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	FrameSize      int           `yaml:"frame_size"`
	Percentile     float64       `yaml:"percentile"`
	RiseGain       float64       `yaml:"rise_gain"`
	FallGain       float64       `yaml:"fall_gain"`
}

// Default returns the configuration used for any field the file omits.
func Default() *File {
	cfg := skipper.DefaultConfig()
	timing := skipper.DefaultTiming()
	est := skipper.DefaultEstimatorConfig()

	return &File{
		LogLevel: LogInfo,
		Source:   SourceElement,
		Skipper: Settings{
			Enabled:          true,
			SilenceThreshold: cfg.SilenceThreshold,
			DynamicThreshold: cfg.DynamicThreshold,
			SamplesThreshold: cfg.SamplesThreshold,
			PlaybackSpeed:    cfg.PlaybackSpeed,
			SilenceSpeed:     cfg.SilenceSpeed,
			MuteSilence:      cfg.MuteSilence,
		},
		Tuning: Tuning{
			SampleInterval: timing.SampleInterval,
			FrameSize:      timing.FrameSize,
			Percentile:     est.Percentile,
			RiseGain:       est.RiseGain,
			FallGain:       est.FallGain,
		},
	}
}

func (s Settings) ToSkipper() skipper.Config {
	return skipper.Config{
		Enabled:          s.Enabled,
		SilenceThreshold: s.SilenceThreshold,
		DynamicThreshold: s.DynamicThreshold,
		SamplesThreshold: s.SamplesThreshold,
		PlaybackSpeed:    s.PlaybackSpeed,
		SilenceSpeed:     s.SilenceSpeed,
		MuteSilence:      s.MuteSilence,
	}
}

// Timing returns the loop timing with this tuning applied.
func (t Tuning) Timing() skipper.Timing {
	timing := skipper.DefaultTiming()
	if t.SampleInterval > 0 {
		timing.SampleInterval = t.SampleInterval
	}
	if t.FrameSize > 0 {
		timing.FrameSize = t.FrameSize
	}
	return timing
}

func (t Tuning) Estimator() skipper.EstimatorConfig {
	est := skipper.DefaultEstimatorConfig()
	if t.Percentile > 0 {
		est.Percentile = t.Percentile
	}
	if t.RiseGain > 0 {
		est.RiseGain = t.RiseGain
	}
	if t.FallGain > 0 {
		est.FallGain = t.FallGain
	}
	return est
}
