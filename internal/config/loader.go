package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [File].
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*File, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *File) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Source != "" && !cfg.Source.IsValid() {
		errs = append(errs, fmt.Errorf("source %q is invalid; valid values: element, microphone, loopback", cfg.Source))
	}

	s := cfg.Skipper
	if s.SilenceThreshold < 0 || s.SilenceThreshold > 200 {
		errs = append(errs, fmt.Errorf("skipper.silence_threshold %.2f is out of range [0, 200]", s.SilenceThreshold))
	}
	if s.SamplesThreshold < 1 {
		errs = append(errs, fmt.Errorf("skipper.samples_threshold %d must be at least 1", s.SamplesThreshold))
	}
	if s.PlaybackSpeed <= 0 || s.PlaybackSpeed > 16 {
		errs = append(errs, fmt.Errorf("skipper.playback_speed %.2f is out of range (0, 16]", s.PlaybackSpeed))
	}
	if s.SilenceSpeed <= 0 || s.SilenceSpeed > 16 {
		errs = append(errs, fmt.Errorf("skipper.silence_speed %.2f is out of range (0, 16]", s.SilenceSpeed))
	}

	t := cfg.Tuning
	if t.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("tuning.sample_interval %v must not be negative", t.SampleInterval))
	}
	if t.FrameSize != 0 && (t.FrameSize < 32 || t.FrameSize&(t.FrameSize-1) != 0) {
		errs = append(errs, fmt.Errorf("tuning.frame_size %d must be a power of two of at least 32", t.FrameSize))
	}
	if t.Percentile < 0 || t.Percentile >= 1 {
		errs = append(errs, fmt.Errorf("tuning.percentile %.2f is out of range [0, 1)", t.Percentile))
	}
	if t.RiseGain < 0 || t.RiseGain > 1 {
		errs = append(errs, fmt.Errorf("tuning.rise_gain %.2f is out of range [0, 1]", t.RiseGain))
	}
	if t.FallGain < 0 || t.FallGain > 1 {
		errs = append(errs, fmt.Errorf("tuning.fall_gain %.2f is out of range [0, 1]", t.FallGain))
	}

	return errors.Join(errs...)
}

// Environment variables that override file settings.
const (
	EnvEnabled          = "SKIP_SILENCE_ENABLED"
	EnvSilenceThreshold = "SKIP_SILENCE_SILENCE_THRESHOLD"
	EnvDynamicThreshold = "SKIP_SILENCE_DYNAMIC_THRESHOLD"
	EnvSamplesThreshold = "SKIP_SILENCE_SAMPLES_THRESHOLD"
	EnvPlaybackSpeed    = "SKIP_SILENCE_PLAYBACK_SPEED"
	EnvSilenceSpeed     = "SKIP_SILENCE_SILENCE_SPEED"
	EnvMuteSilence      = "SKIP_SILENCE_MUTE_SILENCE"
	EnvLogLevel         = "SKIP_SILENCE_LOG_LEVEL"
	EnvMetricsAddr      = "SKIP_SILENCE_METRICS_ADDR"
	EnvSource           = "SKIP_SILENCE_SOURCE"
)

// ApplyEnv overrides cfg from SKIP_SILENCE_* variables. Variables set in the
// process environment win over those in envFile; a missing envFile is not an
// error. The result is validated again.
func ApplyEnv(cfg *File, envFile string) error {
	fileEnv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileEnv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("config: read %q: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := applyOverrides(cfg, lookup); err != nil {
		return err
	}
	return Validate(cfg)
}

func applyOverrides(cfg *File, lookup func(string) (string, bool)) error {
	var errs []error

	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	setBool(EnvEnabled, &cfg.Skipper.Enabled)
	setFloat(EnvSilenceThreshold, &cfg.Skipper.SilenceThreshold)
	setBool(EnvDynamicThreshold, &cfg.Skipper.DynamicThreshold)
	if v, ok := lookup(EnvSamplesThreshold); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSamplesThreshold, err))
		} else {
			cfg.Skipper.SamplesThreshold = n
		}
	}
	setFloat(EnvPlaybackSpeed, &cfg.Skipper.PlaybackSpeed)
	setFloat(EnvSilenceSpeed, &cfg.Skipper.SilenceSpeed)
	setBool(EnvMuteSilence, &cfg.Skipper.MuteSilence)

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookup(EnvSource); ok && v != "" {
		cfg.Source = Source(v)
	}

	return errors.Join(errs...)
}
