package skipper

import (
	"math"
	"slices"
)

// EstimatorConfig tunes the adaptive threshold. None of the constants are
// load-bearing; they are exposed so they can be tuned per deployment.
type EstimatorConfig struct {
	Initial    float64
	MinSamples int
	Capacity   int
	// Percentile selects the history entry used as the silence floor.
	Percentile float64
	RiseGain   float64
	FallGain   float64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Initial:    10,
		MinSamples: 20,
		Capacity:   100,
		Percentile: 0.15,
		RiseGain:   0.1,
		FallGain:   0.4,
	}
}

// ThresholdEstimator tracks the volume level of silence from recent history.
// The threshold rises slowly and falls fast so new silence floors are picked
// up quickly while loud passages barely drag it upward.
type ThresholdEstimator struct {
	cfg       EstimatorConfig
	threshold float64
	history   []float64
	scratch   []float64
}

func NewThresholdEstimator(cfg EstimatorConfig) *ThresholdEstimator {
	def := DefaultEstimatorConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.Percentile <= 0 || cfg.Percentile >= 1 {
		cfg.Percentile = def.Percentile
	}
	if cfg.RiseGain <= 0 || cfg.RiseGain > 1 {
		cfg.RiseGain = def.RiseGain
	}
	if cfg.FallGain <= 0 || cfg.FallGain > 1 {
		cfg.FallGain = def.FallGain
	}
	return &ThresholdEstimator{
		cfg:       cfg,
		threshold: cfg.Initial,
		history:   make([]float64, 0, cfg.Capacity+1),
	}
}

func (e *ThresholdEstimator) Threshold() float64 {
	return e.threshold
}

// Len returns the number of volumes currently held in history.
func (e *ThresholdEstimator) Len() int {
	return len(e.history)
}

// Observe records a volume. Non-positive volumes carry no information about
// the silence floor and are ignored.
func (e *ThresholdEstimator) Observe(volume float64) {
	if volume <= 0 {
		return
	}
	e.history = append(e.history, volume)
	if len(e.history) > e.cfg.Capacity {
		e.trim()
	}
}

// Recalculate moves the threshold towards the lower tail of the history and
// trims the history to its capacity. It reports whether the threshold was
// evaluated; with too little history it does nothing.
func (e *ThresholdEstimator) Recalculate() (float64, bool) {
	n := len(e.history)
	if n < e.cfg.MinSamples {
		return e.threshold, false
	}

	e.scratch = append(e.scratch[:0], e.history...)
	slices.Sort(e.scratch)
	lowerLimit := e.scratch[int(math.Floor(float64(n)*e.cfg.Percentile))]
	delta := math.Abs(e.threshold - lowerLimit)

	switch {
	case lowerLimit > e.threshold:
		e.threshold += delta * e.cfg.RiseGain
	case lowerLimit < e.threshold:
		e.threshold -= delta * e.cfg.FallGain
	}

	e.trim()

	return e.threshold, true
}

// trim drops the oldest entries beyond capacity.
func (e *ThresholdEstimator) trim() {
	if over := len(e.history) - e.cfg.Capacity; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
}

// Reset restores the initial threshold and drops all history.
func (e *ThresholdEstimator) Reset() {
	e.threshold = e.cfg.Initial
	e.history = e.history[:0]
}
