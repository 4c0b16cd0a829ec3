package skipper

import (
	"context"
	"sync"
)

// SpeedController carries out classifier transitions: it mutes, switches the
// rate through the Actuator and keeps the skip statistics.
type SpeedController struct {
	actuator *Actuator
	clock    Clock
	timing   Timing
	logger   Logger
	metrics  MetricsRecorder
	emit     func(EventType, interface{})

	mu         sync.Mutex
	gain       GainControl
	state      SpeedState
	muted      bool
	pending    Timer
	pendingGen uint64
	stats      statistics
}

func NewSpeedController(actuator *Actuator, clock Clock, timing Timing, logger Logger, metrics MetricsRecorder, emit func(EventType, interface{})) *SpeedController {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if emit == nil {
		emit = func(EventType, interface{}) {}
	}
	return &SpeedController{
		actuator: actuator,
		clock:    clock,
		timing:   timing,
		logger:   logger,
		metrics:  metrics,
		emit:     emit,
		state:    StateNormal,
	}
}

// SetGain attaches the gain stage of a newly acquired tap.
func (c *SpeedController) SetGain(gain GainControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gain = gain
}

func (c *SpeedController) State() SpeedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SpeedController) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.stats
}

// SpeedUp switches to the silence speed. With muting enabled the gain is
// ramped down first and the rate follows after a short delay that hides the
// ramp; the controller reports StatePending in between.
func (c *SpeedController) SpeedUp(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.skipStarted(c.clock.Now())

	if cfg.MuteSilence && c.gain != nil {
		c.gain.SetGain(0, c.timing.MuteRamp)
		c.muted = true
		c.setStateLocked(StatePending)

		c.pendingGen++
		gen := c.pendingGen
		speed := cfg.SilenceSpeed
		c.pending = c.clock.AfterFunc(c.timing.MuteDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.pendingGen != gen || c.pending == nil {
				return
			}
			c.pending = nil
			c.actuator.SetPlaybackRate(speed)
			c.setStateLocked(StateSpedUp)
		})
		return
	}

	c.actuator.SetPlaybackRate(cfg.SilenceSpeed)
	c.setStateLocked(StateSpedUp)
}

// SlowDown returns to the playback speed and lifts the mute with a slower
// ramp than the one used to mute.
func (c *SpeedController) SlowDown(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked()

	if saved := c.stats.skipEnded(c.clock.Now(), cfg.PlaybackSpeed, cfg.SilenceSpeed); saved > 0 {
		c.metrics.RecordTimeSaved(context.Background(), saved)
		c.logger.Debug("silence skipped", "saved", saved)
	}

	c.actuator.SetPlaybackRate(cfg.PlaybackSpeed)

	if c.muted && c.gain != nil {
		c.gain.SetGain(1, c.timing.UnmuteRamp)
	}
	c.muted = false
	c.setStateLocked(StateNormal)
}

// Apply re-asserts the rate and gain for the current state after a settings
// change. A pending speed-up is left to complete on its own.
func (c *SpeedController) Apply(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSpedUp:
		c.actuator.SetPlaybackRate(cfg.SilenceSpeed)
	case StateNormal:
		c.actuator.SetPlaybackRate(cfg.PlaybackSpeed)
	}

	if c.gain == nil || c.state == StatePending {
		return
	}
	if cfg.MuteSilence && c.state == StateSpedUp {
		c.gain.SetGain(0, 0)
		c.muted = true
	} else {
		c.gain.SetGain(1, 0)
		c.muted = false
	}
}

// Reset hands the media back at normal speed, unmuted.
func (c *SpeedController) Reset(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked()
	if c.state != StateNormal {
		if saved := c.stats.skipEnded(c.clock.Now(), cfg.PlaybackSpeed, cfg.SilenceSpeed); saved > 0 {
			c.metrics.RecordTimeSaved(context.Background(), saved)
		}
	}

	c.actuator.SetPlaybackRate(1)

	if c.muted && c.gain != nil {
		c.gain.SetGain(1, 0)
	}
	c.muted = false
	c.setStateLocked(StateNormal)
}

func (c *SpeedController) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.pendingGen++
}

func (c *SpeedController) setStateLocked(state SpeedState) {
	if c.state == state {
		return
	}
	c.state = state
	c.metrics.RecordTransition(context.Background(), state)
	c.emit(SpeedTransition, state)
}
