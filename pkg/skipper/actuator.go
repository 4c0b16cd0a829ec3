package skipper

import (
	"context"
	"sync"
	"time"
)

// clickFreeRate replaces an exact 1.0x rate, which makes some decoders click.
const clickFreeRate = 1.01

// Actuator assigns playback rates and defends them against hosts that reset
// or reject rate changes. Failures are self-healing and never surfaced.
type Actuator struct {
	media   MediaSource
	clock   Clock
	tick    time.Duration
	logger  Logger
	metrics MetricsRecorder

	mu             sync.Mutex
	target         float64
	handlingError  bool
	blocking       bool
	removeListener func()
	closed         bool
}

func NewActuator(media MediaSource, clock Clock, tick time.Duration, logger Logger, metrics MetricsRecorder) *Actuator {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Actuator{
		media:   media,
		clock:   clock,
		tick:    tick,
		logger:  logger,
		metrics: metrics,
	}
}

// Target returns the rate the actuator is currently enforcing.
func (a *Actuator) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Blocking reports whether rate-change notifications are being swallowed.
func (a *Actuator) Blocking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocking
}

// SetPlaybackRate assigns rate to the media and verifies one tick later that
// the assignment held, forcing a rewrite if it did not.
func (a *Actuator) SetPlaybackRate(rate float64) {
	if rate == 1 {
		rate = clickFreeRate
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.target = rate
	handling := a.handlingError
	a.mu.Unlock()

	a.logger.Debug("setting playback rate", "rate", rate)
	a.media.SetPlaybackRate(rate)

	if !handling {
		a.clock.AfterFunc(a.tick, a.verify)
	}
}

func (a *Actuator) verify() {
	a.mu.Lock()
	target, closed := a.target, a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	if actual := a.media.PlaybackRate(); actual != target {
		a.logger.Warn("playback rate did not hold, forcing rewrite", "target", target, "actual", actual)
		a.forceRewrite()
	}
}

// forceRewrite swallows rate-change notifications while it reassigns the
// target, so the host's own handlers cannot undo it.
func (a *Actuator) forceRewrite() {
	a.mu.Lock()
	if a.handlingError || a.closed {
		a.mu.Unlock()
		return
	}
	a.handlingError = true
	a.mu.Unlock()

	// A zero rate means the host unloaded the media; leave it alone.
	if a.media.PlaybackRate() == 0 {
		a.mu.Lock()
		a.handlingError = false
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.blocking = true
	install := a.removeListener == nil
	a.mu.Unlock()

	if install {
		remove := a.media.OnRateChange(true, a.intercept)
		a.mu.Lock()
		a.removeListener = remove
		a.mu.Unlock()
	}

	a.metrics.RecordRateRewrite(context.Background())

	a.clock.AfterFunc(a.tick, func() {
		a.mu.Lock()
		target, closed := a.target, a.closed
		a.mu.Unlock()
		if !closed {
			a.media.SetPlaybackRate(target)
		}

		a.clock.AfterFunc(a.tick, func() {
			a.mu.Lock()
			a.blocking = false
			a.handlingError = false
			a.mu.Unlock()
		})
	})
}

// intercept runs before every other rate-change listener on the media.
func (a *Actuator) intercept(ev *RateChangeEvent) {
	a.mu.Lock()
	blocking, target, closed := a.blocking, a.target, a.closed
	a.mu.Unlock()

	if closed {
		return
	}
	if blocking {
		ev.StopImmediatePropagation()
		return
	}

	rate := a.media.PlaybackRate()
	if rate != 0 && rate == a.media.DefaultPlaybackRate() && rate != target {
		// Re-enter on the next tick; re-entering synchronously would recurse
		// inside the host's dispatch.
		a.clock.AfterFunc(a.tick, func() {
			a.SetPlaybackRate(a.Target())
		})
	}
}

// Close detaches the interceptor. Pending timers become no-ops.
func (a *Actuator) Close() {
	a.mu.Lock()
	a.closed = true
	remove := a.removeListener
	a.removeListener = nil
	a.blocking = false
	a.mu.Unlock()

	if remove != nil {
		remove()
	}
}
