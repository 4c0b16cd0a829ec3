package skipper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Decision is the outcome of one sampling cycle.
type Decision int

const (
	// Continue schedules another cycle.
	Continue Decision = iota
	// Halt stops the loop and hands the media back at normal speed.
	Halt
)

// Skipper monitors one media source and speeds it up through silence.
type Skipper struct {
	id       string
	media    MediaSource
	provider AudioSourceProvider
	config   ConfigSource
	clock    Clock
	timing   Timing
	logger   Logger
	metrics  MetricsRecorder

	sampler    *VolumeSampler
	estimator  *ThresholdEstimator
	classifier *Classifier
	actuator   *Actuator
	speed      *SpeedController

	emitMu sync.RWMutex
	events chan Event
	closed bool

	// acquireMu serializes tap acquisition so a provider is asked at most
	// once per attachment, even across Stop/Start.
	acquireMu sync.Mutex

	mu                 sync.Mutex
	running            bool
	gen                uint64
	timer              Timer
	ctx                context.Context
	cancel             context.CancelFunc
	tap                AnalysisTap
	samplePosition     int
	samplesSinceVolume int
	lastSentVolume     float64
}

// Option configures a [Skipper].
type Option func(*Skipper)

func WithLogger(logger Logger) Option {
	return func(s *Skipper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock Clock) Option {
	return func(s *Skipper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithTiming(timing Timing) Option {
	return func(s *Skipper) {
		s.timing = timing
	}
}

func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Skipper) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithEstimator(cfg EstimatorConfig) Option {
	return func(s *Skipper) {
		s.estimator = NewThresholdEstimator(cfg)
	}
}

func WithSessionID(id string) Option {
	return func(s *Skipper) {
		if id != "" {
			s.id = id
		}
	}
}

// New creates a skipper for media. The analysis tap is acquired from provider
// lazily on the first cycle after Start.
func New(media MediaSource, provider AudioSourceProvider, config ConfigSource, opts ...Option) (*Skipper, error) {
	if media == nil {
		return nil, ErrNilMedia
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	if config == nil {
		return nil, ErrNilConfig
	}

	s := &Skipper{
		id:       uuid.NewString(),
		media:    media,
		provider: provider,
		config:   config,
		clock:    RealClock{},
		timing:   DefaultTiming(),
		logger:   &NoOpLogger{},
		metrics:  noopMetrics{},
		events:   make(chan Event, 1024),
	}
	for _, opt := range opts {
		opt(s)
	}

	def := DefaultTiming()
	if s.timing.SampleInterval <= 0 {
		s.timing.SampleInterval = def.SampleInterval
	}
	if s.timing.VolumeReportGap <= 0 {
		s.timing.VolumeReportGap = def.VolumeReportGap
	}
	if s.timing.RecalcEvery <= 0 {
		s.timing.RecalcEvery = def.RecalcEvery
	}
	if s.estimator == nil {
		s.estimator = NewThresholdEstimator(DefaultEstimatorConfig())
	}

	s.sampler = NewVolumeSampler(s.timing.FrameSize)
	s.classifier = NewClassifier()
	s.actuator = NewActuator(media, s.clock, s.timing.VerifyDelay, s.logger, s.metrics)
	s.speed = NewSpeedController(s.actuator, s.clock, s.timing, s.logger, s.metrics, s.emit)

	return s, nil
}

func (s *Skipper) ID() string {
	return s.id
}

// Events returns the status channel. Events are dropped when it is full.
func (s *Skipper) Events() <-chan Event {
	return s.events
}

func (s *Skipper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Skipper) State() SpeedState {
	return s.speed.State()
}

func (s *Skipper) Stats() Stats {
	return s.speed.Stats()
}

// Threshold returns the threshold the next cycle would classify against.
func (s *Skipper) Threshold() float64 {
	cfg := s.config.Snapshot()
	if !cfg.DynamicThreshold {
		return cfg.SilenceThreshold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimator.Threshold()
}

// Start begins sampling. It is a no-op while already running.
func (s *Skipper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.isClosed() {
		return
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info("silence skipping started", "session", s.id, "source", s.provider.Name())
	s.timer = s.clock.AfterFunc(0, func() { s.cycle(gen) })
}

// Stop ends sampling, returns the media to normal speed and reports a zero
// volume. It is a no-op while stopped.
func (s *Skipper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.haltLocked()
}

// ApplyConfig reacts to a settings change: enabling starts the loop,
// disabling returns to normal playback, and speed or mute changes take
// effect immediately.
func (s *Skipper) ApplyConfig(old, next Config) {
	switch {
	case next.Enabled && !old.Enabled:
		s.Start()
	case !next.Enabled && old.Enabled:
		if s.Running() {
			s.Stop()
		} else {
			s.actuator.SetPlaybackRate(1)
		}
		return
	}

	if next.Enabled && s.Running() {
		s.speed.Apply(next)
	}
}

// Close stops the loop and releases the analysis tap.
func (s *Skipper) Close() error {
	s.Stop()

	// Mark closed before taking the tap: an acquisition still in flight
	// then sees the flag and closes its own tap.
	s.emitMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.emitMu.Unlock()

	s.mu.Lock()
	tap := s.tap
	s.tap = nil
	s.sampler.Attach(nil)
	s.mu.Unlock()

	s.actuator.Close()

	if tap != nil {
		if err := tap.Close(); err != nil {
			return fmt.Errorf("close analysis tap: %w", err)
		}
	}
	return nil
}

// cycle runs one Step and schedules the next one. Cycles never overlap: the
// next timer is armed only after the current step returned.
func (s *Skipper) cycle(gen uint64) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	decision := s.step(ctx, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.gen != gen {
		return
	}
	if decision == Halt {
		s.haltLocked()
		return
	}
	s.timer = s.clock.AfterFunc(s.timing.SampleInterval, func() { s.cycle(gen) })
}

// Step runs a single inspection cycle: attach if needed, sample, feed the
// estimator, classify and report. A panic inside the cycle is logged and
// counted; the loop carries on. Step does not require Start.
func (s *Skipper) Step(ctx context.Context) Decision {
	return s.step(ctx, 0)
}

// step runs one cycle on behalf of loop generation gen. A cycle whose
// generation was stopped while it ran changes nothing. Generation 0 is not
// tied to the loop.
func (s *Skipper) step(ctx context.Context, gen uint64) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sampling cycle failed", "session", s.id, "panic", r)
			s.metrics.RecordCycleFailure(ctx)
			decision = Continue
		}
	}()

	cfg := s.config.Snapshot()
	if !cfg.Enabled {
		return Halt
	}

	if !s.ensureAttached(ctx) {
		return Halt
	}

	published, ok, live := s.inspect(cfg, gen)
	if !live {
		return Halt
	}
	if ok {
		s.config.SetSilenceThreshold(published)
		s.emit(ThresholdUpdate, published)
	}
	return Continue
}

func (s *Skipper) inspect(cfg Config, gen uint64) (published float64, publish, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != 0 && (!s.running || s.gen != gen) {
		return 0, false, false
	}

	s.samplePosition = (s.samplePosition + 1) % s.timing.RecalcEvery

	volume := s.sampler.Volume()

	if cfg.DynamicThreshold && volume > 0 {
		s.estimator.Observe(volume)
		if s.samplePosition == 0 {
			if th, ok := s.estimator.Recalculate(); ok {
				s.logger.Debug("dynamic threshold updated", "threshold", th, "samples", s.estimator.Len())
				published, publish = th, true
			}
		}
	}

	threshold := cfg.SilenceThreshold
	if cfg.DynamicThreshold {
		threshold = s.estimator.Threshold()
	}

	switch s.classifier.Classify(volume, threshold, s.media.Paused(), cfg.SamplesThreshold) {
	case TransitionSpeedUp:
		s.logger.Debug("silence detected, speeding up", "volume", volume, "threshold", threshold)
		s.speed.SpeedUp(cfg)
	case TransitionSlowDown:
		s.logger.Debug("audio resumed, slowing down", "volume", volume, "threshold", threshold)
		s.speed.SlowDown(cfg)
	}

	s.reportVolumeLocked(volume)
	return published, publish, true
}

// ensureAttached acquires the analysis tap on first use. A transient failure
// leaves the sampler detached (reporting a loud sentinel) and is retried on
// the next cycle; ErrCaptureUnavailable is reported upward and halts the loop.
func (s *Skipper) ensureAttached(ctx context.Context) bool {
	if s.attached() {
		return true
	}

	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	// Another cycle may have attached while this one waited.
	if s.attached() {
		return true
	}
	if s.isClosed() {
		return false
	}

	tap, err := s.provider.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrCaptureUnavailable) {
			s.logger.Error("capture source unavailable", "session", s.id, "source", s.provider.Name(), "error", err)
			s.metrics.RecordCaptureUnavailable(ctx, s.provider.Name())
			s.emit(CaptureUnavailable, s.provider.Name())
			return false
		}
		s.logger.Warn("failed to attach analysis tap, retrying", "session", s.id, "source", s.provider.Name(), "error", err)
		return true
	}

	s.mu.Lock()
	closed := s.isClosed()
	if !closed {
		s.tap = tap
		s.sampler.Attach(tap)
	}
	s.mu.Unlock()
	if closed {
		_ = tap.Close()
		return false
	}
	s.speed.SetGain(tap.Gain())

	s.logger.Info("analysis tap attached", "session", s.id, "source", s.provider.Name())
	return true
}

func (s *Skipper) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap != nil
}

// reportVolumeLocked rate-limits volume events and skips unchanged values.
func (s *Skipper) reportVolumeLocked(volume float64) {
	s.samplesSinceVolume++
	if s.samplesSinceVolume < s.timing.VolumeReportGap {
		return
	}
	s.samplesSinceVolume = 0
	if volume == s.lastSentVolume {
		return
	}
	s.lastSentVolume = volume
	s.emit(VolumeUpdate, volume)
}

func (s *Skipper) haltLocked() {
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.classifier.Reset()
	s.speed.Reset(s.config.Snapshot())
	s.samplesSinceVolume = 0
	s.lastSentVolume = 0
	s.emit(VolumeUpdate, 0.0)

	s.logger.Info("silence skipping stopped", "session", s.id)
}

func (s *Skipper) isClosed() bool {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	return s.closed
}

func (s *Skipper) emit(eventType EventType, data interface{}) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- Event{Type: eventType, SessionID: s.id, Data: data}:
	default:
		s.logger.Debug("event channel full, dropping event", "type", eventType)
	}
}
