package skipper

import (
	"testing"
	"time"
)

type speedHarness struct {
	clock  *manualClock
	media  *MockMedia
	gain   *MockGain
	states []SpeedState
	ctrl   *SpeedController
}

func newSpeedHarness() *speedHarness {
	h := &speedHarness{clock: newManualClock(), media: newMockMedia(), gain: &MockGain{}}
	act := NewActuator(h.media, h.clock, time.Millisecond, nil, nil)
	h.ctrl = NewSpeedController(act, h.clock, DefaultTiming(), nil, nil, func(t EventType, data interface{}) {
		if t == SpeedTransition {
			h.states = append(h.states, data.(SpeedState))
		}
	})
	h.ctrl.SetGain(h.gain)
	return h
}

func muteConfig() Config {
	cfg := enabledConfig()
	cfg.MuteSilence = true
	return cfg
}

func TestSpeedController_SlowDownCancelsPendingSpeedUp(t *testing.T) {
	h := newSpeedHarness()
	cfg := muteConfig()

	h.ctrl.SpeedUp(cfg)
	if h.ctrl.State() != StatePending {
		t.Fatalf("expected pending, got %s", h.ctrl.State())
	}
	if len(h.media.Sets()) != 0 {
		t.Fatalf("rate must not change before the mute delay, got %v", h.media.Sets())
	}

	h.clock.Advance(10 * time.Millisecond)
	h.ctrl.SlowDown(cfg)
	h.clock.Advance(50 * time.Millisecond)

	sets := h.media.Sets()
	if len(sets) != 1 || sets[0] != 1.01 {
		t.Errorf("cancelled speed-up must not reach the media, got %v", sets)
	}
	if h.ctrl.State() != StateNormal {
		t.Errorf("expected normal, got %s", h.ctrl.State())
	}
	if last, _ := h.gain.Last(); last.value != 1 || last.tc != 40*time.Millisecond {
		t.Errorf("expected unmute ramp (1, 40ms), got %+v", last)
	}
	if len(h.states) != 2 || h.states[0] != StatePending || h.states[1] != StateNormal {
		t.Errorf("expected pending then normal, got %v", h.states)
	}
}

func TestSpeedController_SpeedUpWithoutMute(t *testing.T) {
	h := newSpeedHarness()

	h.ctrl.SpeedUp(enabledConfig())
	if h.ctrl.State() != StateSpedUp {
		t.Fatalf("expected sped-up, got %s", h.ctrl.State())
	}
	if sets := h.media.Sets(); len(sets) != 1 || sets[0] != 3 {
		t.Errorf("expected immediate silence speed, got %v", sets)
	}
	if _, ok := h.gain.Last(); ok {
		t.Error("gain must not be touched without muting")
	}
}

func TestSpeedController_ApplyReassertsSettings(t *testing.T) {
	h := newSpeedHarness()
	h.ctrl.SpeedUp(enabledConfig())

	cfg := muteConfig()
	cfg.SilenceSpeed = 4
	h.ctrl.Apply(cfg)

	if got := h.media.PlaybackRate(); got != 4 {
		t.Errorf("expected new silence speed 4, got %f", got)
	}
	if last, _ := h.gain.Last(); last.value != 0 || last.tc != 0 {
		t.Errorf("enabling mute while sped up should silence at once, got %+v", last)
	}

	h.ctrl.SlowDown(cfg)
	cfg.PlaybackSpeed = 1.5
	h.ctrl.Apply(cfg)
	if got := h.media.PlaybackRate(); got != 1.5 {
		t.Errorf("expected new playback speed 1.5, got %f", got)
	}
	if last, _ := h.gain.Last(); last.value != 1 || last.tc != 0 {
		t.Errorf("normal state should be unmuted, got %+v", last)
	}
}

func TestSpeedController_ResetEndsSkip(t *testing.T) {
	h := newSpeedHarness()
	cfg := muteConfig()

	h.ctrl.SpeedUp(cfg)
	h.clock.Advance(time.Second)
	if h.ctrl.State() != StateSpedUp {
		t.Fatalf("expected sped-up after the mute delay, got %s", h.ctrl.State())
	}

	h.ctrl.Reset(cfg)
	if h.ctrl.State() != StateNormal {
		t.Errorf("expected normal, got %s", h.ctrl.State())
	}
	if got := h.media.PlaybackRate(); got != 1.01 {
		t.Errorf("expected 1.01 after reset, got %f", got)
	}
	if last, _ := h.gain.Last(); last.value != 1 || last.tc != 0 {
		t.Errorf("reset should unmute at once, got %+v", last)
	}

	stats := h.ctrl.Stats()
	if stats.SpeedUps != 1 || stats.SpedUpTime != time.Second {
		t.Errorf("unexpected stats %+v", stats)
	}
}
