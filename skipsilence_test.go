package skipsilence

import (
	"errors"
	"testing"
	"time"

	"github.com/lokutor-ai/skip-silence/internal/config"
	"github.com/lokutor-ai/skip-silence/pkg/audio"
	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// frozenClock never fires timers, so the loop is armed but never cycles.
type frozenClock struct{}

func (frozenClock) Now() time.Time { return time.Unix(0, 0) }

func (frozenClock) AfterFunc(time.Duration, func()) skipper.Timer { return frozenTimer{} }

type frozenTimer struct{}

func (frozenTimer) Stop() bool { return true }

func testClip() *audio.Clip {
	return &audio.Clip{Samples: make([]float32, 1000), Channels: 1, SampleRate: 1000}
}

func testSettings(enabled bool) skipper.Config {
	cfg := skipper.DefaultConfig()
	cfg.Enabled = enabled
	return cfg
}

func TestNewSession_RequiresStore(t *testing.T) {
	player := audio.NewPlayer(testClip())
	_, err := NewSession(player, audio.NewElementSource(player, 64), nil)
	if !errors.Is(err, skipper.ErrNilConfig) {
		t.Errorf("expected ErrNilConfig, got %v", err)
	}
}

func TestNewSession_StartsWhenEnabled(t *testing.T) {
	s, err := NewPlayerSession(testClip(), config.NewStore(testSettings(true)), 64, skipper.WithClock(frozenClock{}))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if !s.Running() {
		t.Error("session should start with enabled settings")
	}
	if s.Player() == nil {
		t.Error("player session should expose its player")
	}
	if s.ID() == "" {
		t.Error("expected a session id")
	}
}

func TestSession_FollowsStore(t *testing.T) {
	s, err := NewPlayerSession(testClip(), config.NewStore(testSettings(false)), 64, skipper.WithClock(frozenClock{}))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Running() {
		t.Fatal("disabled session should not run")
	}

	s.Enable()
	if !s.Running() {
		t.Fatal("enable should start the loop")
	}

	s.Update(func(c *skipper.Config) { c.PlaybackSpeed = 1.5 })
	if got := s.Player().PlaybackRate(); got != 1.5 {
		t.Errorf("playback speed change should apply immediately, got %f", got)
	}

	s.Disable()
	if s.Running() {
		t.Fatal("disable should stop the loop")
	}
	if got := s.Player().PlaybackRate(); got != 1.01 {
		t.Errorf("disable should hand back normal speed, got %f", got)
	}
}

func TestSession_CloseDetachesFromStore(t *testing.T) {
	store := config.NewStore(testSettings(false))
	s, err := NewPlayerSession(testClip(), store, 64, skipper.WithClock(frozenClock{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	store.Update(func(c *skipper.Config) { c.Enabled = true })
	if s.Running() {
		t.Error("closed session should ignore store changes")
	}
}

func TestSession_SettingsSnapshot(t *testing.T) {
	store := config.NewStore(testSettings(false))
	s, err := NewPlayerSession(testClip(), store, 64, skipper.WithClock(frozenClock{}))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Update(func(c *skipper.Config) { c.SilenceSpeed = 4 })
	if s.Settings().SilenceSpeed != 4 {
		t.Errorf("expected silence speed 4, got %f", s.Settings().SilenceSpeed)
	}
	if s.Threshold() != 30 {
		t.Errorf("expected static threshold 30, got %f", s.Threshold())
	}
}
