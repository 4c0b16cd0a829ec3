// Package skipsilence is the high-level API for speeding media up through
// silent passages.
//
// Example:
//
//	clip, _ := audio.Load("lecture.mp3")
//	store := config.NewStore(skipper.Config{Enabled: true, SilenceThreshold: 30,
//		SamplesThreshold: 10, PlaybackSpeed: 1, SilenceSpeed: 3})
//	session, _ := skipsilence.NewPlayerSession(clip, store, 2048)
//	defer session.Close()
//	// feed session.Player().Read into an audio output
package skipsilence

import (
	"fmt"

	"github.com/lokutor-ai/skip-silence/internal/config"
	"github.com/lokutor-ai/skip-silence/pkg/audio"
	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// Session keeps one skipper in sync with a settings store.
type Session struct {
	skipper     *skipper.Skipper
	store       *config.Store
	player      *audio.Player
	unsubscribe func()
}

// NewSession wires media and provider to a new skipper. The loop starts
// right away if the stored settings are enabled, and follows every later
// change made through the store.
func NewSession(media skipper.MediaSource, provider skipper.AudioSourceProvider, store *config.Store, opts ...skipper.Option) (*Session, error) {
	if store == nil {
		return nil, skipper.ErrNilConfig
	}

	sk, err := skipper.New(media, provider, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("create skipper: %w", err)
	}

	s := &Session{skipper: sk, store: store}
	s.unsubscribe = store.Subscribe(sk.ApplyConfig)

	if store.Snapshot().Enabled {
		sk.Start()
	}
	return s, nil
}

// NewPlayerSession plays clip through an in-process player tapped directly,
// so muting during silence works.
func NewPlayerSession(clip *audio.Clip, store *config.Store, frameSize int, opts ...skipper.Option) (*Session, error) {
	player := audio.NewPlayer(clip)
	s, err := NewSession(player, audio.NewElementSource(player, frameSize), store, opts...)
	if err != nil {
		return nil, err
	}
	s.player = player
	return s, nil
}

func (s *Session) ID() string {
	return s.skipper.ID()
}

// Player returns the player created by NewPlayerSession, or nil.
func (s *Session) Player() *audio.Player {
	return s.player
}

func (s *Session) Events() <-chan skipper.Event {
	return s.skipper.Events()
}

func (s *Session) Running() bool {
	return s.skipper.Running()
}

func (s *Session) State() skipper.SpeedState {
	return s.skipper.State()
}

func (s *Session) Stats() skipper.Stats {
	return s.skipper.Stats()
}

func (s *Session) Threshold() float64 {
	return s.skipper.Threshold()
}

// Settings returns the current settings.
func (s *Session) Settings() skipper.Config {
	return s.store.Snapshot()
}

// Update changes the settings. The skipper reacts through its subscription.
func (s *Session) Update(fn func(*skipper.Config)) {
	s.store.Update(fn)
}

func (s *Session) Enable() {
	s.Update(func(c *skipper.Config) { c.Enabled = true })
}

func (s *Session) Disable() {
	s.Update(func(c *skipper.Config) { c.Enabled = false })
}

// Close stops the loop, detaches from the store and releases the tap.
func (s *Session) Close() error {
	s.unsubscribe()
	return s.skipper.Close()
}
