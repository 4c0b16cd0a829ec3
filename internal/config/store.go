package config

import (
	"sync"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// Store holds the live settings. It implements skipper.ConfigSource.
type Store struct {
	mu     sync.RWMutex
	cfg    skipper.Config
	subs   map[int]func(old, new skipper.Config)
	nextID int
}

func NewStore(initial skipper.Config) *Store {
	return &Store{
		cfg:  initial,
		subs: make(map[int]func(old, new skipper.Config)),
	}
}

func (s *Store) Snapshot() skipper.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace swaps in cfg and notifies subscribers if anything changed.
func (s *Store) Replace(cfg skipper.Config) {
	s.Update(func(c *skipper.Config) { *c = cfg })
}

// Update applies fn to a copy of the settings. Subscribers are called after
// the lock is released, so they may read or update the store themselves.
func (s *Store) Update(fn func(*skipper.Config)) {
	s.mu.Lock()
	old := s.cfg
	next := old
	fn(&next)
	if next == old {
		s.mu.Unlock()
		return
	}
	s.cfg = next
	subs := make([]func(old, new skipper.Config), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(old, next)
	}
}

// SetSilenceThreshold records the threshold computed by the dynamic
// estimator. It is for display and does not notify subscribers.
func (s *Store) SetSilenceThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SilenceThreshold = threshold
}

// Subscribe registers fn for settings changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(old, new skipper.Config)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
