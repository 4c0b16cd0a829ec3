package skipper

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stopOnSnapshotConfig stops the skipper from inside the first armed
// Snapshot call, after handing out a still-enabled config.
type stopOnSnapshotConfig struct {
	MockConfig
	mu      sync.Mutex
	armed   bool
	skipper *Skipper
}

func (c *stopOnSnapshotConfig) Arm(s *Skipper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	c.skipper = s
}

func (c *stopOnSnapshotConfig) Snapshot() Config {
	cfg := c.MockConfig.Snapshot()

	c.mu.Lock()
	s := c.skipper
	fire := c.armed
	c.armed = false
	c.mu.Unlock()

	if fire {
		s.Stop()
	}
	return cfg
}

func TestSkipper_StopDuringCycleLeavesNormalSpeed(t *testing.T) {
	cfg := enabledConfig()
	cfg.SamplesThreshold = 1

	clock := newManualClock()
	media := newMockMedia()
	tap := &MockTap{volume: 50}
	source := &stopOnSnapshotConfig{MockConfig: MockConfig{cfg: cfg}}

	s, err := New(media, &MockProvider{tap: tap}, source, WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Start()
	clock.Advance(0)
	if s.State() != StateNormal {
		t.Fatalf("loud first sample should stay normal, got %s", s.State())
	}

	tap.SetVolume(5)
	source.Arm(s)
	clock.Advance(100 * time.Millisecond)

	if s.Running() {
		t.Fatal("skipper should be stopped")
	}
	if s.State() != StateNormal {
		t.Errorf("stopped skipper left in state %s", s.State())
	}
	if got := media.PlaybackRate(); got != 1.01 {
		t.Errorf("stopped skipper left media at rate %v", got)
	}
	if n := clock.Pending(); n != 0 {
		t.Errorf("expected no armed timers after stop, got %d", n)
	}
}

// gatedProvider blocks every Acquire until release is closed and hands out
// a fresh tap each time.
type gatedProvider struct {
	mu      sync.Mutex
	taps    []*MockTap
	entered chan struct{}
	release chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (p *gatedProvider) Acquire(context.Context) (AnalysisTap, error) {
	p.entered <- struct{}{}
	<-p.release

	tap := &MockTap{volume: 50}
	p.mu.Lock()
	p.taps = append(p.taps, tap)
	p.mu.Unlock()
	return tap, nil
}

func (p *gatedProvider) Name() string {
	return "gated"
}

func (p *gatedProvider) Taps() []*MockTap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MockTap(nil), p.taps...)
}

func TestSkipper_RestartDuringAcquireAttachesOnce(t *testing.T) {
	clock := newManualClock()
	provider := newGatedProvider()
	s, err := New(newMockMedia(), provider, &MockConfig{cfg: enabledConfig()}, WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	advance := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(0)
		}()
	}

	s.Start()
	advance()
	select {
	case <-provider.entered:
	case <-time.After(time.Second):
		t.Fatal("first cycle never reached Acquire")
	}

	s.Stop()
	s.Start()
	advance()

	close(provider.release)
	wg.Wait()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	taps := provider.Taps()
	if len(taps) != 1 {
		t.Fatalf("expected a single acquisition, got %d", len(taps))
	}
	for i, tap := range taps {
		tap.mu.Lock()
		closed := tap.closed
		tap.mu.Unlock()
		if !closed {
			t.Errorf("tap %d was never closed", i)
		}
	}
}

func TestSkipper_AcquireAfterCloseReleasesTap(t *testing.T) {
	provider := newGatedProvider()
	s, err := New(newMockMedia(), provider, &MockConfig{cfg: enabledConfig()})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan Decision, 1)
	go func() { done <- s.Step(context.Background()) }()
	<-provider.entered

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	close(provider.release)

	if d := <-done; d != Halt {
		t.Errorf("expected Halt once closed, got %v", d)
	}
	taps := provider.Taps()
	if len(taps) != 1 {
		t.Fatalf("expected one acquisition, got %d", len(taps))
	}
	taps[0].mu.Lock()
	defer taps[0].mu.Unlock()
	if !taps[0].closed {
		t.Error("tap acquired after Close was leaked")
	}
}
