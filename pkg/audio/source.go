package audio

import (
	"context"
	"sync"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// ElementSource taps a Player directly, the way an element source node taps
// a page's media element. Its taps can attenuate the player.
type ElementSource struct {
	player    *Player
	frameSize int
}

func NewElementSource(player *Player, frameSize int) *ElementSource {
	return &ElementSource{player: player, frameSize: frameSize}
}

func (s *ElementSource) Name() string {
	return "element"
}

func (s *ElementSource) Acquire(ctx context.Context) (skipper.AnalysisTap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	analyser := NewAnalyser(s.frameSize)
	s.player.attachAnalyser(analyser)
	return &elementTap{player: s.player, analyser: analyser}, nil
}

type elementTap struct {
	player   *Player
	analyser *Analyser
	once     sync.Once
}

func (t *elementTap) TimeDomainSamples(buf []float32) {
	t.analyser.TimeDomainSamples(buf)
}

func (t *elementTap) Gain() skipper.GainControl {
	return t.player.gain
}

// Close detaches the analyser and restores full gain.
func (t *elementTap) Close() error {
	t.once.Do(func() {
		t.player.detachAnalyser(t.analyser)
		t.player.gain.SetGain(1, 0)
	})
	return nil
}
