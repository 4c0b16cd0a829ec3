package audio

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

type rateListener struct {
	id      int
	capture bool
	fn      func(*skipper.RateChangeEvent)
}

// Player renders a Clip at a variable playback rate. It is the media handle
// the skipper controls: Read pulls output frames, the rate decides how fast
// the read position advances.
type Player struct {
	clip *Clip
	gain *Gain

	mu          sync.Mutex
	pos         float64
	rate        float64
	defaultRate float64
	paused      bool
	analyser    *Analyser
	listeners   []rateListener
	nextID      int
	done        chan struct{}
	ended       bool
}

func NewPlayer(clip *Clip) *Player {
	return &Player{
		clip:        clip,
		gain:        NewGain(clip.SampleRate),
		rate:        1,
		defaultRate: 1,
		done:        make(chan struct{}),
	}
}

func (p *Player) Clip() *Clip {
	return p.clip
}

func (p *Player) Gain() *Gain {
	return p.gain
}

func (p *Player) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// SetPlaybackRate changes the rate and notifies rate listeners, capturing
// ones first. Listeners run without the player lock held and may set the
// rate again.
func (p *Player) SetPlaybackRate(rate float64) {
	if rate < 0 || math.IsNaN(rate) {
		return
	}

	p.mu.Lock()
	p.rate = rate
	listeners := make([]rateListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	sort.SliceStable(listeners, func(i, j int) bool {
		return listeners[i].capture && !listeners[j].capture
	})

	ev := &skipper.RateChangeEvent{Rate: rate}
	for _, l := range listeners {
		l.fn(ev)
		if ev.PropagationStopped() {
			return
		}
	}
}

func (p *Player) DefaultPlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultRate
}

func (p *Player) SetDefaultPlaybackRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultRate = rate
}

func (p *Player) OnRateChange(capture bool, fn func(*skipper.RateChangeEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, rateListener{id: id, capture: capture, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused || p.ended
}

func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Position returns the current read position in media time.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.pos / float64(p.clip.SampleRate) * float64(time.Second))
}

// Done is closed once the read position reaches the end of the clip.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) attachAnalyser(a *Analyser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyser = a
}

func (p *Player) detachAnalyser(a *Analyser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.analyser == a {
		p.analyser = nil
	}
}

// Read fills out with interleaved frames in the clip's channel layout and
// returns the number of frames produced. Frames past the end, and all frames
// while paused, are silent. The analyser sees the signal before the gain
// stage so muting does not hide audio from silence detection.
func (p *Player) Read(out []float32) int {
	channels := p.clip.Channels
	if channels < 1 {
		return 0
	}
	frames := len(out) / channels

	p.mu.Lock()
	produced := 0
	if !p.paused && !p.ended {
		total := p.clip.Frames()
		for produced < frames {
			idx := int(p.pos)
			if idx >= total {
				break
			}
			frac := float32(p.pos - float64(idx))
			next := idx + 1
			if next >= total {
				next = idx
			}
			for c := 0; c < channels; c++ {
				a := p.clip.Samples[idx*channels+c]
				b := p.clip.Samples[next*channels+c]
				out[produced*channels+c] = a + (b-a)*frac
			}
			produced++
			p.pos += p.rate
		}
		if int(p.pos) >= total && !p.ended {
			p.ended = true
			close(p.done)
		}
	}
	for i := produced * channels; i < len(out); i++ {
		out[i] = 0
	}
	analyser := p.analyser
	p.mu.Unlock()

	if analyser != nil {
		analyser.WriteInterleaved(out[:frames*channels], channels)
	}
	p.gain.Process(out[:frames*channels], channels)
	return produced
}
