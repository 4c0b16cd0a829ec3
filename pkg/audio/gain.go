package audio

import (
	"math"
	"sync"
	"time"
)

// Gain scales audio and approaches new targets exponentially, the way
// setTargetAtTime does, so gain changes do not click.
type Gain struct {
	mu         sync.Mutex
	sampleRate int
	value      float64
	target     float64
	coeff      float64
}

func NewGain(sampleRate int) *Gain {
	return &Gain{sampleRate: sampleRate, value: 1, target: 1}
}

// SetGain implements skipper.GainControl.
func (g *Gain) SetGain(value float64, timeConstant time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.target = value
	if timeConstant <= 0 || g.sampleRate <= 0 {
		g.value = value
		g.coeff = 0
		return
	}
	g.coeff = 1 - math.Exp(-1/(timeConstant.Seconds()*float64(g.sampleRate)))
}

func (g *Gain) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Process applies the gain in place to interleaved frames.
func (g *Gain) Process(samples []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i+channels <= len(samples); i += channels {
		if g.value != g.target {
			g.value += (g.target - g.value) * g.coeff
			if math.Abs(g.target-g.value) < 1e-4 {
				g.value = g.target
			}
		}
		for c := 0; c < channels; c++ {
			samples[i+c] *= float32(g.value)
		}
	}
}
