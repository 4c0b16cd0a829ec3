package audio

import "sync"

// Analyser keeps the most recent mono samples written through it, like a
// time-domain analyser node.
type Analyser struct {
	mu   sync.Mutex
	ring []float32
	pos  int
}

func NewAnalyser(size int) *Analyser {
	if size <= 0 {
		size = 2048
	}
	return &Analyser{ring: make([]float32, size)}
}

func (a *Analyser) Size() int {
	return len(a.ring)
}

func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

// WriteInterleaved mixes interleaved frames down to mono before writing.
func (a *Analyser) WriteInterleaved(samples []float32, channels int) {
	if channels <= 1 {
		a.Write(samples)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i+c]
		}
		a.ring[a.pos] = sum / float32(channels)
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

// TimeDomainSamples copies the newest samples into buf, oldest first.
func (a *Analyser) TimeDomainSamples(buf []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	if len(buf) < n {
		n = len(buf)
	}
	start := a.pos - n
	if start < 0 {
		start += len(a.ring)
	}
	for i := 0; i < n; i++ {
		buf[i] = a.ring[(start+i)%len(a.ring)]
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}
