package skipper

import "math"

const (
	// volumeScale maps the [0,1] amplitude range onto the threshold scale.
	volumeScale = 500

	// detachedVolume is reported while no tap is live so that "not ready"
	// is never classified as silence.
	detachedVolume = 100
)

// VolumeSampler reduces a frame of waveform samples to a single volume value.
// It owns its sample buffer.
type VolumeSampler struct {
	tap AnalysisTap
	buf []float32
}

func NewVolumeSampler(frameSize int) *VolumeSampler {
	if frameSize <= 0 {
		frameSize = DefaultTiming().FrameSize
	}
	return &VolumeSampler{buf: make([]float32, frameSize)}
}

// Attach binds the sampler to a live tap. Passing nil detaches it.
func (s *VolumeSampler) Attach(tap AnalysisTap) {
	s.tap = tap
}

func (s *VolumeSampler) Attached() bool {
	return s.tap != nil
}

// Volume returns 500 times the peak absolute sample of the current frame.
// Peak rather than RMS keeps short transients from being smoothed away.
func (s *VolumeSampler) Volume() float64 {
	if s.tap == nil {
		return detachedVolume
	}

	s.tap.TimeDomainSamples(s.buf)

	return volumeScale * peakPower(s.buf)
}

func peakPower(frame []float32) float64 {
	var peak float64
	for _, v := range frame {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	return peak
}
