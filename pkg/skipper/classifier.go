package skipper

type Transition int

const (
	TransitionNone Transition = iota
	TransitionSpeedUp
	TransitionSlowDown
)

func (t Transition) String() string {
	switch t {
	case TransitionSpeedUp:
		return "speed_up"
	case TransitionSlowDown:
		return "slow_down"
	default:
		return "none"
	}
}

// Classifier is the debounced two-state silence detector. It only decides;
// acting on a transition is left to the caller.
type Classifier struct {
	spedUp           bool
	samplesUnderThld int
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// SpedUp reports whether the classifier is in the sped-up state.
func (c *Classifier) SpedUp() bool {
	return c.spedUp
}

// SamplesUnderThreshold returns the current consecutive quiet sample count.
func (c *Classifier) SamplesUnderThreshold() int {
	return c.samplesUnderThld
}

// Classify feeds one volume sample and returns the resulting transition.
//
// Quiet samples only count while playing and not sped up. The first sample
// strictly above the threshold slows back down; a sample exactly at the
// threshold never flips the state.
func (c *Classifier) Classify(volume, threshold float64, paused bool, required int) Transition {
	if required < 1 {
		required = 1
	}

	if c.spedUp {
		if volume > threshold {
			c.spedUp = false
			c.samplesUnderThld = 0
			return TransitionSlowDown
		}
		return TransitionNone
	}

	if volume >= threshold {
		c.samplesUnderThld = 0
		return TransitionNone
	}
	if paused {
		return TransitionNone
	}

	c.samplesUnderThld++
	if c.samplesUnderThld >= required {
		c.spedUp = true
		return TransitionSpeedUp
	}
	return TransitionNone
}

// Reset returns to the normal state.
func (c *Classifier) Reset() {
	c.spedUp = false
	c.samplesUnderThld = 0
}
