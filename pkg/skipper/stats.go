package skipper

import "time"

// Stats summarises the time saved by skipping silence.
type Stats struct {
	SpeedUps   int
	SpedUpTime time.Duration
	TimeSaved  time.Duration
}

type statistics struct {
	skipStart time.Time
	stats     Stats
}

func (s *statistics) skipStarted(now time.Time) {
	s.skipStart = now
	s.stats.SpeedUps++
}

// skipEnded closes the running skip interval and returns how much time it
// saved compared to playing it at normal speed.
func (s *statistics) skipEnded(now time.Time, normalSpeed, silenceSpeed float64) time.Duration {
	if s.skipStart.IsZero() {
		return 0
	}
	skip := now.Sub(s.skipStart)
	s.skipStart = time.Time{}
	s.stats.SpedUpTime += skip

	if normalSpeed <= 0 || silenceSpeed <= 0 {
		return 0
	}

	normalTime := float64(skip) / normalSpeed
	silenceTime := float64(skip) / silenceSpeed
	saved := time.Duration(normalTime - silenceTime)
	if saved <= 0 {
		return 0
	}
	s.stats.TimeSaved += saved
	return saved
}
