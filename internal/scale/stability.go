package scale

import "math"

// saturated is the counter value a tare leaves behind: far above any threshold
// so the scale reads as settled immediately afterwards.
const saturated = math.MaxUint16

// StabilityConfig tunes the settle detector. Thresholds are expressed as a
// multiple of the converter's data rate so they track a fixed duration.
type StabilityConfig struct {
	// Diff is the largest change in magnitude between consecutive readings
	// that still counts as stable.
	Diff float64

	// SlowMultiplier × SPS readings confirm a stable weight (~2s).
	SlowMultiplier float64

	// QuickMultiplier × SPS readings give a provisional settle (~0.5s).
	QuickMultiplier float64

	// FarOffset is added to an unstable reading to produce the
	// "far from stable" last-stable-weight sentinel.
	FarOffset float64
}

// Stability is a dual time-constant settle detector.
type Stability struct {
	cfg StabilityConfig

	quick, slow               int
	settledQuick, settledSlow bool

	last       float64
	lastStable float64
}

// NewStability creates a detector that starts unsettled.
func NewStability(cfg StabilityConfig) *Stability {
	return &Stability{cfg: cfg}
}

// thresholds returns the quick and slow counts for the given data rate.
// Each is at least one reading.
func (s *Stability) thresholds(sps int) (quick, slow int) {
	quick = int(float64(sps) * s.cfg.QuickMultiplier)
	slow = int(float64(sps) * s.cfg.SlowMultiplier)
	if quick < 1 {
		quick = 1
	}
	if slow < 1 {
		slow = 1
	}
	return quick, slow
}

// Update feeds one unit reading taken at sps samples per second.
func (s *Stability) Update(u float64, sps int) {
	quickN, slowN := s.thresholds(sps)

	if math.Abs(math.Abs(u)-math.Abs(s.last)) <= s.cfg.Diff {
		if s.quick < quickN {
			s.quick++
		}
		if s.slow < slowN {
			s.slow++
		}
		if s.quick >= quickN {
			s.settledQuick = true
		}
		if s.slow >= slowN && !s.settledSlow {
			s.settledSlow = true
			s.lastStable = u
		}
	} else {
		s.quick, s.slow = 0, 0
		s.settledQuick, s.settledSlow = false, false
		s.lastStable = u + s.cfg.FarOffset
	}
	s.last = u
}

// Rebase replaces the reading the next Update is compared against.
func (s *Stability) Rebase(u float64) {
	s.last = u
}

// Last returns the reading the next Update is compared against.
func (s *Stability) Last() float64 {
	return s.last
}

// Settled reports the slow (authoritative) settle flag.
func (s *Stability) Settled() bool {
	return s.settledSlow
}

// SettledQuick reports the quick (provisional) settle flag.
func (s *Stability) SettledQuick() bool {
	return s.settledQuick
}

// LastStable returns the weight recorded when the slow flag last rose,
// or the far-from-stable sentinel after an excursion.
func (s *Stability) LastStable() float64 {
	return s.lastStable
}

// Counters returns the quick and slow counters.
func (s *Stability) Counters() (quick, slow int) {
	return s.quick, s.slow
}

// Reset clears both counters and flags.
func (s *Stability) Reset() {
	s.quick, s.slow = 0, 0
	s.settledQuick, s.settledSlow = false, false
}

// Saturate marks both detectors settled around zero, as after a tare.
func (s *Stability) Saturate() {
	s.quick, s.slow = saturated, saturated
	s.settledQuick, s.settledSlow = true, true
	s.last = 0
	s.lastStable = 0
}

// SetDiff changes the stability threshold.
func (s *Stability) SetDiff(d float64) {
	s.cfg.Diff = d
}

// Diff returns the stability threshold.
func (s *Stability) Diff() float64 {
	return s.cfg.Diff
}
