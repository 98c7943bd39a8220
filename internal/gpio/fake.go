package gpio

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/scale-sensor/internal/clock"
)

// Conversion timing of the simulated converter.
const (
	SimPeriodSlow   = 100 * time.Millisecond   // 10SPS
	SimPeriodFast   = 12500 * time.Microsecond // 80SPS
	SimSelfCalSlow  = 801500 * time.Microsecond
	SimSelfCalFast  = 101500 * time.Microsecond
	SimCountsPerG   = 1400.0
	simMaxCode      = 1<<23 - 1
	simMinCode      = -(1 << 23)
	simReadBits     = 24
	simPulseDone    = simReadBits + 1 // 25th pulse forces DOUT high
	simPulseSelfCal = simReadBits + 2 // 26th pulse starts offset calibration
)

// SimADC is a test double that behaves like an ADS1232 on the wire.
// It watches SCLK edges, shifts out 24-bit two's-complement codes MSB first,
// raises DOUT on the 25th pulse, and enters self-calibration on the 26th.
// Data-ready timing follows the SPEED line and the supplied clock.
type SimADC struct {
	mu    sync.Mutex
	clk   clock.Clock
	level [numLines]bool

	source func(now time.Time) int32

	powered   bool
	nextReady time.Time
	pulses    int
	latched   uint32

	// Stuck holds DOUT high forever, simulating a disconnected converter.
	Stuck bool

	// Edges counts rising SCLK edges.
	Edges int

	// Conversions counts completed 24-bit reads.
	Conversions int

	// SelfCalibrations counts 26th-pulse calibration entries.
	SelfCalibrations int

	// Unwired lists lines that behave as not connected.
	Unwired map[Line]bool
}

// NewSimADC creates a powered-down simulated converter producing code 0.
func NewSimADC(clk clock.Clock) *SimADC {
	s := &SimADC{clk: clk}
	s.source = func(time.Time) int32 { return 0 }
	s.level[LineDOUT] = true
	return s
}

// SetCode makes every subsequent conversion return code (clamped to 24 bits).
func (s *SimADC) SetCode(code int32) {
	s.SetSource(func(time.Time) int32 { return code })
}

// SetLoad makes conversions return zero + units*SimCountsPerG, scaled by the selected gain.
func (s *SimADC) SetLoad(zero int32, units float64) {
	s.SetLoadFunc(zero, func(time.Time) float64 { return units })
}

// SetLoadFunc is SetLoad with a time-varying load.
func (s *SimADC) SetLoadFunc(zero int32, load func(now time.Time) float64) {
	s.SetSource(func(now time.Time) int32 {
		counts := load(now) * SimCountsPerG * s.gainLocked() / 128
		return zero + int32(math.Round(counts))
	})
}

// SetSource installs an arbitrary code generator.
func (s *SimADC) SetSource(fn func(now time.Time) int32) {
	s.mu.Lock()
	s.source = fn
	s.mu.Unlock()
}

// Period returns the conversion period selected by the SPEED line.
func (s *SimADC) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodLocked()
}

func (s *SimADC) periodLocked() time.Duration {
	if s.level[LineSpeed] {
		return SimPeriodFast
	}
	return SimPeriodSlow
}

func (s *SimADC) selfCalLocked() time.Duration {
	if s.level[LineSpeed] {
		return SimSelfCalFast
	}
	return SimSelfCalSlow
}

// gainLocked is called from inside source while mu is held.
func (s *SimADC) gainLocked() float64 {
	switch {
	case s.level[LineGain1] && s.level[LineGain0]:
		return 128
	case s.level[LineGain1]:
		return 64
	case s.level[LineGain0]:
		return 2
	}
	return 1
}

// Level returns the last level driven on an output line.
func (s *SimADC) Level(line Line) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level[line]
}

// Powered reports whether PDWN is released.
func (s *SimADC) Powered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powered
}

// Set drives a line and reacts to PDWN and SCLK transitions.
func (s *SimADC) Set(line Line, high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unwired[line] || line == LineDOUT {
		return
	}
	prev := s.level[line]
	s.level[line] = high
	now := s.clk.Now()

	switch line {
	case LinePDWN:
		if prev && !high {
			s.powered = false
			s.pulses = 0
		}
		if !prev && high {
			s.powered = true
			s.pulses = 0
			s.nextReady = now.Add(s.periodLocked())
		}
	case LineSCLK:
		if !prev && high {
			s.edge(now)
		}
	}
}

func (s *SimADC) edge(now time.Time) {
	s.Edges++
	if !s.powered {
		return
	}
	switch {
	case s.pulses > 0 && s.pulses < simPulseDone:
		s.pulses++
		if s.pulses == simPulseDone {
			s.Conversions++
			s.nextReady = now.Add(s.periodLocked())
		}
	case s.pulses == simPulseDone && now.Before(s.nextReady):
		s.pulses = simPulseSelfCal
		s.SelfCalibrations++
		s.nextReady = now.Add(s.selfCalLocked())
	case s.readyLocked(now):
		code := s.source(now)
		if code > simMaxCode {
			code = simMaxCode
		}
		if code < simMinCode {
			code = simMinCode
		}
		s.latched = uint32(code) & 0xFFFFFF
		s.pulses = 1
	}
}

func (s *SimADC) readyLocked(now time.Time) bool {
	if !s.powered || s.Stuck || now.Before(s.nextReady) {
		return false
	}
	return s.pulses == 0 || s.pulses >= simPulseDone
}

// Get samples a line. DOUT is low when a conversion is ready and carries the
// current bit while a read is in progress.
func (s *SimADC) Get(line Line) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unwired[line] {
		return false
	}
	if line != LineDOUT {
		return s.level[line]
	}
	if s.pulses > 0 && s.pulses <= simReadBits {
		bit := simReadBits - s.pulses
		return s.latched>>uint(bit)&1 == 1
	}
	return !s.readyLocked(s.clk.Now())
}

// Close is a no-op.
func (s *SimADC) Close() error {
	return nil
}

var _ Pins = (*SimADC)(nil)
