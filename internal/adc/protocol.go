// Package adc drives a 24-bit delta-sigma load-cell converter (ADS1232 family)
// over its two-wire serial interface, filters raw codes and converts them to units.
package adc

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/gpio"
)

// Protocol timing.
const (
	// ReadyTimeout bounds every wait for DOUT to signal a fresh conversion.
	ReadyTimeout = 2 * time.Second

	// halfPulse is the minimum SCLK high and low time. The datasheet asks
	// for 100ns; 1µs keeps ringing on long wires from corrupting bits.
	halfPulse = time.Microsecond

	// powerPulse is the PDWN low time used to reset the converter.
	powerPulse = 10 * time.Microsecond

	// dataHighSpins bounds the wait for DOUT to rise after the 25th pulse.
	dataHighSpins = 1000

	dataBits = 24
)

// Protocol executes single acquisition transactions on the converter's pins.
// It is not safe for concurrent use; one polling goroutine owns it.
type Protocol struct {
	pins     gpio.Pins
	clk      clock.Clock
	critical sync.Locker

	timeouts int

	// Debug enables per-transaction logging.
	Debug bool
}

// NewProtocol creates a Protocol. critical brackets the 24-bit shift; pass
// gpio.NoCriticalSection{} when running against simulated pins.
func NewProtocol(pins gpio.Pins, clk clock.Clock, critical sync.Locker) *Protocol {
	if critical == nil {
		critical = gpio.NoCriticalSection{}
	}
	return &Protocol{pins: pins, clk: clk, critical: critical}
}

// IsReady reports whether DOUT is low, i.e. a fresh conversion is waiting.
func (p *Protocol) IsReady() bool {
	return !p.pins.Get(gpio.LineDOUT)
}

// WaitReady busy-polls IsReady, yielding on every spin, until it is true or
// timeout elapses. A timeout is logged and counted, never fatal.
func (p *Protocol) WaitReady(timeout time.Duration) bool {
	start := p.clk.Now()
	for !p.IsReady() {
		if p.clk.Now().Sub(start) > timeout {
			p.timeouts++
			log.Printf("adc: timed out after %v waiting for data ready", timeout)
			return false
		}
		p.clk.Yield()
	}
	return true
}

// Timeouts returns the number of readiness timeouts since creation.
func (p *Protocol) Timeouts() int {
	return p.timeouts
}

// Acquire waits for readiness and reads one conversion.
// On timeout it returns 0 so callers can carry on with a neutral value.
func (p *Protocol) Acquire() int32 {
	if !p.WaitReady(ReadyTimeout) {
		return 0
	}
	return p.ReadRaw()
}

// ReadRaw clocks one 24-bit conversion out of the converter. The caller must
// have confirmed readiness. Only the 24-pulse shift runs inside the critical
// section; the 25th pulse and the wait for DOUT to rise stay preemptible.
func (p *Protocol) ReadRaw() int32 {
	var v int32

	p.critical.Lock()
	for i := 0; i < dataBits; i++ {
		p.pins.Set(gpio.LineSCLK, true)
		p.clk.Sleep(halfPulse)
		v <<= 1
		if p.pins.Get(gpio.LineDOUT) {
			v |= 1
		}
		p.pins.Set(gpio.LineSCLK, false)
		p.clk.Sleep(halfPulse)
	}
	p.critical.Unlock()

	// 25th pulse forces DOUT high until the next conversion.
	p.pulse()

	for spins := dataHighSpins; spins > 0 && !p.pins.Get(gpio.LineDOUT); spins-- {
		p.clk.Yield()
	}

	code := SignExtend(v)
	if p.Debug {
		log.Printf("adc: raw %d", code)
	}
	return code
}

// SignExtend widens a 24-bit two's-complement value held in the low bits of v.
func SignExtend(v int32) int32 {
	return (v << 8) >> 8
}

func (p *Protocol) pulse() {
	p.pins.Set(gpio.LineSCLK, true)
	p.clk.Sleep(halfPulse)
	p.pins.Set(gpio.LineSCLK, false)
}

// TriggerSelfCalibration runs the converter's offset calibration: a full read
// followed by a 26th pulse, a wait for readiness and one discarded read.
// It is best-effort and reports whether the converter came back.
func (p *Protocol) TriggerSelfCalibration() bool {
	if p.Debug {
		log.Printf("adc: self-calibration start")
	}
	p.Acquire()
	p.clk.Sleep(halfPulse)
	p.pulse()
	if !p.WaitReady(ReadyTimeout) {
		log.Printf("adc: self-calibration did not complete")
		return false
	}
	p.ReadRaw()
	if p.Debug {
		log.Printf("adc: self-calibration done")
	}
	return true
}

// PowerOn pulses PDWN, parks SCLK low, waits for the first conversion and self-calibrates.
func (p *Protocol) PowerOn() bool {
	p.pins.Set(gpio.LinePDWN, false)
	p.clk.Sleep(powerPulse)
	p.pins.Set(gpio.LinePDWN, true)
	p.pins.Set(gpio.LineSCLK, false)

	if !p.WaitReady(ReadyTimeout) {
		log.Printf("adc: power on failed")
		return false
	}
	return p.TriggerSelfCalibration()
}

// PowerOff puts the converter into its low-power state.
func (p *Protocol) PowerOff() {
	p.pins.Set(gpio.LinePDWN, false)
	p.pins.Set(gpio.LineSCLK, true)
}

// selectSpeed drives the SPEED line.
func (p *Protocol) selectSpeed(s Speed) {
	p.pins.Set(gpio.LineSpeed, s == Speed80)
}

// selectGain drives GAIN1/GAIN0.
func (p *Protocol) selectGain(g Gain) {
	var g1, g0 bool
	switch g {
	case Gain1:
	case Gain2:
		g0 = true
	case Gain64:
		g1 = true
	default:
		g1, g0 = true, true
	}
	p.pins.Set(gpio.LineGain1, g1)
	p.pins.Set(gpio.LineGain0, g0)
}

// selectChannel drives A0.
func (p *Protocol) selectChannel(c Channel) {
	p.pins.Set(gpio.LineA0, c == Channel1)
}

// disableTemp keeps the inputs on the bridge rather than the internal diodes.
func (p *Protocol) disableTemp() {
	p.pins.Set(gpio.LineTemp, false)
}
