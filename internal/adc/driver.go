package adc

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/scale-sensor/internal/clock"
)

// Speed is the converter's output data rate in samples per second.
type Speed int

const (
	Speed10 Speed = 10
	Speed80 Speed = 80
)

// Gain is the programmable amplifier gain.
type Gain int

const (
	Gain1   Gain = 1
	Gain2   Gain = 2
	Gain64  Gain = 64
	Gain128 Gain = 128
)

// Channel selects the differential input pair.
type Channel int

const (
	Channel0 Channel = 0
	Channel1 Channel = 1
)

// ChannelConfig is the converter configuration owned by the Driver.
type ChannelConfig struct {
	Speed   Speed
	Gain    Gain
	Channel Channel
	Powered bool
}

// TareMode selects how the tare offset is captured.
type TareMode int

const (
	// TareQuick takes one fresh reading.
	TareQuick TareMode = iota
	// TareRapid reuses the last reading, for chained operations.
	TareRapid
	// TareFull optionally self-calibrates, then takes four consecutive readings.
	TareFull
)

func (m TareMode) String() string {
	switch m {
	case TareQuick:
		return "quick"
	case TareRapid:
		return "rapid"
	case TareFull:
		return "full"
	}
	return fmt.Sprintf("TareMode(%d)", int(m))
}

// ParseTareMode converts "quick", "rapid" or "full" to a TareMode.
func ParseTareMode(s string) (TareMode, error) {
	switch s {
	case "quick":
		return TareQuick, nil
	case "rapid":
		return TareRapid, nil
	case "full":
		return TareFull, nil
	}
	return 0, fmt.Errorf("unknown tare mode %q", s)
}

// DefaultCalFactor is used until a calibration is restored or performed.
const DefaultCalFactor = 1400.0

// fullTareReads is the number of consecutive reads a full tare takes. Only the
// last one is kept: the earlier ones let the converter settle after a mode change.
const fullTareReads = 4

// Driver composes the Protocol with a smoothing Filter and owns the tare
// offset and calibration factor.
type Driver struct {
	proto  *Protocol
	filter *Filter
	clk    clock.Clock

	cfg        ChannelConfig
	calFactor  float64
	tareOffset int32
	smoothing  bool
	lastValue  int32

	seeded bool

	rateReads int
	rateStart time.Time
	actualSPS int
}

// NewDriver creates a Driver with the reference defaults: 80SPS, gain 128,
// channel 0, smoothing enabled at the minimum window.
func NewDriver(proto *Protocol, clk clock.Clock) *Driver {
	return &Driver{
		proto:     proto,
		filter:    NewFilter(MinWindow, 0),
		clk:       clk,
		cfg:       ChannelConfig{Speed: Speed80, Gain: Gain128, Channel: Channel0},
		calFactor: DefaultCalFactor,
		smoothing: true,
	}
}

// Protocol returns the underlying protocol.
func (d *Driver) Protocol() *Protocol {
	return d.proto
}

// Begin powers the converter up, applies the configuration without
// recalibrating, lets it settle and takes a quick tare.
func (d *Driver) Begin(channel Channel, gain Gain, speed Speed) {
	d.PowerOn()
	d.proto.disableTemp()
	d.SetChannel(channel, false)
	d.SetGain(gain, false)
	d.SetSpeed(speed, false)
	d.clk.Sleep(250 * time.Millisecond)
	d.Tare(TareQuick, true)
}

// PowerOn wakes the converter and runs its self-calibration.
func (d *Driver) PowerOn() bool {
	ok := d.proto.PowerOn()
	d.cfg.Powered = true
	return ok
}

// PowerOff puts the converter to sleep. It does not switch any supply regulator.
func (d *Driver) PowerOff() {
	d.proto.PowerOff()
	d.cfg.Powered = false
}

// SelfCalibrate runs the converter's internal offset calibration.
// This is not the calculation of the calibration factor.
func (d *Driver) SelfCalibrate() bool {
	return d.proto.TriggerSelfCalibration()
}

// Config returns the current channel configuration.
func (d *Driver) Config() ChannelConfig {
	return d.cfg
}

// SetSpeed selects 10 or 80 SPS. Any value other than 80 selects 10.
func (d *Driver) SetSpeed(s Speed, recalibrate bool) {
	if s != Speed80 {
		s = Speed10
	}
	d.cfg.Speed = s
	d.proto.selectSpeed(s)
	if recalibrate {
		d.SelfCalibrate()
	}
}

// Speed returns the configured data rate.
func (d *Driver) Speed() Speed {
	return d.cfg.Speed
}

// SetGain selects 1, 2, 64 or 128. Unknown values select 128.
func (d *Driver) SetGain(g Gain, recalibrate bool) {
	switch g {
	case Gain1, Gain2, Gain64, Gain128:
	default:
		g = Gain128
	}
	d.cfg.Gain = g
	d.proto.selectGain(g)
	if recalibrate {
		d.SelfCalibrate()
	}
}

// SetChannel selects input 0 or 1. Any nonzero value selects 1.
func (d *Driver) SetChannel(c Channel, recalibrate bool) {
	if c != Channel0 {
		c = Channel1
	}
	d.cfg.Channel = c
	d.proto.selectChannel(c)
	if recalibrate {
		d.SelfCalibrate()
	}
}

// SetCalFactor stores f if positive, otherwise 1.0.
func (d *Driver) SetCalFactor(f float64) {
	if f > 0 {
		d.calFactor = f
	} else {
		d.calFactor = 1.0
	}
}

// CalFactor returns the calibration factor.
func (d *Driver) CalFactor() float64 {
	return d.calFactor
}

// TareOffset returns the tare offset in raw counts.
func (d *Driver) TareOffset() int32 {
	return d.tareOffset
}

// LastRaw returns the most recent (possibly smoothed) raw value.
func (d *Driver) LastRaw() int32 {
	return d.lastValue
}

// SetSmoothing enables or disables the smoothing filter. Either way the window
// is refilled with a fresh reading.
func (d *Driver) SetSmoothing(enable bool) {
	d.smoothing = enable
	d.filter.Reset(d.proto.Acquire())
	d.seeded = true
}

// Smoothing reports whether the smoothing filter is enabled.
func (d *Driver) Smoothing() bool {
	return d.smoothing
}

// SetWindowSize resizes the smoothing window, clamped to [MinWindow, MaxWindow].
func (d *Driver) SetWindowSize(n int) {
	if ClampWindow(n) == d.filter.Size() {
		return
	}
	d.filter.Resize(n, d.proto.Acquire())
	d.seeded = true
	log.Printf("adc: smoothing window set to %d", d.filter.Size())
}

// WindowSize returns the smoothing window size.
func (d *Driver) WindowSize() int {
	return d.filter.Size()
}

// ActualSPS returns the measured read rate over the last full second.
func (d *Driver) ActualSPS() int {
	return d.actualSPS
}

// ReadRaw averages samples conversions. With smoothing enabled the average is
// pushed into the filter and the filtered value is returned.
func (d *Driver) ReadRaw(samples int) int32 {
	if samples < 1 {
		samples = 1
	}
	var sum int64
	for i := 0; i < samples; i++ {
		sum += int64(d.proto.Acquire())
	}
	d.lastValue = int32(sum / int64(samples))

	if d.smoothing {
		if !d.seeded {
			d.filter.Reset(d.lastValue)
			d.seeded = true
		}
		d.filter.Push(d.lastValue)
		d.lastValue = d.filter.Value()
	}

	d.trackRate()
	return d.lastValue
}

func (d *Driver) trackRate() {
	now := d.clk.Now()
	if d.rateStart.IsZero() {
		d.rateStart = now
	}
	d.rateReads++
	if elapsed := now.Sub(d.rateStart); elapsed > time.Second {
		d.actualSPS = int(int64(d.rateReads) * int64(time.Second) / int64(elapsed))
		d.rateReads = 0
		d.rateStart = now
	}
}

// ReadUnits returns (ReadRaw(samples) - tare offset) / calibration factor.
func (d *Driver) ReadUnits(samples int) float64 {
	units := float64(d.ReadRaw(samples)-d.tareOffset) / d.calFactor
	if units == 0 {
		// drops the sign of -0
		units = 0
	}
	return units
}

// Tare captures a new zero offset and reseeds the smoothing window with it.
// recalibrate only applies to TareFull.
func (d *Driver) Tare(mode TareMode, recalibrate bool) {
	switch mode {
	case TareRapid:
		d.tareOffset = d.lastValue
	case TareFull:
		if recalibrate {
			d.SelfCalibrate()
		}
		for i := 0; i < fullTareReads; i++ {
			d.tareOffset = d.ReadRaw(1)
		}
	default:
		d.tareOffset = d.ReadRaw(1)
	}
	if mode != TareRapid {
		log.Printf("adc: %s tare, offset %d", mode, d.tareOffset)
	}
	d.filter.Reset(d.tareOffset)
	d.seeded = true
}
