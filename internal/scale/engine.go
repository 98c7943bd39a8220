// Package scale turns smoothed converter readings into a display weight.
// It implements settle detection, auto-tare, zero tracking, display hold
// and the multi-stage calibration-factor search.
package scale

import (
	"log"
	"math"
	"time"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/clock"
)

// Config holds the engine tuning knobs.
type Config struct {
	StableDiff      float64 `yaml:"stable_diff"`
	SlowMultiplier  float64 `yaml:"slow_multiplier"`
	QuickMultiplier float64 `yaml:"quick_multiplier"`

	// FakeRange and FakeHold control the display hold: a reading within
	// FakeRange of the held value is suppressed for up to FakeHold.
	FakeRange float64       `yaml:"fake_range"`
	FakeHold  time.Duration `yaml:"fake_hold"`

	ZeroTracking float64       `yaml:"zero_tracking"`
	ZeroRange    float64       `yaml:"zero_range"`
	ZeroWindow   time.Duration `yaml:"zero_window"`
	Decimals     int           `yaml:"decimals"`

	AutoTare          bool    `yaml:"auto_tare"`
	AutoTareNegative  bool    `yaml:"auto_tare_negative"`
	AutoTareMinWeight float64 `yaml:"auto_tare_min_weight"`

	Calibration CalibrationSteps `yaml:"-"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		StableDiff:        0.1,
		SlowMultiplier:    2,
		QuickMultiplier:   0.5,
		FakeRange:         0.1,
		FakeHold:          time.Second,
		ZeroTracking:      0.1,
		ZeroRange:         0.1,
		ZeroWindow:        time.Second,
		Decimals:          2,
		AutoTareMinWeight: 10,
		Calibration:       DefaultCalibrationSteps(),
	}
}

// Engine owns one Driver and everything derived from its readings.
type Engine struct {
	adc  *adc.Driver
	clk  clock.Clock
	cfg  Config
	stab *Stability

	calibrating  bool
	autoTareUsed bool
	status       Stage

	lastTareWeight float64
	zeroUntil      time.Time

	held        float64
	heldRefresh time.Time

	display float64
	roc     float64
	rocAt   time.Time

	// Debug enables per-iteration calibration logging.
	Debug bool
}

// New creates an Engine around d.
func New(d *adc.Driver, clk clock.Clock, cfg Config) *Engine {
	return &Engine{
		adc: d,
		clk: clk,
		cfg: cfg,
		stab: NewStability(StabilityConfig{
			Diff:            cfg.StableDiff,
			SlowMultiplier:  cfg.SlowMultiplier,
			QuickMultiplier: cfg.QuickMultiplier,
			FarOffset:       2 * cfg.FakeRange,
		}),
		status: StageIdle,
	}
}

// Driver returns the owned converter driver.
func (e *Engine) Driver() *adc.Driver {
	return e.adc
}

// ReadUnits takes one reading (the mean of samples conversions) and returns
// the processed display weight.
func (e *Engine) ReadUnits(samples int) float64 {
	_, display := e.measure(samples)
	return display
}

// measure returns the true weight after tare handling and the display weight
// after hold, zero tracking and rounding.
func (e *Engine) measure(samples int) (truth, display float64) {
	if samples < 1 {
		samples = 1
	}
	units := e.adc.ReadUnits(samples)
	abs := math.Abs(units)
	now := e.clk.Now()

	e.stab.Update(units, int(e.adc.Speed()))

	if e.cfg.AutoTare && !e.calibrating && !e.autoTareUsed &&
		abs > e.cfg.AutoTareMinWeight && e.stab.Settled() {
		log.Printf("scale: auto-tare at %.2f", units)
		e.Tare(adc.TareQuick, true, true, false)
		e.autoTareUsed = true
		units, abs = 0, 0
	}

	if e.cfg.AutoTareNegative && units < 0 {
		e.Tare(adc.TareQuick, false, true, false)
	}

	display = units
	if e.cfg.FakeRange > 0 {
		if math.Abs(abs-math.Abs(e.held)) <= e.cfg.FakeRange && now.Sub(e.heldRefresh) < e.cfg.FakeHold {
			display = e.held
		} else {
			e.held = units
			e.heldRefresh = now
		}
	}

	e.stab.Rebase(units)

	track := false
	if !e.calibrating && e.stab.Settled() && abs > 0 && abs < e.cfg.ZeroTracking {
		track = true
	} else if now.Before(e.zeroUntil) {
		track = true
	}
	if track {
		e.Tare(adc.TareRapid, false, true, false)
		units, display = 0, 0
	}

	if math.Abs(display) <= e.cfg.ZeroRange {
		display = 0
	}
	display = round(display, e.cfg.Decimals)

	if !e.rocAt.IsZero() {
		if dt := now.Sub(e.rocAt); dt > 0 {
			e.roc = (display - e.display) / dt.Seconds()
			if math.Abs(e.roc) <= e.cfg.ZeroRange {
				e.roc = 0
			}
		}
	}
	e.rocAt = now
	e.display = display

	return units, display
}

// round rounds to the given number of decimals and never returns -0.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// Tare zeroes the scale. saveWeight records the weight being removed,
// autoTare suppresses the post-tare zero-tracking window and recalibrate runs
// the converter's offset calibration first on a full tare.
func (e *Engine) Tare(mode adc.TareMode, saveWeight, autoTare, recalibrate bool) {
	if last := e.stab.Last(); saveWeight && last > 0 {
		e.lastTareWeight = last
	}

	e.adc.Tare(mode, recalibrate)
	e.stab.Saturate()

	if !autoTare {
		e.zeroUntil = e.clk.Now().Add(e.cfg.ZeroWindow)
	}
}

// Calibrate runs the factor search against a reference mass of target units
// and blocks until it finishes or maxDuration elapses. On success the new
// factor is active; on error nothing is restored, see Rehome.
func (e *Engine) Calibrate(target float64, maxDuration time.Duration, tolerance float64) Session {
	steps := e.cfg.Calibration
	s := NewSession(target, maxDuration, tolerance, e.adc.CalFactor(), steps)
	e.calibrating = true
	e.status = s.Stage

	log.Printf("scale: calibrating to %.2f (tolerance %.3f, max %s)", target, tolerance, maxDuration)

	warm := e.clk.Now().Add(steps.Warmup)
	for e.clk.Now().Before(warm) {
		e.adc.ReadUnits(1)
	}
	for i := 0; i < steps.WarmupTares; i++ {
		e.Tare(adc.TareQuick, false, true, true)
		e.clk.Sleep(steps.TareGap)
	}

	savedSpeed := e.adc.Speed()
	savedSmoothing := e.adc.Smoothing()
	savedDiff := e.stab.Diff()

	start := e.clk.Now()
	for !s.Stage.Terminal() {
		var r Reading
		if s.Stage != StageStart {
			r.Weight, _ = e.measure(1)
			r.Settled = e.stab.Settled()
		}
		r.Elapsed = e.clk.Now().Sub(start)

		a := s.Advance(r)
		e.status = a.Stage

		if a.Adjusted {
			e.adc.SetCalFactor(a.Factor)
			if e.Debug {
				log.Printf("scale: %s weight=%.3f factor=%.2f", a.Stage, r.Weight, a.Factor)
			}
		}
		if a.ResetSettle {
			e.stab.Reset()
		}
		if !a.Entered {
			continue
		}

		log.Printf("scale: calibration %s after %s", a.Stage, r.Elapsed.Round(time.Millisecond))
		switch a.Stage {
		case StagePlace:
			e.stab.SetDiff(steps.PlaceDiff)
		case StageCoarse:
			e.adc.SetSmoothing(false)
			e.adc.SetSpeed(adc.Speed80, true)
		case StageFinal:
			e.stab.SetDiff(savedDiff)
			e.adc.SetSpeed(adc.Speed10, true)
		case StageFinished:
			e.adc.SetSpeed(savedSpeed, true)
			e.adc.SetSmoothing(savedSmoothing)
			e.calibrating = false
			e.autoTareUsed = true
			log.Printf("scale: calibration factor %.2f", s.Factor)
		case StageError:
			e.calibrating = false
			log.Printf("scale: calibration failed in %d iterations, factor %.2f", s.Iterations, s.Factor)
		}
	}
	return *s
}

// Rehome puts the engine back into normal operation after a failed calibration.
func (e *Engine) Rehome(speed adc.Speed, smoothing bool) {
	e.calibrating = false
	e.stab.SetDiff(e.cfg.StableDiff)
	e.adc.SetSpeed(speed, true)
	e.adc.SetSmoothing(smoothing)
}

// SetSensitivity maps 1..255 onto the smoothing window: 1 is the widest
// window, higher values shrink it. Values below 1 are treated as 1.
func (e *Engine) SetSensitivity(s int) {
	if s < 1 {
		s = 1
	}
	e.adc.SetWindowSize(adc.MaxWindow / s)
}

// SetSmoothing enables or disables the median-trimmed moving average.
func (e *Engine) SetSmoothing(on bool) {
	e.adc.SetSmoothing(on)
}

// SetSpeed selects the data rate and runs an offset self-calibration.
func (e *Engine) SetSpeed(s adc.Speed) {
	e.adc.SetSpeed(s, true)
}

// CalibrationStatus returns the stage of the most recent calibration.
func (e *Engine) CalibrationStatus() Stage {
	return e.status
}

// Calibrating reports whether a calibration session is running.
func (e *Engine) Calibrating() bool {
	return e.calibrating
}

// Settled reports the slow settle flag.
func (e *Engine) Settled() bool             { return e.stab.Settled() }
func (e *Engine) SettledQuick() bool        { return e.stab.SettledQuick() }
func (e *Engine) LastStableWeight() float64 { return e.stab.LastStable() }

// RoC is the display rate of change in units per second.
func (e *Engine) RoC() float64           { return e.roc }
func (e *Engine) Display() float64       { return e.display }
func (e *Engine) ActualSPS() int         { return e.adc.ActualSPS() }
func (e *Engine) CalFactor() float64     { return e.adc.CalFactor() }
func (e *Engine) SetCalFactor(f float64) { e.adc.SetCalFactor(f) }

// LastTareWeight returns the weight removed by the last saving tare.
func (e *Engine) LastTareWeight() float64 {
	return e.lastTareWeight
}

// LastTareWeightRounded is LastTareWeight at display precision.
func (e *Engine) LastTareWeightRounded() float64 {
	return round(e.lastTareWeight, e.cfg.Decimals)
}
