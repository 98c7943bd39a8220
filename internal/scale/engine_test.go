package scale

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/gpio"
)

const testZero = int32(52000)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *gpio.SimADC, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	sim := gpio.NewSimADC(clk)
	sim.SetLoad(testZero, 0)
	d := adc.NewDriver(adc.NewProtocol(sim, clk, gpio.NoCriticalSection{}), clk)
	d.Begin(adc.Channel1, adc.Gain128, adc.Speed10)
	require.Equal(t, testZero, d.TareOffset())
	return New(d, clk, cfg), sim, clk
}

// newRawEngine disables smoothing so every reading is the latest conversion.
func newRawEngine(t *testing.T, cfg Config) (*Engine, *gpio.SimADC, *clock.Fake) {
	t.Helper()
	e, sim, clk := newTestEngine(t, cfg)
	e.SetSmoothing(false)
	return e, sim, clk
}

func readN(e *Engine, n int) float64 {
	var v float64
	for i := 0; i < n; i++ {
		v = e.ReadUnits(1)
	}
	return v
}

func TestEngineReadUnits(t *testing.T) {
	e, sim, _ := newRawEngine(t, DefaultConfig())

	sim.SetLoad(testZero, 25)
	assert.Equal(t, 25.0, e.ReadUnits(1))
	assert.Equal(t, 25.0, e.Display())
}

func TestEngineRoundsToDecimals(t *testing.T) {
	e, sim, _ := newRawEngine(t, DefaultConfig())

	sim.SetLoad(testZero, 12.3456)
	assert.Equal(t, 12.35, e.ReadUnits(1))
}

func TestEngineZeroRange(t *testing.T) {
	e, sim, _ := newRawEngine(t, DefaultConfig())

	sim.SetLoad(testZero, 0.08)
	assert.Equal(t, 0.0, e.ReadUnits(1))

	sim.SetLoad(testZero, -0.05)
	v := e.ReadUnits(1)
	assert.Equal(t, 0.0, v)
	assert.False(t, math.Signbit(v), "no negative zero")
}

func TestEngineDisplayHold(t *testing.T) {
	e, sim, clk := newRawEngine(t, DefaultConfig())

	sim.SetLoad(testZero, 20)
	require.Equal(t, 20.0, e.ReadUnits(1))

	sim.SetLoad(testZero, 20.05)
	assert.Equal(t, 20.0, e.ReadUnits(1), "held inside the fake-stability range")

	start := clk.Now()
	for clk.Now().Sub(start) < 1200*time.Millisecond {
		e.ReadUnits(1)
	}
	assert.Equal(t, 20.05, e.ReadUnits(1), "hold expires")
}

func TestEngineAutoTare(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoTare = true
	e, sim, _ := newRawEngine(t, cfg)

	sim.SetLoad(testZero, 50)
	assert.Equal(t, 50.0, readN(e, 20), "not yet settled")
	assert.Equal(t, 0.0, e.ReadUnits(1), "tared on settle")
	assert.Equal(t, 50.0, e.LastTareWeight())
	assert.Equal(t, 0.0, readN(e, 10))

	// Only once per session.
	sim.SetLoad(testZero, 0)
	assert.Equal(t, -50.0, readN(e, 3))
}

func TestEngineAutoTareIgnoresLightLoads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoTare = true
	e, sim, _ := newRawEngine(t, cfg)

	sim.SetLoad(testZero, 5)
	assert.Equal(t, 5.0, readN(e, 30))
}

func TestEngineAutoTareNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoTareNegative = true
	e, sim, _ := newRawEngine(t, cfg)

	sim.SetLoad(testZero, -5)
	e.ReadUnits(1)
	assert.Equal(t, testZero-5*1400, e.Driver().TareOffset())
	assert.Equal(t, 0.0, e.ReadUnits(1))
}

func TestEngineZeroTracking(t *testing.T) {
	e, sim, _ := newRawEngine(t, DefaultConfig())

	require.Equal(t, 0.0, readN(e, 20))
	require.True(t, e.Settled())

	sim.SetLoad(testZero, 0.05)
	assert.Equal(t, 0.0, e.ReadUnits(1))
	assert.Equal(t, testZero+70, e.Driver().TareOffset(), "drift absorbed into the tare")
}

func TestEngineZeroWindowAfterTare(t *testing.T) {
	e, sim, clk := newRawEngine(t, DefaultConfig())

	e.Tare(adc.TareFull, false, false, false)
	sim.SetLoad(testZero, 0.5)
	assert.Equal(t, 0.0, e.ReadUnits(1), "absorbed inside the window")

	clk.Advance(2 * time.Second)
	sim.SetLoad(testZero, 1.5)
	assert.Equal(t, 1.0, e.ReadUnits(1))
}

func TestEngineTareSavesWeight(t *testing.T) {
	e, sim, _ := newRawEngine(t, DefaultConfig())

	sim.SetLoad(testZero, 30)
	readN(e, 3)
	e.Tare(adc.TareQuick, true, false, false)
	assert.Equal(t, 30.0, e.LastTareWeight())
	assert.Equal(t, 30.0, e.LastTareWeightRounded())
	assert.True(t, e.Settled(), "tare saturates the settle detector")
	assert.True(t, e.SettledQuick())
	assert.Zero(t, e.LastStableWeight())

	sim.SetLoad(testZero, 40)
	readN(e, 3)
	e.Tare(adc.TareQuick, false, true, false)
	assert.Equal(t, 30.0, e.LastTareWeight(), "not saved")
}

func TestEngineRateOfChange(t *testing.T) {
	e, sim, clk := newRawEngine(t, DefaultConfig())

	t0 := clk.Now()
	sim.SetLoadFunc(testZero, func(now time.Time) float64 {
		return 10 * now.Sub(t0).Seconds()
	})
	readN(e, 10)
	assert.InDelta(t, 10, e.RoC(), 0.5)

	sim.SetLoad(testZero, 3)
	readN(e, 5)
	assert.Zero(t, e.RoC())
}

func TestEngineSensitivity(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	tests := []struct {
		sensitivity int
		want        int
	}{
		{255, adc.MinWindow},
		{1, adc.MaxWindow},
		{2, 11},
		{0, adc.MaxWindow},
	}
	for _, tt := range tests {
		e.SetSensitivity(tt.sensitivity)
		assert.Equal(t, tt.want, e.Driver().WindowSize(), "sensitivity %d", tt.sensitivity)
	}
}

// placeLoad returns a load that appears after the warm-up and tare phase.
func placeLoad(clk *clock.Fake, units float64) func(time.Time) float64 {
	at := clk.Now().Add(5 * time.Second)
	return func(now time.Time) float64 {
		if now.Before(at) {
			return 0
		}
		return units
	}
}

func newCalibrationEngine(t *testing.T) (*Engine, *gpio.SimADC, *clock.Fake) {
	t.Helper()
	e, sim, clk := newTestEngine(t, DefaultConfig())
	e.SetSensitivity(255)
	e.SetSmoothing(true)
	e.SetSpeed(adc.Speed10)
	return e, sim, clk
}

func TestEngineCalibrateExactTarget(t *testing.T) {
	e, sim, clk := newCalibrationEngine(t)
	sim.SetLoadFunc(testZero, placeLoad(clk, 100))

	s := e.Calibrate(100, 120*time.Second, 0.05)

	assert.Equal(t, StageFinished, s.Stage)
	assert.Equal(t, StageFinished, e.CalibrationStatus())
	assert.Equal(t, adc.DefaultCalFactor, s.Factor)
	assert.Equal(t, adc.DefaultCalFactor, e.CalFactor())
	assert.False(t, e.Calibrating())

	assert.Equal(t, adc.Speed10, e.Driver().Speed(), "speed restored")
	assert.True(t, e.Driver().Smoothing(), "smoothing restored")
	assert.Equal(t, 0.1, e.stab.Diff())

	assert.InDelta(t, 100, e.ReadUnits(1), 0.05)
}

func TestEngineCalibrateConverges(t *testing.T) {
	e, sim, clk := newCalibrationEngine(t)
	e.SetCalFactor(1300)
	sim.SetLoadFunc(testZero, placeLoad(clk, 100))

	s := e.Calibrate(100, 120*time.Second, 0.05)

	require.Equal(t, StageFinished, s.Stage)
	assert.InDelta(t, gpio.SimCountsPerG, s.Factor, 0.2)
	assert.Equal(t, s.Factor, e.CalFactor())
}

func TestEngineCalibrateDeadline(t *testing.T) {
	e, sim, clk := newCalibrationEngine(t)
	sim.SetLoadFunc(testZero, placeLoad(clk, 500))

	s := e.Calibrate(100, 50*time.Millisecond, 0.05)

	assert.Equal(t, StageError, s.Stage)
	assert.Equal(t, StageError, e.CalibrationStatus())
	assert.Equal(t, adc.DefaultCalFactor, e.CalFactor(), "factor not committed")
	assert.False(t, e.Calibrating())

	e.Rehome(adc.Speed10, true)
	assert.Equal(t, 0.1, e.stab.Diff())
	assert.True(t, e.Driver().Smoothing())
}
