package adc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/gpio"
)

const testZero = int32(52000)

func newTestDriver(t *testing.T) (*Driver, *gpio.SimADC, *clock.Fake) {
	t.Helper()
	p, sim, clk := newTestProtocol(t)
	d := NewDriver(p, clk)
	require.True(t, d.PowerOn())
	// Drive the select lines to the configuration the driver reports.
	cfg := d.Config()
	d.SetChannel(cfg.Channel, false)
	d.SetGain(cfg.Gain, false)
	d.SetSpeed(cfg.Speed, false)
	sim.SetLoad(testZero, 0)
	return d, sim, clk
}

func TestDriverConfigRoundTrip(t *testing.T) {
	d, sim, _ := newTestDriver(t)

	for _, s := range []Speed{Speed10, Speed80} {
		d.SetSpeed(s, false)
		assert.Equal(t, s, d.Speed())
		assert.Equal(t, s, d.Config().Speed)
		assert.Equal(t, s == Speed80, sim.Level(gpio.LineSpeed))
	}

	gainPins := map[Gain][2]bool{
		Gain1:   {false, false},
		Gain2:   {false, true},
		Gain64:  {true, false},
		Gain128: {true, true},
	}
	for g, pins := range gainPins {
		d.SetGain(g, false)
		assert.Equal(t, g, d.Config().Gain)
		assert.Equal(t, pins[0], sim.Level(gpio.LineGain1), "GAIN1 for %d", g)
		assert.Equal(t, pins[1], sim.Level(gpio.LineGain0), "GAIN0 for %d", g)
	}

	for _, c := range []Channel{Channel0, Channel1} {
		d.SetChannel(c, false)
		assert.Equal(t, c, d.Config().Channel)
		assert.Equal(t, c == Channel1, sim.Level(gpio.LineA0))
	}
}

func TestDriverConfigNormalisesInvalidValues(t *testing.T) {
	d, _, _ := newTestDriver(t)

	d.SetSpeed(Speed(40), false)
	assert.Equal(t, Speed10, d.Speed())

	d.SetGain(Gain(3), false)
	assert.Equal(t, Gain128, d.Config().Gain)

	d.SetChannel(Channel(7), false)
	assert.Equal(t, Channel1, d.Config().Channel)
}

func TestDriverSettersRecalibrateOnRequest(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	base := sim.SelfCalibrations

	d.SetSpeed(Speed80, false)
	d.SetGain(Gain64, false)
	d.SetChannel(Channel1, false)
	assert.Equal(t, base, sim.SelfCalibrations)

	d.SetSpeed(Speed10, true)
	d.SetGain(Gain128, true)
	d.SetChannel(Channel0, true)
	assert.Equal(t, base+3, sim.SelfCalibrations)
}

func TestDriverSetCalFactor(t *testing.T) {
	d, _, _ := newTestDriver(t)
	assert.Equal(t, DefaultCalFactor, d.CalFactor())

	d.SetCalFactor(0)
	assert.Equal(t, 1.0, d.CalFactor())

	d.SetCalFactor(-5)
	assert.Equal(t, 1.0, d.CalFactor())

	d.SetCalFactor(250.0)
	assert.Equal(t, 250.0, d.CalFactor())
}

func TestDriverQuickTareZeroesReading(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	sim.SetLoad(testZero, 37.5)

	d.Tare(TareQuick, false)
	u := d.ReadUnits(1)
	assert.Less(t, math.Abs(u), 0.005)
	assert.Equal(t, d.TareOffset(), d.LastRaw())
}

func TestDriverReadUnitsConvertsLoad(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	require.Equal(t, Gain128, d.Config().Gain)
	require.True(t, sim.Level(gpio.LineGain1) && sim.Level(gpio.LineGain0), "gain lines must select 128")
	d.SetCalFactor(gpio.SimCountsPerG)
	d.Tare(TareQuick, false)

	sim.SetLoad(testZero, 100)
	var u float64
	for i := 0; i < MaxWindow; i++ {
		u = d.ReadUnits(1)
	}
	assert.InDelta(t, 100.0, u, 1e-9)
}

func TestDriverReadUnitsNeverReturnsNegativeZero(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.Tare(TareQuick, false)
	u := d.ReadUnits(1)
	assert.Equal(t, 0.0, u)
	assert.False(t, math.Signbit(u))
}

func TestDriverFullTareKeepsFourthReading(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.smoothing = false

	next := int32(1000)
	sim.SetSource(func(time.Time) int32 {
		next++
		return next
	})

	d.Tare(TareFull, false)
	assert.Equal(t, int32(1004), d.TareOffset())
}

func TestDriverFullTareRecalibrates(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	base := sim.SelfCalibrations

	d.Tare(TareFull, true)
	assert.Equal(t, base+1, sim.SelfCalibrations)

	d.Tare(TareFull, false)
	assert.Equal(t, base+1, sim.SelfCalibrations)
}

func TestDriverRapidTareReusesLastValue(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.smoothing = false

	sim.SetCode(7777)
	d.ReadRaw(1)
	sim.SetCode(9999)
	conversions := sim.Conversions

	d.Tare(TareRapid, false)
	assert.Equal(t, int32(7777), d.TareOffset())
	assert.Equal(t, conversions, sim.Conversions, "rapid tare must not touch the converter")
}

func TestDriverTareReseedsSmoothing(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.SetWindowSize(10)

	sim.SetCode(200000)
	for i := 0; i < 10; i++ {
		d.ReadRaw(1)
	}
	sim.SetCode(1000)
	d.Tare(TareFull, false)

	for i := 0; i < d.WindowSize(); i++ {
		assert.Equal(t, d.TareOffset(), d.filter.slots[i])
	}
}

func TestDriverReadRawAveragesWithoutSmoothing(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.SetSmoothing(false)

	codes := []int32{100, 200, 300, 400}
	i := 0
	sim.SetSource(func(time.Time) int32 {
		c := codes[i%len(codes)]
		i++
		return c
	})
	assert.Equal(t, int32(250), d.ReadRaw(4))
	assert.Equal(t, int32(100), d.ReadRaw(0), "samples below one read once")
}

func TestDriverSmoothingSuppressesSpikes(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.SetSmoothing(true)

	sim.SetCode(5000)
	for i := 0; i < MinWindow; i++ {
		d.ReadRaw(1)
	}
	sim.SetCode(900000)
	assert.Equal(t, int32(5000), d.ReadRaw(1), "a single spike is rejected as the window maximum")
}

func TestDriverWindowSize(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.SetWindowSize(1)
	assert.Equal(t, MinWindow, d.WindowSize())
	d.SetWindowSize(1000)
	assert.Equal(t, MaxWindow, d.WindowSize())
}

func TestDriverActualSPS(t *testing.T) {
	d, _, _ := newTestDriver(t)
	d.SetSpeed(Speed10, false)

	for i := 0; i < 25; i++ {
		d.ReadRaw(1)
	}
	assert.InDelta(t, 10, d.ActualSPS(), 1)

	d.SetSpeed(Speed80, false)
	for i := 0; i < 200; i++ {
		d.ReadRaw(1)
	}
	assert.InDelta(t, 80, d.ActualSPS(), 2)
}

func TestDriverBegin(t *testing.T) {
	p, sim, clk := newTestProtocol(t)
	sim.SetLoad(testZero, 12)
	d := NewDriver(p, clk)

	d.Begin(Channel1, Gain64, Speed10)
	cfg := d.Config()
	assert.True(t, cfg.Powered)
	assert.Equal(t, Channel1, cfg.Channel)
	assert.Equal(t, Gain64, cfg.Gain)
	assert.Equal(t, Speed10, cfg.Speed)
	assert.False(t, sim.Level(gpio.LineTemp))
	assert.NotZero(t, d.TareOffset())
}

func TestDriverPowerOff(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	d.PowerOff()
	assert.False(t, d.Config().Powered)
	assert.False(t, sim.Powered())
}

func TestParseTareMode(t *testing.T) {
	for _, m := range []TareMode{TareQuick, TareRapid, TareFull} {
		got, err := ParseTareMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseTareMode("slow")
	assert.Error(t, err)
}

func TestNoise(t *testing.T) {
	s := Noise([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, s.N)
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.138, s.StdDev, 1e-3)
	assert.Equal(t, 7.0, s.PeakToPeak())

	assert.Equal(t, NoiseStats{}, Noise(nil))
	assert.Equal(t, 0.0, Noise([]float64{3}).StdDev)
}

func TestDriverCollect(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	sim.SetCode(-1234)
	samples := d.Collect(5)
	require.Len(t, samples, 5)
	for _, s := range samples {
		assert.Equal(t, -1234.0, s)
	}
}
