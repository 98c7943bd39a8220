package main

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/config"
	"github.com/sweeney/scale-sensor/internal/gpio"
	"github.com/sweeney/scale-sensor/internal/indicator"
	"github.com/sweeney/scale-sensor/internal/scale"
	"github.com/sweeney/scale-sensor/internal/store"
)

// Simulated converter: zero-load code and per-reading noise in grams.
const (
	simZero  int32 = 52000
	simNoise       = 0.02
)

// device is everything that sits between the pins and the weight engine.
type device struct {
	pins   gpio.Pins
	sim    *gpio.SimADC // nil on hardware
	clk    clock.Clock
	driver *adc.Driver
	engine *scale.Engine
	light  indicator.Light
	store  store.Store
}

func newDevice(pins gpio.Pins, clk clock.Clock, critical sync.Locker, st store.Store, light indicator.Light, cfg *config.Config) *device {
	driver := adc.NewDriver(adc.NewProtocol(pins, clk, critical), clk)
	driver.SetCalFactor(cfg.ADC.CalFactor)
	engine := scale.New(driver, clk, cfg.ScaleConfig())
	engine.Debug = cfg.Log.Debug
	return &device{
		pins:   pins,
		clk:    clk,
		driver: driver,
		engine: engine,
		light:  light,
		store:  st,
	}
}

// openDevice wires either the GPIO hardware or the simulated converter.
func openDevice(cfg *config.Config, sim bool) (*device, error) {
	if sim {
		clk := clock.NewReal()
		s := gpio.NewSimADC(clk)
		s.SetLoadFunc(simZero, func(time.Time) float64 {
			return rand.NormFloat64() * simNoise
		})
		dev := newDevice(s, clk, gpio.NoCriticalSection{}, store.NewMemStore(), indicator.Nop{}, cfg)
		dev.sim = s
		log.Printf("device: using simulated converter")
		return dev, nil
	}

	pins, err := gpio.NewRealPins(cfg.GPIO)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	st, err := store.OpenFile(cfg.Store.Path)
	if err != nil {
		pins.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	var light indicator.Light = indicator.Nop{}
	if cfg.Indicator.Wired() {
		l, err := indicator.NewRealLight(cfg.Indicator)
		if err != nil {
			log.Printf("device: indicator disabled: %v", err)
		} else {
			light = l
		}
	}

	return newDevice(pins, clock.NewReal(), gpio.NewCriticalSection(), st, light, cfg), nil
}

// boot powers the converter, restores the stored calibration and takes a
// full tare, showing green while it runs.
func boot(dev *device, cfg *config.Config) {
	indicator.While(dev.light, indicator.Green, func() {
		dev.pins.Set(gpio.LineLDO, true)
		dev.driver.Begin(adc.Channel(cfg.ADC.Channel), adc.Gain(cfg.ADC.Gain), adc.Speed(cfg.ADC.Speed))

		factor, ok, err := store.RestoreCalFactor(dev.store)
		switch {
		case err != nil:
			log.Printf("boot: restore calibration: %v", err)
		case ok:
			dev.engine.SetCalFactor(factor)
			log.Printf("boot: restored calibration factor %.4f", factor)
		default:
			log.Printf("boot: no valid stored calibration, using %.2f", dev.engine.CalFactor())
		}

		dev.engine.SetSensitivity(cfg.ADC.Sensitivity)
		dev.engine.SetSmoothing(cfg.ADC.Smoothing)
		dev.engine.SetSpeed(adc.Speed(cfg.ADC.Speed))
		dev.engine.Tare(adc.TareFull, false, true, true)
	})
}

// Close powers the converter down and releases hardware.
func (d *device) Close() error {
	d.driver.PowerOff()
	d.pins.Set(gpio.LineLDO, false)
	d.light.Close()
	return d.pins.Close()
}
