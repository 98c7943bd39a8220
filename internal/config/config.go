// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/gpio"
	"github.com/sweeney/scale-sensor/internal/indicator"
	"github.com/sweeney/scale-sensor/internal/mqtt"
	"github.com/sweeney/scale-sensor/internal/scale"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/scale-sensor.yaml"

// Config represents the daemon configuration.
type Config struct {
	GPIO        gpio.Pinout       `yaml:"gpio"`
	Indicator   indicator.Pins    `yaml:"indicator"`
	ADC         ADCConfig         `yaml:"adc"`
	Scale       scale.Config      `yaml:"scale"`
	Calibration CalibrationConfig `yaml:"calibration"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Loop        LoopConfig        `yaml:"loop"`
	Store       StoreConfig       `yaml:"store"`
	Log         LogConfig         `yaml:"log"`
}

// ADCConfig is the converter setup applied at boot.
type ADCConfig struct {
	Channel     int     `yaml:"channel"`
	Gain        int     `yaml:"gain"`
	Speed       int     `yaml:"speed"`
	Sensitivity int     `yaml:"sensitivity"` // 1 = widest smoothing window, 255 = narrowest
	Smoothing   bool    `yaml:"smoothing"`
	CalFactor   float64 `yaml:"cal_factor"` // used until a calibration is persisted
}

// CalibrationConfig controls externally requested calibrations.
type CalibrationConfig struct {
	Weight         float64       `yaml:"weight"` // reference mass when the request names none
	Timeout        time.Duration `yaml:"timeout"`
	Tolerance      float64       `yaml:"tolerance"`
	WarmupReads    int           `yaml:"warmup_reads"`
	WarmupInterval time.Duration `yaml:"warmup_interval"`
	Pause          time.Duration `yaml:"pause"` // settle time after a run

	Steps scale.CalibrationSteps `yaml:",inline"`
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string      `yaml:"broker"`
	ClientID   string      `yaml:"client_id"`
	Topics     mqtt.Topics `yaml:"topics"`
	BufferSize int         `yaml:"buffer_size"`
}

// HTTPConfig contains the status server settings. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoopConfig contains polling loop timing.
type LoopConfig struct {
	ReadInterval    time.Duration `yaml:"read_interval"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	Heartbeat       time.Duration `yaml:"heartbeat"` // 0 disables
	TareReads       int           `yaml:"tare_reads"`
}

// StoreConfig locates the persisted key-value file.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig toggles verbose logging.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns a configuration for the reference board.
func Default() *Config {
	return &Config{
		GPIO:      gpio.DefaultPinout,
		Indicator: indicator.Pins{Chip: gpio.DefaultPinout.Chip},
		ADC: ADCConfig{
			Channel:     int(adc.Channel1),
			Gain:        int(adc.Gain128),
			Speed:       int(adc.Speed10),
			Sensitivity: 255,
			Smoothing:   true,
			CalFactor:   adc.DefaultCalFactor,
		},
		Scale: scale.DefaultConfig(),
		Calibration: CalibrationConfig{
			Weight:         100,
			Timeout:        120 * time.Second,
			Tolerance:      0.05,
			WarmupReads:    20,
			WarmupInterval: 20 * time.Millisecond,
			Pause:          2 * time.Second,
			Steps:          scale.DefaultCalibrationSteps(),
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "scale-sensor",
			Topics:     mqtt.DefaultTopics(),
			BufferSize: 100,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Loop: LoopConfig{
			ReadInterval:    100 * time.Millisecond,
			PublishInterval: time.Second,
			Heartbeat:       15 * time.Minute,
			TareReads:       4,
		},
		Store: StoreConfig{Path: "/var/lib/scale-sensor/state.yaml"},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults replaces zero values that have no sensible meaning.
func (c *Config) ensureDefaults() {
	d := Default()

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = d.GPIO.Chip
	}
	if c.Indicator.Chip == "" {
		c.Indicator.Chip = c.GPIO.Chip
	}
	if c.ADC.Sensitivity <= 0 {
		c.ADC.Sensitivity = d.ADC.Sensitivity
	}
	if c.ADC.CalFactor <= 0 {
		c.ADC.CalFactor = d.ADC.CalFactor
	}
	if c.Scale.SlowMultiplier <= 0 {
		c.Scale.SlowMultiplier = d.Scale.SlowMultiplier
	}
	if c.Scale.QuickMultiplier <= 0 {
		c.Scale.QuickMultiplier = d.Scale.QuickMultiplier
	}
	if c.Scale.Decimals < 0 {
		c.Scale.Decimals = d.Scale.Decimals
	}
	if c.Calibration.Weight <= 0 {
		c.Calibration.Weight = d.Calibration.Weight
	}
	if c.Calibration.Timeout <= 0 {
		c.Calibration.Timeout = d.Calibration.Timeout
	}
	if c.Calibration.Tolerance <= 0 {
		c.Calibration.Tolerance = d.Calibration.Tolerance
	}
	if c.Calibration.Steps.CoarseStep <= 0 {
		c.Calibration.Steps.CoarseStep = d.Calibration.Steps.CoarseStep
	}
	if c.Calibration.Steps.FineStep <= 0 {
		c.Calibration.Steps.FineStep = d.Calibration.Steps.FineStep
	}
	if c.Calibration.Steps.FinalStep <= 0 {
		c.Calibration.Steps.FinalStep = d.Calibration.Steps.FinalStep
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.BufferSize <= 0 {
		c.MQTT.BufferSize = d.MQTT.BufferSize
	}
	t, dt := &c.MQTT.Topics, d.MQTT.Topics
	for _, p := range []struct {
		dst *string
		def string
	}{
		{&t.Weight, dt.Weight},
		{&t.Events, dt.Events},
		{&t.System, dt.System},
		{&t.Tare, dt.Tare},
		{&t.Calibrate, dt.Calibrate},
	} {
		if *p.dst == "" {
			*p.dst = p.def
		}
	}
	if c.Loop.ReadInterval <= 0 {
		c.Loop.ReadInterval = d.Loop.ReadInterval
	}
	if c.Loop.TareReads < 0 {
		c.Loop.TareReads = 0
	}
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}
}

// Validate checks settings the daemon cannot run without. Pin wiring is only
// checked when real hardware will be used.
func (c *Config) Validate(hardware bool) error {
	var errs []error
	if hardware {
		if err := c.GPIO.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch adc.Gain(c.ADC.Gain) {
	case adc.Gain1, adc.Gain2, adc.Gain64, adc.Gain128:
	default:
		errs = append(errs, fmt.Errorf("adc.gain %d: must be 1, 2, 64 or 128", c.ADC.Gain))
	}
	if s := adc.Speed(c.ADC.Speed); s != adc.Speed10 && s != adc.Speed80 {
		errs = append(errs, fmt.Errorf("adc.speed %d: must be 10 or 80", c.ADC.Speed))
	}
	if c.ADC.Channel != 0 && c.ADC.Channel != 1 {
		errs = append(errs, fmt.Errorf("adc.channel %d: must be 0 or 1", c.ADC.Channel))
	}
	if c.Scale.StableDiff < 0 {
		errs = append(errs, fmt.Errorf("scale.stable_diff %v: must not be negative", c.Scale.StableDiff))
	}
	return errors.Join(errs...)
}

// ScaleConfig returns the engine configuration with the calibration search
// constants folded in.
func (c *Config) ScaleConfig() scale.Config {
	sc := c.Scale
	sc.Calibration = c.Calibration.Steps
	return sc
}
