// Package gpio provides the pin-level hardware abstraction used by the ADC driver.
// The real implementation uses the Linux GPIO character device.
// The fake implementation simulates an ADS1232-class converter so that the
// protocol can be exercised without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by NewRealPins on platforms without GPIO support.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Line names a logical signal wired between the host and the converter.
type Line int

const (
	LinePDWN  Line = iota // power-down, active low
	LineSCLK              // serial clock
	LineDOUT              // data out / data ready (input)
	LineA0                // channel select
	LineSpeed             // LOW = 10SPS, HIGH = 80SPS
	LineGain1             // gain select MSB
	LineGain0             // gain select LSB
	LineTemp              // internal temperature diode select
	LineLDO               // analog supply enable

	numLines
)

var lineNames = [numLines]string{"PDWN", "SCLK", "DOUT", "A0", "SPEED", "GAIN1", "GAIN0", "TEMP", "LDO"}

func (l Line) String() string {
	if l < 0 || l >= numLines {
		return fmt.Sprintf("Line(%d)", int(l))
	}
	return lineNames[l]
}

// Pins drives output lines and samples input lines.
// Writes to lines that are not wired are ignored; reads of unwired lines return false.
type Pins interface {
	// Set drives an output line high (true) or low (false).
	Set(line Line, high bool)

	// Get samples the level of a line.
	Get(line Line) bool

	// Close releases GPIO resources.
	Close() error
}

// Pinout maps logical lines to BCM offsets on a GPIO chip.
// An offset of 0 means the line is not wired.
type Pinout struct {
	Chip  string `yaml:"chip"`
	PDWN  int    `yaml:"pdwn"`
	SCLK  int    `yaml:"sclk"`
	DOUT  int    `yaml:"dout"`
	A0    int    `yaml:"a0"`
	Speed int    `yaml:"speed"`
	Gain1 int    `yaml:"gain1"`
	Gain0 int    `yaml:"gain0"`
	Temp  int    `yaml:"temp"`
	LDO   int    `yaml:"ldo"`
}

// DefaultPinout is the wiring of the reference board (BCM numbering).
var DefaultPinout = Pinout{
	Chip:  "gpiochip0",
	PDWN:  5,
	SCLK:  18,
	DOUT:  19,
	A0:    27,
	Speed: 22,
	Gain1: 17,
	Gain0: 16,
	Temp:  0,
	LDO:   21,
}

// offset returns the BCM offset configured for line.
func (p Pinout) offset(line Line) int {
	switch line {
	case LinePDWN:
		return p.PDWN
	case LineSCLK:
		return p.SCLK
	case LineDOUT:
		return p.DOUT
	case LineA0:
		return p.A0
	case LineSpeed:
		return p.Speed
	case LineGain1:
		return p.Gain1
	case LineGain0:
		return p.Gain0
	case LineTemp:
		return p.Temp
	case LineLDO:
		return p.LDO
	}
	return 0
}

// Validate checks that the mandatory protocol lines are wired.
func (p Pinout) Validate() error {
	for _, l := range []Line{LinePDWN, LineSCLK, LineDOUT} {
		if p.offset(l) <= 0 {
			return fmt.Errorf("gpio: %s pin not configured", l)
		}
	}
	return nil
}
