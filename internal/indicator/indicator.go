// Package indicator drives the status light that brackets long operations:
// green while booting, blue during a tare, red during a calibration.
package indicator

import "fmt"

// Color is a light state.
type Color int

const (
	Off Color = iota
	Red
	Green
	Blue
	White
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// rgb returns the channel levels for c.
func (c Color) rgb() (r, g, b bool) {
	switch c {
	case Red:
		return true, false, false
	case Green:
		return false, true, false
	case Blue:
		return false, false, true
	case White:
		return true, true, true
	}
	return false, false, false
}

// Light shows one color at a time.
type Light interface {
	Set(c Color)
	Close() error
}

// Pins maps the RGB channels to BCM offsets. 0 means not wired.
type Pins struct {
	Chip  string `yaml:"chip"`
	Red   int    `yaml:"red"`
	Green int    `yaml:"green"`
	Blue  int    `yaml:"blue"`
}

// Wired reports whether any channel is connected.
func (p Pins) Wired() bool {
	return p.Red > 0 || p.Green > 0 || p.Blue > 0
}

// While shows c for the duration of fn and turns the light off afterwards.
func While(l Light, c Color, fn func()) {
	l.Set(c)
	defer l.Set(Off)
	fn()
}

// Nop is a Light with nothing attached.
type Nop struct{}

func (Nop) Set(Color)    {}
func (Nop) Close() error { return nil }
