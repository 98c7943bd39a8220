//go:build !linux

package indicator

import "github.com/sweeney/scale-sensor/internal/gpio"

// RealLight is not available on non-Linux platforms.
type RealLight struct{}

// NewRealLight returns gpio.ErrUnsupported on non-Linux platforms.
func NewRealLight(p Pins) (*RealLight, error) {
	return nil, gpio.ErrUnsupported
}

func (l *RealLight) Set(c Color) {}

func (l *RealLight) Close() error { return nil }
