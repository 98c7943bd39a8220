//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives the converter from actual hardware using the Linux GPIO character device.
type RealPins struct {
	chip  *gpiocdev.Chip
	lines [numLines]*gpiocdev.Line

	errOnce sync.Once
}

// NewRealPins requests every wired line in p. DOUT is an input with pull-up,
// all other lines are outputs initialised low.
func NewRealPins(p Pinout) (*RealPins, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealPins{chip: chip}
	for l := Line(0); l < numLines; l++ {
		offset := p.offset(l)
		if offset <= 0 {
			continue
		}
		var line *gpiocdev.Line
		if l == LineDOUT {
			line, err = chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		} else {
			line, err = chip.RequestLine(offset, gpiocdev.AsOutput(0))
		}
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", l, offset, err)
		}
		r.lines[l] = line
	}
	return r, nil
}

// Set drives an output line. Errors are logged once; the read path has no
// error return and a failed write shows up as a readiness timeout.
func (r *RealPins) Set(line Line, high bool) {
	l := r.lines[line]
	if l == nil {
		return
	}
	v := 0
	if high {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		r.logOnce(fmt.Errorf("set %s: %w", line, err))
	}
}

// Get samples a line. A failed read reports high, which the protocol treats as not ready.
func (r *RealPins) Get(line Line) bool {
	l := r.lines[line]
	if l == nil {
		return false
	}
	v, err := l.Value()
	if err != nil {
		r.logOnce(fmt.Errorf("get %s: %w", line, err))
		return true
	}
	return v != 0
}

func (r *RealPins) logOnce(err error) {
	r.errOnce.Do(func() {
		log.Printf("gpio: %v (further errors suppressed)", err)
	})
}

// Close releases GPIO resources.
// Lines are reconfigured as inputs with pull-down before closing so the
// converter is not left clocked or powered by a floating output.
func (r *RealPins) Close() error {
	var errs []error

	for l := Line(0); l < numLines; l++ {
		line := r.lines[l]
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l, err))
		}
		r.lines[l] = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
