//go:build linux

package indicator

import (
	"fmt"
	"log"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealLight drives a common-cathode RGB LED from three GPIO outputs.
type RealLight struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines [3]*gpiocdev.Line
	color Color
}

// NewRealLight requests the wired channels of p as outputs, initially off.
func NewRealLight(p Pins) (*RealLight, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	l := &RealLight{chip: chip}
	for i, offset := range []int{p.Red, p.Green, p.Blue} {
		if offset <= 0 {
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("request indicator pin %d: %w", offset, err)
		}
		l.lines[i] = line
	}
	return l, nil
}

// Set shows c.
func (l *RealLight) Set(c Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c == l.color {
		return
	}
	r, g, b := c.rgb()
	for i, on := range []bool{r, g, b} {
		if l.lines[i] == nil {
			continue
		}
		v := 0
		if on {
			v = 1
		}
		if err := l.lines[i].SetValue(v); err != nil {
			log.Printf("indicator: set %s: %v", c, err)
			return
		}
	}
	l.color = c
}

// Close turns the light off and releases the lines.
func (l *RealLight) Close() error {
	l.Set(Off)
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for i, line := range l.lines {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
		l.lines[i] = nil
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, err)
		}
		l.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close indicator: %v", errs)
	}
	return nil
}
