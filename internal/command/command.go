// Package command carries external requests (tare, calibrate) from the
// messaging and web surfaces into the polling loop, which is the only
// goroutine allowed to touch the scale.
package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultWeight is the reference mass used when a calibrate request does not
// name one.
const DefaultWeight = 100.0

// Kind identifies a command.
type Kind string

const (
	KindTare      Kind = "TARE"
	KindCalibrate Kind = "CALIBRATE"
)

// Source records where a command came from, for logging.
type Source string

const (
	SourceMQTT Source = "mqtt"
	SourceHTTP Source = "http"
)

// Command is a single request for the polling loop.
type Command struct {
	Kind   Kind
	Weight float64 // calibrate only
	Source Source
}

func (c Command) String() string {
	if c.Kind == KindCalibrate {
		return fmt.Sprintf("%s(%.2f) from %s", c.Kind, c.Weight, c.Source)
	}
	return fmt.Sprintf("%s from %s", c.Kind, c.Source)
}

// Tare returns a tare command.
func Tare(src Source) Command {
	return Command{Kind: KindTare, Source: src}
}

// Calibrate returns a calibrate command for the given reference weight.
// Non-positive weights fall back to def.
func Calibrate(weight, def float64, src Source) Command {
	if !(weight > 0) {
		weight = def
	}
	return Command{Kind: KindCalibrate, Weight: weight, Source: src}
}

// ParseWeight interprets a calibrate payload as a weight in grams.
// Empty, non-numeric and non-positive payloads yield def.
func ParseWeight(payload string, def float64) float64 {
	s := strings.TrimSpace(payload)
	if s == "" {
		return def
	}
	w, err := strconv.ParseFloat(s, 64)
	if err != nil || !(w > 0) || math.IsInf(w, 0) {
		return def
	}
	return w
}
