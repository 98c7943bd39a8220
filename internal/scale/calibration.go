package scale

import (
	"fmt"
	"math"
	"time"
)

// Stage is a calibration state.
type Stage int

const (
	StageIdle Stage = iota
	StageStart
	StagePlace
	StageCoarse
	StageFine
	StageFinal
	StageFinished
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageStart:
		return "START"
	case StagePlace:
		return "PLACE"
	case StageCoarse:
		return "STAGE_1"
	case StageFine:
		return "STAGE_2"
	case StageFinal:
		return "STAGE_3"
	case StageFinished:
		return "FINISHED"
	case StageError:
		return "ERROR"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether a session in this stage has ended.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageError
}

// Active reports whether a session in this stage is still running.
func (s Stage) Active() bool {
	return s != StageIdle && !s.Terminal()
}

// CalibrationSteps holds the fixed constants of the convergence search.
type CalibrationSteps struct {
	Warmup      time.Duration `yaml:"warmup"`
	WarmupTares int           `yaml:"warmup_tares"`
	TareGap     time.Duration `yaml:"tare_gap"`
	PlaceFloor  float64       `yaml:"place_floor"`
	PlaceDiff   float64       `yaml:"place_diff"`
	CoarseStep  float64       `yaml:"coarse_step"`
	CoarseBand  float64       `yaml:"coarse_band"`
	FineStep    float64       `yaml:"fine_step"`
	FineBand    float64       `yaml:"fine_band"`
	FinalStep   float64       `yaml:"final_step"`
}

// DefaultCalibrationSteps returns the stock search constants.
func DefaultCalibrationSteps() CalibrationSteps {
	return CalibrationSteps{
		Warmup:      time.Second,
		WarmupTares: 5,
		TareGap:     100 * time.Millisecond,
		PlaceFloor:  10,
		PlaceDiff:   1.0,
		CoarseStep:  50,
		CoarseBand:  0.05,
		FineStep:    5,
		FineBand:    0.01,
		FinalStep:   0.1,
	}
}

// Reading is what a session observes on each iteration.
type Reading struct {
	Weight  float64
	Settled bool
	Elapsed time.Duration
}

// Action tells the caller what changed after one Advance.
type Action struct {
	Stage       Stage
	Entered     bool
	Adjusted    bool
	Factor      float64
	ResetSettle bool
}

// Session is one calibration run. It is a pure state machine: the caller
// takes readings, feeds them to Advance and applies the returned Action to the
// hardware.
type Session struct {
	Target      float64
	MaxDuration time.Duration
	Tolerance   float64

	Stage      Stage
	Factor     float64
	Iterations int

	steps CalibrationSteps

	above, below bool
	adjusted     bool
	settleArmed  bool
}

// NewSession starts a session in StageStart from the current factor.
func NewSession(target float64, maxDuration time.Duration, tolerance, factor float64, steps CalibrationSteps) *Session {
	return &Session{
		Target:      target,
		MaxDuration: maxDuration,
		Tolerance:   tolerance,
		Stage:       StageStart,
		Factor:      factor,
		steps:       steps,
	}
}

// Advance consumes one reading and moves the session forward.
func (s *Session) Advance(r Reading) Action {
	if s.Stage.Terminal() {
		return Action{Stage: s.Stage, Factor: s.Factor}
	}
	s.Iterations++

	if r.Elapsed > s.MaxDuration {
		return s.enter(StageError)
	}

	switch s.Stage {
	case StageStart:
		return s.enter(StagePlace)
	case StagePlace:
		if r.Settled && math.Abs(r.Weight) >= s.steps.PlaceFloor {
			return s.enter(StageCoarse)
		}
	case StageCoarse:
		return s.approach(r.Weight, s.Target*s.steps.CoarseBand, s.steps.CoarseStep, StageFine)
	case StageFine:
		return s.approach(r.Weight, s.Target*s.steps.FineBand, s.steps.FineStep, StageFinal)
	case StageFinal:
		return s.final(r)
	}
	return Action{Stage: s.Stage, Factor: s.Factor}
}

func (s *Session) enter(st Stage) Action {
	s.Stage = st
	return Action{Stage: st, Entered: true, Factor: s.Factor}
}

// adjust nudges the factor towards the target. A heavy reading means the
// factor is too small.
func (s *Session) adjust(w, step float64) Action {
	if w > s.Target {
		s.Factor += step
	} else {
		s.Factor -= step
	}
	return Action{Stage: s.Stage, Adjusted: true, Factor: s.Factor}
}

func (s *Session) approach(w, band, step float64, next Stage) Action {
	if math.Abs(w-s.Target) <= band {
		return s.enter(next)
	}
	return s.adjust(w, step)
}

// final requires the reading inside tolerance, bracketed from both sides if
// this stage has moved the factor at all, and then a fresh settle.
func (s *Session) final(r Reading) Action {
	within := math.Abs(r.Weight-s.Target) <= s.Tolerance
	bracketed := !s.adjusted || (s.above && s.below)

	if within && bracketed {
		if !s.settleArmed {
			s.settleArmed = true
			return Action{Stage: s.Stage, Factor: s.Factor, ResetSettle: true}
		}
		if r.Settled {
			return s.enter(StageFinished)
		}
		return Action{Stage: s.Stage, Factor: s.Factor}
	}

	if r.Weight > s.Target {
		s.above = true
	} else {
		s.below = true
	}
	s.adjusted = true
	return s.adjust(r.Weight, s.steps.FinalStep)
}
