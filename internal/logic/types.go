// Package logic contains the pure reporting rules of the scale daemon: when a
// weight is published, which events are emitted and when a heartbeat is due.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// EventType names something worth telling the broker about.
type EventType string

const (
	EventWeight            EventType = "WEIGHT"
	EventTare              EventType = "TARE"
	EventCalibrated        EventType = "CALIBRATED"
	EventCalibrationFailed EventType = "CALIBRATION_FAILED"
)

// Event is a message to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Weight    float64
	// Factor and Stage are set on calibration events only.
	Factor float64
	Stage  string
}

// Input is one processed reading from the scale.
type Input struct {
	Weight  float64
	Settled bool
	Time    time.Time
}

// EventCounts tracks how many of each event were emitted since startup.
type EventCounts struct {
	Published         int
	Tares             int
	Calibrations      int
	CalibrationErrors int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	Weight    float64
}
