package logic

import "time"

// Reporter decides when readings are published and keeps event counts.
type Reporter struct {
	publishInterval time.Duration
	startTime       time.Time
	lastPublish     time.Time
	lastHeartbeat   time.Time
	ready           bool
	last            Input
	counts          EventCounts
}

// NewReporter creates a Reporter that publishes at most once per
// publishInterval. An interval <= 0 publishes every reading.
// The startTime is used for calculating uptime in heartbeat events.
func NewReporter(publishInterval time.Duration, startTime time.Time) *Reporter {
	return &Reporter{
		publishInterval: publishInterval,
		startTime:       startTime,
		lastPublish:     startTime,
		lastHeartbeat:   startTime,
	}
}

// Process takes a new reading and returns the events that should be emitted.
func (r *Reporter) Process(in Input) []Event {
	r.last = in
	r.ready = true

	if r.publishInterval > 0 && in.Time.Sub(r.lastPublish) < r.publishInterval {
		return nil
	}
	r.lastPublish = in.Time
	r.counts.Published++
	return []Event{{
		Timestamp: in.Time,
		Type:      EventWeight,
		Weight:    in.Weight,
	}}
}

// Tared records a completed tare. removed is the weight taken off the scale.
func (r *Reporter) Tared(now time.Time, removed float64) Event {
	r.counts.Tares++
	return Event{Timestamp: now, Type: EventTare, Weight: removed}
}

// Calibrated records the end of a calibration session.
func (r *Reporter) Calibrated(now time.Time, ok bool, stage string, target, factor float64) Event {
	e := Event{
		Timestamp: now,
		Type:      EventCalibrated,
		Weight:    target,
		Factor:    factor,
		Stage:     stage,
	}
	if ok {
		r.counts.Calibrations++
	} else {
		r.counts.CalibrationErrors++
		e.Type = EventCalibrationFailed
	}
	return e
}

// IsReady reports whether at least one reading has been processed.
func (r *Reporter) IsReady() bool {
	return r.ready
}

// Last returns the most recent reading.
func (r *Reporter) Last() Input {
	return r.last
}

// EventCountsSnapshot returns a copy of the counters.
func (r *Reporter) EventCountsSnapshot() EventCounts {
	return r.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if no reading has been processed
// yet, if the interval has not elapsed, or if interval is <= 0 (disabled).
func (r *Reporter) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !r.ready {
		return nil
	}

	if now.Sub(r.lastHeartbeat) < interval {
		return nil
	}

	r.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(r.startTime),
		Counts:    r.counts,
		Weight:    r.last.Weight,
	}
}
