package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Weight        float64      `json:"weight"`
	RoC           float64      `json:"roc"`
	Settled       bool         `json:"settled"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Scale         ScaleJSON    `json:"scale"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkInfo `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ScaleJSON carries the slower-moving scale diagnostics.
type ScaleJSON struct {
	SettledQuick bool    `json:"settled_quick"`
	TareWeight   float64 `json:"tare_weight"`
	CalFactor    float64 `json:"cal_factor"`
	CalStage     string  `json:"cal_stage"`
	SPS          int     `json:"sps"`
	Timeouts     int     `json:"timeouts"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Published         int `json:"published"`
	Tares             int `json:"tares"`
	Calibrations      int `json:"calibrations"`
	CalibrationErrors int `json:"calibration_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ReadMs      int64  `json:"read_ms"`
	PublishMs   int64  `json:"publish_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Simulated   bool   `json:"simulated,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	stage := snap.Scale.CalStage
	if stage == "" {
		stage = "IDLE"
	}

	inner := StatusInner{
		Weight:        snap.Scale.Weight,
		RoC:           snap.Scale.RoC,
		Settled:       snap.Scale.Settled,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Scale: ScaleJSON{
			SettledQuick: snap.Scale.SettledQuick,
			TareWeight:   snap.Scale.TareWeight,
			CalFactor:    snap.Scale.CalFactor,
			CalStage:     stage,
			SPS:          snap.Scale.SPS,
			Timeouts:     snap.Scale.Timeouts,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Published:         snap.Counts.Published,
			Tares:             snap.Counts.Tares,
			Calibrations:      snap.Counts.Calibrations,
			CalibrationErrors: snap.Counts.CalibrationErrors,
		},
		Config: ConfigJSON{
			ReadMs:      snap.Config.ReadMs,
			PublishMs:   snap.Config.PublishMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Simulated:   snap.Config.Simulated,
		},
	}
	inner.Network = snap.Network
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCompact returns the status as a single line, for streaming.
func FormatCompact(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
