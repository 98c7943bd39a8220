// Package mqtt publishes weight readings and lifecycle events, and turns
// tare/calibrate messages into commands. The Publisher interface abstracts the
// broker for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/logic"
)

// Topics names every topic the daemon uses.
type Topics struct {
	Weight    string `yaml:"weight"`
	Events    string `yaml:"events"`
	System    string `yaml:"system"`
	Tare      string `yaml:"tare"`
	Calibrate string `yaml:"calibrate"`
}

// DefaultTopics returns the stock topic layout.
func DefaultTopics() Topics {
	return Topics{
		Weight:    "filament/scale/weight",
		Events:    "filament/scale/events",
		System:    "filament/scale/system",
		Tare:      "filament/scale/tare",
		Calibrate: "filament/scale/calibrate",
	}
}

// Route returns where an event goes. Weight readings are retained so a new
// subscriber sees the current weight immediately; they are not worth
// replaying after an outage, so they are never buffered.
func (t Topics) Route(event logic.Event) (topic string, qos byte, retained, buffer bool) {
	if event.Type == logic.EventWeight {
		return t.Weight, 1, true, false
	}
	return t.Events, 1, false, true
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a scale event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Discard is a Publisher for running without a broker.
type Discard struct{}

func (Discard) Publish(logic.Event) error       { return nil }
func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) Close() error                    { return nil }
func (Discard) IsConnected() bool               { return false }

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FormatWeight renders a weight the way it goes on the wire: plain text,
// three decimals.
func FormatWeight(w float64) []byte {
	return []byte(strconv.FormatFloat(w, 'f', 3, 64))
}

// Payload represents the JSON payload of a non-weight scale event.
type Payload struct {
	Scale ScalePayload `json:"scale"`
}

// ScalePayload contains the scale event details.
type ScalePayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Weight    float64 `json:"weight"`
	Factor    float64 `json:"factor,omitempty"`
	Stage     string  `json:"stage,omitempty"`
}

// FormatPayload creates the payload for an event. Weight readings use
// FormatWeight; everything else is JSON.
func FormatPayload(event logic.Event) ([]byte, error) {
	if event.Type == logic.EventWeight {
		return FormatWeight(event.Weight), nil
	}
	payload := Payload{
		Scale: ScalePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Weight:    event.Weight,
			Factor:    event.Factor,
			Stage:     event.Stage,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ParseCommand maps an incoming message to a command. ok is false for topics
// that are not command topics.
func ParseCommand(t Topics, topic string, payload []byte, defaultWeight float64) (c command.Command, ok bool) {
	switch topic {
	case t.Tare:
		return command.Tare(command.SourceMQTT), true
	case t.Calibrate:
		w := command.ParseWeight(string(payload), defaultWeight)
		return command.Calibrate(w, defaultWeight, command.SourceMQTT), true
	}
	return command.Command{}, false
}
