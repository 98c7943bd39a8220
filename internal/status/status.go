// Package status provides a thread-safe status tracker for the scale-sensor daemon.
// It is written by the polling loop and read by HTTP handlers and the websocket hub.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/scale-sensor/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// Config contains daemon configuration for display.
type Config struct {
	ReadMs      int64
	PublishMs   int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Simulated   bool
}

// Reading is the scale state after one polling tick.
type Reading struct {
	Weight       float64
	RoC          float64
	Settled      bool
	SettledQuick bool
	TareWeight   float64
	CalFactor    float64
	CalStage     string
	SPS          int
	Timeouts     int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Scale         Reading
	Ready         bool
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{snap: Snapshot{StartTime: startTime, Config: cfg}}
}

func (t *Tracker) with(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snap)
}

// Update records the latest reading and event counts. The polling loop
// calls it after every tick.
func (t *Tracker) Update(r Reading, ready bool, counts logic.EventCounts) {
	t.with(func(s *Snapshot) {
		s.Scale, s.Ready, s.Counts = r, ready, counts
	})
}

// SetCalStage records the calibration stage while a long-running command
// holds the polling loop.
func (t *Tracker) SetCalStage(stage string) {
	t.with(func(s *Snapshot) { s.Scale.CalStage = stage })
}

func (t *Tracker) SetMQTTConnected(connected bool) {
	t.with(func(s *Snapshot) { s.MQTTConnected = connected })
}

func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.with(func(s *Snapshot) { s.Network = info })
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
