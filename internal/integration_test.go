package internal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/gpio"
	"github.com/sweeney/scale-sensor/internal/logic"
	"github.com/sweeney/scale-sensor/internal/mqtt"
	"github.com/sweeney/scale-sensor/internal/scale"
	"github.com/sweeney/scale-sensor/internal/status"
	"github.com/sweeney/scale-sensor/internal/store"
)

const zeroCode = int32(52000)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type rig struct {
	clk    *clock.Fake
	sim    *gpio.SimADC
	driver *adc.Driver
	engine *scale.Engine
}

// newRig builds the full read path on the simulated converter: pins, protocol,
// driver and engine, configured the way the daemon boots.
func newRig(t *testing.T) *rig {
	t.Helper()
	clk := clock.NewFake(start)
	sim := gpio.NewSimADC(clk)
	sim.SetLoad(zeroCode, 0)

	d := adc.NewDriver(adc.NewProtocol(sim, clk, gpio.NoCriticalSection{}), clk)
	d.Begin(adc.Channel1, adc.Gain128, adc.Speed10)

	e := scale.New(d, clk, scale.DefaultConfig())
	e.SetSensitivity(255)
	e.SetSmoothing(true)
	e.SetSpeed(adc.Speed10)
	e.Tare(adc.TareFull, false, true, true)

	return &rig{clk: clk, sim: sim, driver: d, engine: e}
}

// poll reads n times and feeds the reporter, publishing what it emits.
func (r *rig) poll(t *testing.T, n int, rep *logic.Reporter, pub mqtt.Publisher) {
	t.Helper()
	for i := 0; i < n; i++ {
		w := r.engine.ReadUnits(1)
		for _, ev := range rep.Process(logic.Input{Weight: w, Settled: r.engine.Settled(), Time: r.clk.Now()}) {
			if err := pub.Publish(ev); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}
}

// TestIntegrationWeighFlow follows a load from the converter pins to the
// retained weight topic.
func TestIntegrationWeighFlow(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	rep := logic.NewReporter(time.Second, r.clk.Now())

	r.poll(t, 15, rep, pub)
	r.sim.SetLoad(zeroCode, 50)
	r.poll(t, 25, rep, pub)

	weights := pub.Weights()
	if len(weights) < 3 {
		t.Fatalf("expected at least 3 weights, got %d", len(weights))
	}
	if weights[0] != 0 {
		t.Errorf("first weight: got %v, want 0", weights[0])
	}
	if last := weights[len(weights)-1]; last != 50 {
		t.Errorf("last weight: got %v, want 50", last)
	}

	topic, qos, retained, _ := pub.Topics.Route(pub.Events[0])
	if topic != "filament/scale/weight" || qos != 1 || !retained {
		t.Errorf("weight route: topic=%q qos=%d retained=%v", topic, qos, retained)
	}
	if got := string(pub.Payloads[len(pub.Payloads)-1]); got != "50.000" {
		t.Errorf("payload: got %q, want 50.000", got)
	}
}

// TestIntegrationMQTTTare delivers a tare message, runs it from the queue and
// checks the scale reads zero with the load still on.
func TestIntegrationMQTTTare(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	q := command.NewQueue(4)
	pub.Commands = q
	rep := logic.NewReporter(time.Second, r.clk.Now())

	r.sim.SetLoad(zeroCode, 30)
	r.poll(t, 10, rep, pub)

	if !pub.Deliver(pub.Topics.Tare, nil) {
		t.Fatal("tare message not accepted")
	}
	if pub.Deliver("filament/scale/other", nil) {
		t.Error("non-command topic should be ignored")
	}
	if q.Len() != 1 {
		t.Fatalf("queue length: got %d, want 1", q.Len())
	}

	c := <-q.C()
	if c.Kind != command.KindTare || c.Source != command.SourceMQTT {
		t.Fatalf("unexpected command %s", c)
	}
	var removed float64
	for i := 0; i < 4; i++ {
		removed = r.engine.ReadUnits(1)
	}
	r.engine.Tare(adc.TareFull, false, true, false)
	if err := pub.Publish(rep.Tared(r.clk.Now(), removed)); err != nil {
		t.Fatal(err)
	}

	r.poll(t, 5, rep, pub)
	if got := r.engine.Display(); got != 0 {
		t.Errorf("display after tare: got %v, want 0", got)
	}

	var tare logic.Event
	for _, ev := range pub.Events {
		if ev.Type == logic.EventTare {
			tare = ev
		}
	}
	if tare.Weight != 30 {
		t.Errorf("tare event weight: got %v, want 30", tare.Weight)
	}
	topic, _, retained, buffered := pub.Topics.Route(tare)
	if topic != "filament/scale/events" || retained || !buffered {
		t.Errorf("tare route: topic=%q retained=%v buffered=%v", topic, retained, buffered)
	}
}

// TestIntegrationCalibratePersistRestore calibrates a mis-set scale, stores the
// factor on disk and restores it into a freshly started driver.
func TestIntegrationCalibratePersistRestore(t *testing.T) {
	r := newRig(t)
	r.engine.SetCalFactor(1300)

	at := r.clk.Now().Add(5 * time.Second)
	r.sim.SetLoadFunc(zeroCode, func(now time.Time) float64 {
		if now.Before(at) {
			return 0
		}
		return 100
	})

	s := r.engine.Calibrate(100, 120*time.Second, 0.05)
	if s.Stage != scale.StageFinished {
		t.Fatalf("stage: got %s, want FINISHED", s.Stage)
	}

	path := filepath.Join(t.TempDir(), "state.yaml")
	fs, err := store.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := store.PersistCalFactor(fs, r.engine.CalFactor()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	reopened, err := store.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	factor, ok, err := store.RestoreCalFactor(reopened)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if diff := factor - r.engine.CalFactor(); diff > 0.0001 || diff < -0.0001 {
		t.Errorf("restored factor %v, want %v", factor, r.engine.CalFactor())
	}

	fresh := newRig(t)
	fresh.engine.SetCalFactor(factor)
	fresh.sim.SetLoad(zeroCode, 100)
	var w float64
	for i := 0; i < 15; i++ {
		w = fresh.engine.ReadUnits(1)
	}
	if w < 99.9 || w > 100.1 {
		t.Errorf("weight with restored factor: got %v, want 100 ± 0.1", w)
	}
}

// TestIntegrationStatusFromEngine renders the status document from live
// engine state.
func TestIntegrationStatusFromEngine(t *testing.T) {
	r := newRig(t)
	r.sim.SetLoad(zeroCode, 75)
	pub := mqtt.NewFakePublisher()
	rep := logic.NewReporter(time.Second, r.clk.Now())
	r.poll(t, 40, rep, pub)

	tr := status.NewTracker(start, status.Config{Broker: "tcp://localhost:1883"})
	tr.Update(status.Reading{
		Weight:    r.engine.Display(),
		Settled:   r.engine.Settled(),
		CalFactor: r.engine.CalFactor(),
		CalStage:  r.engine.CalibrationStatus().String(),
		SPS:       r.engine.ActualSPS(),
	}, rep.IsReady(), rep.EventCountsSnapshot())

	var parsed status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Weight != 75 {
		t.Errorf("weight: got %v, want 75", parsed.Status.Weight)
	}
	if !parsed.Status.Settled {
		t.Error("expected settled")
	}
	if parsed.Status.Scale.CalStage != "IDLE" {
		t.Errorf("cal stage: got %q, want IDLE", parsed.Status.Scale.CalStage)
	}
	if parsed.Status.Counts.Published != len(pub.Weights()) {
		t.Errorf("published count: got %d, want %d", parsed.Status.Counts.Published, len(pub.Weights()))
	}
}
