package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/clock"
	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/config"
	"github.com/sweeney/scale-sensor/internal/indicator"
	"github.com/sweeney/scale-sensor/internal/logic"
	"github.com/sweeney/scale-sensor/internal/mqtt"
	"github.com/sweeney/scale-sensor/internal/scale"
	"github.com/sweeney/scale-sensor/internal/status"
	"github.com/sweeney/scale-sensor/internal/store"
)

// loop is the state shared by runLoop and the commands it executes.
// tracker and push may be nil.
type loop struct {
	engine     *scale.Engine
	clk        clock.Clock
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	light      indicator.Light
	store      store.Store
	push       func()
	cfg        *config.Config

	reporter *logic.Reporter
}

// runLoop reads the scale on every tick and executes commands between reads.
// Commands block the loop for as long as they run.
func runLoop(ctx context.Context, l *loop, tick <-chan time.Time, cmds <-chan command.Command, sig <-chan os.Signal) error {
	l.reporter = logic.NewReporter(l.cfg.Loop.PublishInterval, l.clk.Now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			log.Printf("context done, shutting down")
			l.shutdown("CANCELED")
			return ctx.Err()

		case c := <-cmds:
			l.execute(c)
			l.refresh()

		case <-tick:
			w := l.engine.ReadUnits(1)
			t := l.clk.Now()

			events := l.reporter.Process(logic.Input{
				Weight:  w,
				Settled: l.engine.Settled(),
				Time:    t,
			})
			for _, event := range events {
				l.emit(event)
			}

			if hbData := l.reporter.CheckHeartbeat(t, l.cfg.Loop.Heartbeat); hbData != nil {
				l.heartbeat(hbData)
			}

			l.refresh()
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func (l *loop) shutdown(reason string) {
	event := mqtt.SystemEvent{
		Timestamp: l.clk.Now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		l.refresh()
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func (l *loop) heartbeat(hb *logic.HeartbeatData) {
	log.Printf("heartbeat: uptime=%v weight=%.3f published=%d tares=%d calibrations=%d",
		hb.Uptime, hb.Weight, hb.Counts.Published, hb.Counts.Tares, hb.Counts.Calibrations)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			l.tracker.SetNetwork(net)
		}
		l.refresh()
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) emit(event logic.Event) {
	if event.Type != logic.EventWeight || l.cfg.Log.Debug {
		log.Printf("event: %s weight=%.3f", event.Type, event.Weight)
	}
	if err := l.publisher.Publish(event); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// refresh copies engine state into the tracker for HTTP and websocket readers.
func (l *loop) refresh() {
	if l.tracker == nil {
		return
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	e := l.engine
	l.tracker.Update(status.Reading{
		Weight:       e.Display(),
		RoC:          e.RoC(),
		Settled:      e.Settled(),
		SettledQuick: e.SettledQuick(),
		TareWeight:   e.LastTareWeightRounded(),
		CalFactor:    e.CalFactor(),
		CalStage:     e.CalibrationStatus().String(),
		SPS:          e.ActualSPS(),
		Timeouts:     e.Driver().Protocol().Timeouts(),
	}, l.reporter.IsReady(), l.reporter.EventCountsSnapshot())
	if l.push != nil {
		l.push()
	}
}

func (l *loop) execute(c command.Command) {
	log.Printf("command: %s", c)
	switch c.Kind {
	case command.KindTare:
		l.tare()
	case command.KindCalibrate:
		l.calibrate(c.Weight)
	default:
		log.Printf("command: unknown kind %q", c.Kind)
	}
}

// tare discards a few readings so the window reflects what is on the pan,
// then zeroes with a full tare.
func (l *loop) tare() {
	var removed float64
	indicator.While(l.light, indicator.Blue, func() {
		for i := 0; i < l.cfg.Loop.TareReads; i++ {
			removed = l.engine.ReadUnits(1)
		}
		l.engine.Tare(adc.TareFull, false, true, false)
	})
	l.emit(l.reporter.Tared(l.clk.Now(), removed))
}

func (l *loop) calibrate(weight float64) {
	if !(weight > 0) {
		weight = l.cfg.Calibration.Weight
	}
	if l.tracker != nil {
		l.tracker.SetCalStage(scale.StageStart.String())
		if l.push != nil {
			l.push()
		}
	}

	var s scale.Session
	indicator.While(l.light, indicator.Red, func() {
		s = runCalibration(l.engine, l.clk, l.store, l.cfg.Calibration, weight)
	})

	ok := s.Stage == scale.StageFinished
	l.emit(l.reporter.Calibrated(l.clk.Now(), ok, s.Stage.String(), weight, s.Factor))
	l.clk.Sleep(l.cfg.Calibration.Pause)
}

// runCalibration warms the converter up, runs the factor search and either
// persists the result or puts the engine back into normal operation.
func runCalibration(e *scale.Engine, clk clock.Clock, st store.Store, cc config.CalibrationConfig, weight float64) scale.Session {
	for i := 0; i < cc.WarmupReads; i++ {
		e.ReadUnits(1)
		clk.Sleep(cc.WarmupInterval)
	}

	d := e.Driver()
	speed, smoothing := d.Speed(), d.Smoothing()

	s := e.Calibrate(weight, cc.Timeout, cc.Tolerance)
	if s.Stage != scale.StageFinished {
		e.Rehome(speed, smoothing)
		return s
	}
	if err := store.PersistCalFactor(st, e.CalFactor()); err != nil {
		log.Printf("calibrate: persist factor: %v", err)
	}
	return s
}
