package command

import (
	"math"
	"testing"
)

func TestParseWeight(t *testing.T) {
	tests := []struct {
		payload string
		want    float64
	}{
		{"", DefaultWeight},
		{"   ", DefaultWeight},
		{"250", 250},
		{" 42.5\n", 42.5},
		{"abc", DefaultWeight},
		{"0", DefaultWeight},
		{"-10", DefaultWeight},
		{"NaN", DefaultWeight},
		{"1e3", 1000},
		{"+Inf", DefaultWeight},
	}
	for _, tt := range tests {
		got := ParseWeight(tt.payload, DefaultWeight)
		if got != tt.want {
			t.Errorf("ParseWeight(%q): got %v, want %v", tt.payload, got, tt.want)
		}
	}
}

func TestCalibrateFallsBackToDefault(t *testing.T) {
	for _, w := range []float64{0, -1, math.NaN()} {
		c := Calibrate(w, 100, SourceHTTP)
		if c.Weight != 100 {
			t.Errorf("Calibrate(%v): weight %v, want 100", w, c.Weight)
		}
	}
	c := Calibrate(500, 100, SourceMQTT)
	if c.Kind != KindCalibrate || c.Weight != 500 || c.Source != SourceMQTT {
		t.Errorf("unexpected command %+v", c)
	}
}

func TestCommandString(t *testing.T) {
	if got := Tare(SourceMQTT).String(); got != "TARE from mqtt" {
		t.Errorf("got %q", got)
	}
	if got := Calibrate(100, 100, SourceHTTP).String(); got != "CALIBRATE(100.00) from http" {
		t.Errorf("got %q", got)
	}
}

func TestQueueOrderAndOverflow(t *testing.T) {
	q := NewQueue(2)
	if !q.Submit(Tare(SourceMQTT)) {
		t.Fatal("first submit rejected")
	}
	if !q.Submit(Calibrate(50, 100, SourceHTTP)) {
		t.Fatal("second submit rejected")
	}
	if q.Submit(Tare(SourceHTTP)) {
		t.Error("expected submit to fail on a full queue")
	}
	if q.Len() != 2 {
		t.Errorf("Len: got %d, want 2", q.Len())
	}

	c := <-q.C()
	if c.Kind != KindTare || c.Source != SourceMQTT {
		t.Errorf("first: got %+v", c)
	}
	c = <-q.C()
	if c.Kind != KindCalibrate || c.Weight != 50 {
		t.Errorf("second: got %+v", c)
	}
}

func TestNewQueueMinimumSize(t *testing.T) {
	q := NewQueue(0)
	if !q.Submit(Tare(SourceHTTP)) {
		t.Error("zero-size queue should still hold one command")
	}
}
