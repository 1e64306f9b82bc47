package main

import (
	"context"
	"testing"

	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/schedule"
)

func TestNewWorld(t *testing.T) {
	tests := []struct {
		name      string
		edit      func(*protocol.Profile)
		observe   string
		steerable bool
	}{
		{"rover", func(p *protocol.Profile) { p.Scenario = protocol.ScenarioRover }, "chassis", false},
		{"actuated", func(p *protocol.Profile) {}, "shell", false},
		{"distance", func(p *protocol.Profile) { p.Smarticle.Actuated = false }, "shell", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := protocol.DefaultProfile()
			p.Backend = protocol.BackendKinematic
			p.Autopilot = true
			p.Driver.MaxSteps = 20
			tt.edit(&p)
			w, err := NewWorld(p)
			if err != nil {
				t.Fatal(err)
			}
			defer w.Close()
			if w.Observe != tt.observe || w.Steerable != tt.steerable {
				t.Errorf("observe %q steerable %v", w.Observe, w.Steerable)
			}
			d, err := w.Driver(p)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			if d.Step() != 20 {
				t.Errorf("step = %d", d.Step())
			}
			want := schedule.None
			if tt.steerable {
				want = schedule.Forward
			}
			if d.Direction() != want {
				t.Errorf("direction = %v, want %v", d.Direction(), want)
			}
		})
	}
}

func TestRoverWorldSchedule(t *testing.T) {
	p := protocol.DefaultProfile()
	p.Scenario = protocol.ScenarioRover
	p.Backend = protocol.BackendKinematic
	p.Driver.MaxSteps = 501
	w, err := NewWorld(p)
	if err != nil {
		t.Fatal(err)
	}
	d, err := w.Driver(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	m := w.Mechanism
	motor1, _ := m.JointByName("motor1")
	motor7, _ := m.JointByName("motor7")
	if b := m.Binding(motor1); b.Mode != mechanism.SpeedControl || b.Control.Eval(0) != p.Schedule.Cruise {
		t.Errorf("motor1 %+v", b)
	}
	if b := m.Binding(motor7); b.Mode != mechanism.PositionLock {
		t.Errorf("motor7 %+v", b)
	}
}

func TestNewWorldErrors(t *testing.T) {
	for _, edit := range []func(*protocol.Profile){
		func(p *protocol.Profile) { p.Scenario = "car" },
		func(p *protocol.Profile) { p.Backend = "bullet" },
		func(p *protocol.Profile) { p.Smarticle.SphereRadius = 0 },
	} {
		p := protocol.DefaultProfile()
		p.Backend = protocol.BackendKinematic
		edit(&p)
		if w, err := NewWorld(p); err == nil {
			w.Close()
			t.Errorf("profile %+v accepted", p)
		}
	}
}
