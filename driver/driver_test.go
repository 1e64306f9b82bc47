package driver_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/kinematic"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/schedule"
)

func pendulum(t *testing.T) *mechanism.Mechanism {
	t.Helper()
	m, err := mechanism.Build("pendulum",
		[]mechanism.BodySpec{
			{Name: "base", Shape: mechanism.Box(1, 1, 1), Density: 1, Pose: mechanism.At(geometry.V3(0, 0, 0)), Fixed: true},
			{Name: "arm", Shape: mechanism.Box(1, 0.1, 0.1), Density: 1, Pose: mechanism.At(geometry.V3(1, 0, 0))},
		},
		[]mechanism.JointSpec{{
			Name:   "motor",
			Kind:   mechanism.Revolute,
			BodyA:  "base",
			BodyB:  "arm",
			Anchor: mechanism.Pose{Orientation: mgl64.QuatRotate(-math.Pi/2, geometry.AxisX)},
		}})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func constantSpeed(speed float64) schedule.Policy {
	return schedule.NewStaged(schedule.Event{
		Name:        "spin",
		Trigger:     schedule.AtStep(0),
		Assignments: []schedule.Update{schedule.Set(0, mechanism.SpeedControl, mechanism.Constant(speed))},
	})
}

func TestRevoluteQuarterTurn(t *testing.T) {
	m := pendulum(t)
	k := kinematic.New()
	cfg := driver.Config{Dt: 0.001, MaxSteps: 1000}
	d, err := driver.New(cfg, m, k, constantSpeed(math.Pi/2))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Step() != 1000 {
		t.Errorf("step = %d", d.Step())
	}
	if got := k.Coordinate(d.Joint(0)); math.Abs(got-math.Pi/2) > 1e-9 {
		t.Errorf("joint angle = %v, want %v", got, math.Pi/2)
	}
	arm, ok := d.Snapshot().Find("arm")
	if !ok {
		t.Fatal("arm missing from snapshot")
	}
	if !arm.Position.ApproxEqualThreshold(geometry.V3(0, 0, -1), 1e-9) {
		t.Errorf("arm at %v", arm.Position)
	}
	if b := m.Binding(0); b.Mode != mechanism.SpeedControl {
		t.Errorf("binding = %+v", b)
	}
}

type fakeVis struct {
	bound    bool
	frames   []int64
	inputs   map[int]schedule.Direction
	polls    int
	stopAt   int
	rendered int
}

func (v *fakeVis) BindAssets(*mechanism.Mechanism) error { v.bound = true; return nil }

func (v *fakeVis) RenderFrame(s *driver.Snapshot) error {
	v.frames = append(v.frames, s.Step)
	v.rendered++
	if v.stopAt > 0 && v.rendered == v.stopAt {
		return driver.ErrStop
	}
	return nil
}

func (v *fakeVis) PollInput() (schedule.Direction, bool) {
	d, ok := v.inputs[v.polls]
	v.polls++
	return d, ok
}

type fakeRec struct {
	steps []int64
}

func (r *fakeRec) ExportFrame(step int64, s *driver.Snapshot) error {
	r.steps = append(r.steps, step)
	return nil
}

func (r *fakeRec) Close() error { return nil }

func TestCadences(t *testing.T) {
	vis := &fakeVis{stopAt: 4}
	rec := &fakeRec{}
	cfg := driver.Config{Dt: 0.01, MaxSteps: 100, RenderEvery: 3, RecordEvery: 5}
	d, err := driver.New(cfg, pendulum(t), kinematic.New(), constantSpeed(1),
		driver.WithVisualizer(vis), driver.WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}
	if !vis.bound {
		t.Error("assets not bound")
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Renders on ticks 0, 3, 6, 9; the fourth asks to stop.
	if d.Step() != 10 {
		t.Errorf("stopped at step %d, want 10", d.Step())
	}
	want := []int64{1, 4, 7, 10}
	for i := range want {
		if vis.frames[i] != want[i] {
			t.Fatalf("rendered snapshots %v, want %v", vis.frames, want)
		}
	}
	if len(rec.steps) != 2 || rec.steps[0] != 0 || rec.steps[1] != 5 {
		t.Errorf("exported steps %v", rec.steps)
	}
}

type recordingPolicy struct {
	dirs []schedule.Direction
}

func (p *recordingPolicy) Evaluate(t schedule.Tick, m *mechanism.Mechanism) ([]schedule.Update, error) {
	p.dirs = append(p.dirs, t.Direction)
	return nil, nil
}

func TestDirectionPrecedence(t *testing.T) {
	vis := &fakeVis{inputs: map[int]schedule.Direction{1: schedule.Left}}
	var latch schedule.Latch
	program := schedule.Program{{Until: 3, Direction: schedule.Forward}}
	pol := &recordingPolicy{}
	d, err := driver.New(driver.Config{Dt: 0.01}, pendulum(t), kinematic.New(), pol,
		driver.WithVisualizer(vis), driver.WithDirections(&latch), driver.WithDirections(program))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if i == 4 {
			latch.Set(schedule.Right)
		}
		if err := d.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	want := []schedule.Direction{
		schedule.Forward, // program
		schedule.Left,    // visualizer
		schedule.Forward, // program again
		schedule.None,    // program ran out
		schedule.Right,   // latch set
		schedule.Right,
	}
	for i := range want {
		if pol.dirs[i] != want[i] {
			t.Fatalf("directions %v, want %v", pol.dirs, want)
		}
	}
}

type failingBackend struct {
	*kinematic.Backend
	failAt int
	calls  int
}

func (f *failingBackend) Advance(dt float64) error {
	f.calls++
	if f.calls == f.failAt {
		return &driver.DivergenceError{Body: "arm", Reason: "test"}
	}
	return f.Backend.Advance(dt)
}

func TestDivergenceHalts(t *testing.T) {
	b := &failingBackend{Backend: kinematic.New(), failAt: 7}
	d, err := driver.New(driver.Config{Dt: 0.01, MaxSteps: 100}, pendulum(t), b, constantSpeed(1))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(context.Background())
	var sd *driver.SimulationDivergedError
	if !errors.As(err, &sd) {
		t.Fatalf("err = %v", err)
	}
	if sd.Step != 6 {
		t.Errorf("diverged at step %d, want 6", sd.Step)
	}
	var de *driver.DivergenceError
	if !errors.As(err, &de) {
		t.Error("backend error not wrapped")
	}
	if err := d.Tick(); !errors.Is(err, sd) {
		t.Errorf("tick after divergence = %v", err)
	}
	if b.calls != 7 {
		t.Errorf("advanced %d times after halting", b.calls)
	}
}

func TestInvalidTransitionStopsTick(t *testing.T) {
	lock := schedule.NewStaged(
		schedule.Event{Trigger: schedule.AtStep(0), Assignments: []schedule.Update{schedule.SetMode(0, mechanism.PositionLock)}},
		schedule.Event{Trigger: schedule.AtStep(1), Assignments: []schedule.Update{schedule.SetMode(0, mechanism.SpeedControl)}},
	)
	d, err := driver.New(driver.Config{Dt: 0.01}, pendulum(t), kinematic.New(), lock)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Tick(); err != nil {
		t.Fatal(err)
	}
	if err := d.Tick(); !errors.Is(err, mechanism.ErrInvalidTransition) {
		t.Errorf("err = %v", err)
	}
}

func TestRejectedBatchLeavesBindings(t *testing.T) {
	policy := schedule.NewStaged(
		schedule.Event{Trigger: schedule.AtStep(0), Assignments: []schedule.Update{
			schedule.Set(0, mechanism.PositionLock, mechanism.Constant(1)),
		}},
		schedule.Event{Trigger: schedule.AtStep(1), Assignments: []schedule.Update{
			schedule.SetControl(0, mechanism.Constant(3)),
			schedule.SetMode(0, mechanism.SpeedControl),
		}},
	)
	m := pendulum(t)
	d, err := driver.New(driver.Config{Dt: 0.01}, m, kinematic.New(), policy)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Tick(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := d.Tick(); !errors.Is(err, mechanism.ErrInvalidTransition) {
			t.Fatalf("err = %v", err)
		}
		if b := m.Binding(0); b.Mode != mechanism.PositionLock || b.Control.Eval(0) != 1 {
			t.Errorf("binding changed by a rejected batch: %+v", b)
		}
		if d.Step() != 1 {
			t.Errorf("step = %d", d.Step())
		}
	}
}

func TestRunCancelled(t *testing.T) {
	d, err := driver.New(driver.Config{Dt: 0.01}, pendulum(t), kinematic.New(), constantSpeed(1))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if d.Step() != 0 {
		t.Errorf("ticked %d times", d.Step())
	}
}

func TestMaxTime(t *testing.T) {
	d, err := driver.New(driver.Config{Dt: 0.1, MaxTime: 1}, pendulum(t), kinematic.New(), constantSpeed(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Step() != 10 {
		t.Errorf("step = %d, want 10", d.Step())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  driver.Config
		ok   bool
	}{
		{"default", driver.DefaultConfig(), true},
		{"zero dt", driver.Config{}, false},
		{"negative steps", driver.Config{Dt: 1, MaxSteps: -1}, false},
		{"negative cadence", driver.Config{Dt: 1, RecordEvery: -2}, false},
		{"quiet", driver.Config{Dt: 1, ReportEvery: -1}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
	if _, err := driver.New(driver.Config{Dt: 0.1, Observe: "nope"}, pendulum(t), kinematic.New(), constantSpeed(1)); err == nil {
		t.Error("expected unknown observed body error")
	}
}

func TestReportCadence(t *testing.T) {
	tests := []struct {
		every int64
		lines int
	}{
		{0, 5}, // dt 0.01: every 20 ticks
		{50, 2},
		{-1, 0},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		cfg := driver.Config{Dt: 0.01, MaxSteps: 100, ReportEvery: tt.every, Observe: "arm"}
		d, err := driver.New(cfg, pendulum(t), kinematic.New(), constantSpeed(1), driver.WithLogger(log.New(&buf, "", 0)))
		if err != nil {
			t.Fatal(err)
		}
		if err := d.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := strings.Count(buf.String(), "position:"); got != tt.lines {
			t.Errorf("report_every %d: %d lines, want %d", tt.every, got, tt.lines)
		}
	}
	if n := driver.ReportCadence(0.002); n != 100 {
		t.Errorf("ReportCadence(0.002) = %d", n)
	}
}

func TestNewLogsTopology(t *testing.T) {
	var buf bytes.Buffer
	if _, err := driver.New(driver.Config{Dt: 0.01}, pendulum(t), kinematic.New(), constantSpeed(1), driver.WithLogger(log.New(&buf, "", 0))); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "pendulum: 2 bodies, 1 joints, 1 islands\n"; got != want {
		t.Errorf("log = %q, want %q", got, want)
	}
}
