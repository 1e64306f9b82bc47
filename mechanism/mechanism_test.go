package mechanism

import (
	"errors"
	"math"
	"testing"

	"github.com/nobonobo/rigsim/geometry"
)

func box(name string) BodySpec {
	return BodySpec{Name: name, Shape: Box(1, 1, 1), Density: 1, Pose: At(geometry.V3(0, 0, 0))}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		bodies []BodySpec
		joints []JointSpec
		check  func(error) bool
	}{
		{
			name:   "duplicate body",
			bodies: []BodySpec{box("a"), box("a")},
			check: func(err error) bool {
				var e *DuplicateIDError
				return errors.As(err, &e) && e.Kind == "body" && e.Name == "a"
			},
		},
		{
			name:   "duplicate joint",
			bodies: []BodySpec{box("a"), box("b")},
			joints: []JointSpec{
				{Name: "j", Kind: Revolute, BodyA: "a", BodyB: "b"},
				{Name: "j", Kind: Prismatic, BodyA: "a", BodyB: "b"},
			},
			check: func(err error) bool {
				var e *DuplicateIDError
				return errors.As(err, &e) && e.Kind == "joint"
			},
		},
		{
			name:   "dangling body",
			bodies: []BodySpec{box("a")},
			joints: []JointSpec{{Name: "j", Kind: Revolute, BodyA: "a", BodyB: "ghost"}},
			check: func(err error) bool {
				var e *DanglingReferenceError
				return errors.As(err, &e) && e.Joint == "j" && e.Body == "ghost"
			},
		},
		{
			name:   "self joint",
			bodies: []BodySpec{box("a")},
			joints: []JointSpec{{Name: "j", Kind: Revolute, BodyA: "a", BodyB: "a"}},
			check: func(err error) bool {
				var e *InvalidSpecError
				return errors.As(err, &e)
			},
		},
		{
			name:   "degenerate shape",
			bodies: []BodySpec{{Name: "a", Shape: Sphere(0)}},
			check: func(err error) bool {
				var e *InvalidSpecError
				return errors.As(err, &e) && e.Name == "a"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build("test", tt.bodies, tt.joints)
			if err == nil {
				t.Fatalf("expected error, got mechanism with %d bodies", m.NumBodies())
			}
			if !tt.check(err) {
				t.Errorf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func TestBodyAndJointNamespaces(t *testing.T) {
	m, err := Build("ns", []BodySpec{box("x"), box("y")}, []JointSpec{
		{Name: "x", Kind: Revolute, BodyA: "x", BodyB: "y"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.BodyByName("x"); !ok {
		t.Error("body x missing")
	}
	if _, ok := m.JointByName("x"); !ok {
		t.Error("joint x missing")
	}
}

func TestBuilderDeferredError(t *testing.T) {
	b := NewBuilder("deferred")
	b.Body(box("a"))
	if id := b.Joint(JointSpec{Name: "j", BodyA: "a", BodyB: "nope"}); id != -1 {
		t.Errorf("id = %d, want -1", id)
	}
	if id := b.Body(box("b")); id != -1 {
		t.Errorf("builder kept going after error, id = %d", id)
	}
	_, err := b.Build()
	var e *DanglingReferenceError
	if !errors.As(err, &e) {
		t.Fatalf("err = %v", err)
	}
}

func TestRelativeAnchor(t *testing.T) {
	a := box("a")
	a.Pose = Pose{Position: geometry.V3(1, 0, 0), Orientation: geometry.Identity()}
	m, err := Build("rel", []BodySpec{a, box("b")}, []JointSpec{{
		Name:     "j",
		BodyA:    "a",
		BodyB:    "b",
		Anchor:   At(geometry.V3(0, 2, 0)),
		Target:   geometry.V3(0, 0, 3),
		Relative: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	j := m.Joint(0)
	if !j.Anchor.Position.ApproxEqual(geometry.V3(1, 2, 0)) {
		t.Errorf("anchor = %v", j.Anchor.Position)
	}
	if !j.Target.ApproxEqual(geometry.V3(1, 0, 3)) {
		t.Errorf("target = %v", j.Target)
	}
	if j.Relative {
		t.Error("anchor still marked relative")
	}
}

func TestBind(t *testing.T) {
	speed, torque, lock, passive := SpeedControl, TorqueControl, PositionLock, Passive
	tests := []struct {
		name    string
		from    ActuatorMode
		to      ActuatorMode
		wantErr bool
	}{
		{"passive to speed", Passive, speed, false},
		{"speed to speed", SpeedControl, speed, false},
		{"speed to torque", SpeedControl, torque, false},
		{"speed to lock", SpeedControl, lock, false},
		{"torque to speed", TorqueControl, speed, true},
		{"lock to speed", PositionLock, speed, true},
		{"lock to lock", PositionLock, lock, false},
		{"torque to passive", TorqueControl, passive, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build("bind", []BodySpec{box("a"), box("b")}, []JointSpec{
				{Name: "j", BodyA: "a", BodyB: "b", Drive: Binding{Mode: tt.from, Control: Constant(1)}},
			})
			if err != nil {
				t.Fatal(err)
			}
			to := tt.to
			c := Constant(2)
			got, err := m.Bind(0, &to, &c)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("err = %v, want ErrInvalidTransition", err)
				}
				if m.Binding(0).Mode != tt.from || m.Binding(0).Control.Value != 1 {
					t.Errorf("binding changed on error: %+v", m.Binding(0))
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Mode != tt.to || got.Control.Value != 2 {
				t.Errorf("binding = %+v", got)
			}
		})
	}
}

func TestBindKeepsUnsetFields(t *testing.T) {
	m, err := Build("bind", []BodySpec{box("a"), box("b")}, []JointSpec{
		{Name: "j", BodyA: "a", BodyB: "b", Drive: Binding{Mode: SpeedControl, Control: Constant(1)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	c := Ramp(0, 1)
	got, err := m.Bind(0, nil, &c)
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != SpeedControl || got.Control != c {
		t.Errorf("binding = %+v", got)
	}
	if _, err := m.Bind(7, nil, nil); err == nil {
		t.Error("expected out of range error")
	}
}

func TestControlEval(t *testing.T) {
	tests := []struct {
		f    ControlFunction
		t    float64
		want float64
	}{
		{Constant(0.125), 10, 0.125},
		{Ramp(-0.05, 5.5), 0, -0.05},
		{Ramp(-0.05, 5.5), 0.02, 0.06},
		{Ramp(-0.05, 5.5), 1.6, 8.75},
	}
	for _, tt := range tests {
		if got := tt.f.Eval(tt.t); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%v.Eval(%g) = %g, want %g", tt.f, tt.t, got, tt.want)
		}
	}
}

func TestIslands(t *testing.T) {
	m, err := Build("islands",
		[]BodySpec{box("a"), box("b"), box("c"), box("d")},
		[]JointSpec{
			{Name: "ab", BodyA: "a", BodyB: "b"},
			{Name: "ab2", BodyA: "b", BodyB: "a"},
			{Name: "cd", BodyA: "d", BodyB: "c"},
		})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Connected(0, 1) || !m.Connected(1, 0) {
		t.Error("a and b should be connected")
	}
	if m.Connected(0, 2) {
		t.Error("a and c should not be connected")
	}
	islands := m.Islands()
	if len(islands) != 2 {
		t.Fatalf("islands = %v", islands)
	}
	if islands[0][0] != 0 || islands[0][1] != 1 || islands[1][0] != 2 || islands[1][1] != 3 {
		t.Errorf("islands = %v", islands)
	}
}

func TestMass(t *testing.T) {
	b := BodySpec{Shape: Box(1, 2, 3), Density: 2}
	if got := b.Mass(); got != 12 {
		t.Errorf("mass = %g", got)
	}
	b.MassOverride = 5
	if got := b.Mass(); got != 5 {
		t.Errorf("mass = %g", got)
	}
}
