package protocol

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/schedule"
)

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Profile)
		ok   bool
	}{
		{"default", func(*Profile) {}, true},
		{"rover kinematic", func(p *Profile) { p.Scenario, p.Backend = ScenarioRover, BackendKinematic }, true},
		{"scenario", func(p *Profile) { p.Scenario = "car" }, false},
		{"backend", func(p *Profile) { p.Backend = "bullet" }, false},
		{"gravity", func(p *Profile) { p.World.Gravity = []float64{0, -9.81} }, false},
		{"dt", func(p *Profile) { p.Driver.Dt = 0 }, false},
	}
	for _, tt := range tests {
		p := DefaultProfile()
		tt.edit(&p)
		if err := p.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.name, err)
		}
	}
}

func TestInputDecode(t *testing.T) {
	var in Input
	if err := json.Unmarshal([]byte(`{"name":"pad","direction":"back"}`), &in); err != nil {
		t.Fatal(err)
	}
	if in.Name != "pad" || in.Direction != schedule.Back {
		t.Errorf("decoded %+v", in)
	}
	if err := json.Unmarshal([]byte(`{"direction":"up"}`), &in); err == nil {
		t.Error("unknown direction accepted")
	}
}

func TestNewFrame(t *testing.T) {
	q := mgl64.QuatRotate(0.5, geometry.AxisY)
	s := &driver.Snapshot{
		Step:      7,
		Time:      0.014,
		Direction: schedule.Left,
		Bodies: []driver.BodyFrame{{
			Name: "shell",
			BodyState: mechanism.BodyState{
				Position:    geometry.V3(1, 2, 3),
				Velocity:    geometry.V3(0, -1, 0),
				Orientation: q,
			},
		}},
	}
	f := NewFrame(s)
	if f.Step != 7 || f.Direction != schedule.Left || len(f.Bodies) != 1 {
		t.Fatalf("frame %+v", f)
	}
	b := f.Bodies[0]
	if b.Body.Position[2] != 3 || b.Velocity[1] != -1 {
		t.Errorf("body %+v", b)
	}
	if b.Body.Quaternion[0] != q.W || b.Body.Quaternion[2] != q.V[1] {
		t.Errorf("quaternion %v, want w first", b.Body.Quaternion)
	}
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back["direction"] != "left" {
		t.Errorf("direction encoded as %v", back["direction"])
	}
}

func TestNewScene(t *testing.T) {
	r, err := mechanism.BuildRover(mechanism.DefaultRoverParams())
	if err != nil {
		t.Fatal(err)
	}
	sc := NewScene(r.Mechanism, map[string]string{"chassis": "body-node"})
	if len(sc.Shapes) != r.NumBodies() {
		t.Fatalf("%d shapes for %d bodies", len(sc.Shapes), r.NumBodies())
	}
	for _, s := range sc.Shapes {
		switch s.Kind {
		case "box":
			if len(s.Size) != 3 {
				t.Errorf("%s size %v", s.Name, s.Size)
			}
		case "cylinder":
			if len(s.Size) != 2 || s.Size[0] != mechanism.DefaultRoverParams().WheelRadius {
				t.Errorf("%s size %v", s.Name, s.Size)
			}
		}
		if s.Name == "chassis" && s.Mesh != "body-node" {
			t.Errorf("chassis mesh %q", s.Mesh)
		}
	}
}
