package protocol

import (
	"errors"
	"fmt"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/schedule"
)

// WorldProfile ...
type WorldProfile struct {
	Gravity                []float64 `json:"gravity"` // length=3
	CFM                    float64   `json:"cfm"`
	ERP                    float64   `json:"erp"`
	QuickStepW             float64   `json:"quick_step_w"`
	QuickStepNumIterations int       `json:"quick_step_num_iterations"`
	CollideNum             int       `json:"collide_num"` // contacts per colliding pair
	Mu                     float64   `json:"mu"`
	SoftCfm                float64   `json:"soft_cfm"`
	SoftErp                float64   `json:"soft_erp"`
}

// DefaultWorldProfile ...
func DefaultWorldProfile() WorldProfile {
	return WorldProfile{
		Gravity:                []float64{0, -9.81, 0},
		CFM:                    1e-5,
		ERP:                    0.2,
		QuickStepW:             1.3,
		QuickStepNumIterations: 200,
		CollideNum:             4,
		Mu:                     0.1,
		SoftCfm:                1e-4,
		SoftErp:                0.2,
	}
}

// Scenarios and backends.
const (
	ScenarioRover     = "rover"
	ScenarioSmarticle = "smarticle"
	BackendODE        = "ode"
	BackendKinematic  = "kinematic"
)

// Profile ...
type Profile struct {
	Scenario  string                       `json:"scenario"`
	Backend   string                       `json:"backend"`
	Autopilot bool                         `json:"autopilot"` // drive the smarticle from the demo program
	Scene     string                       `json:"scene"`     // optional COLLADA file bound to bodies
	Out       string                       `json:"out"`       // recorder root directory
	World     WorldProfile                 `json:"world"`
	Driver    driver.Config                `json:"driver"`
	Rover     mechanism.RoverParams        `json:"rover"`
	Smarticle mechanism.SmarticleParams    `json:"smarticle"`
	Schedule  schedule.RoverScheduleParams `json:"schedule"`
	Gait      schedule.ActuatedGaitParams  `json:"gait"`
}

// DefaultProfile ...
func DefaultProfile() Profile {
	return Profile{
		Scenario:  ScenarioSmarticle,
		Backend:   BackendODE,
		Out:       "out",
		World:     DefaultWorldProfile(),
		Driver:    driver.DefaultConfig(),
		Rover:     mechanism.DefaultRoverParams(),
		Smarticle: mechanism.DefaultSmarticleParams(),
		Schedule:  schedule.DefaultRoverScheduleParams(),
		Gait:      schedule.DefaultActuatedGaitParams(),
	}
}

// Validate ...
func (p Profile) Validate() error {
	var errs []error
	switch p.Scenario {
	case ScenarioRover, ScenarioSmarticle:
	default:
		errs = append(errs, fmt.Errorf("unknown scenario %q", p.Scenario))
	}
	switch p.Backend {
	case BackendODE, BackendKinematic:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", p.Backend))
	}
	if len(p.World.Gravity) != 3 {
		errs = append(errs, fmt.Errorf("gravity needs 3 components, got %d", len(p.World.Gravity)))
	}
	if err := p.Driver.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Input ...
type Input struct {
	Name      string             `json:"name"`
	Direction schedule.Direction `json:"direction"`
}

// Attitude ...
type Attitude struct {
	Position   []float64 `json:"position"`   // length=3
	Quaternion []float64 `json:"quaternion"` // length=4, w first
}

// Body ...
type Body struct {
	Name     string    `json:"name"`
	Group    string    `json:"group,omitempty"`
	Body     Attitude  `json:"body"`
	Velocity []float64 `json:"velocity"`
}

// Frame is one rendered tick.
type Frame struct {
	Step      int64              `json:"step"`
	Time      float64            `json:"time"`
	Direction schedule.Direction `json:"direction"`
	Bodies    []Body             `json:"bodies"`
}

// NewFrame ...
func NewFrame(s *driver.Snapshot) *Frame {
	f := &Frame{
		Step:      s.Step,
		Time:      s.Time,
		Direction: s.Direction,
		Bodies:    make([]Body, len(s.Bodies)),
	}
	for i, b := range s.Bodies {
		q := b.Orientation
		f.Bodies[i] = Body{
			Name:     b.Name,
			Group:    b.Group,
			Body:     Attitude{Position: b.Position[:], Quaternion: []float64{q.W, q.V[0], q.V[1], q.V[2]}},
			Velocity: b.Velocity[:],
		}
	}
	return f
}

// Shape describes how a client draws one body.
type Shape struct {
	Name  string    `json:"name"`
	Group string    `json:"group,omitempty"`
	Kind  string    `json:"kind"`
	Size  []float64 `json:"size"` // box lengths, or radius and height
	Fixed bool      `json:"fixed,omitempty"`
	Mesh  string    `json:"mesh,omitempty"` // bound scene node
}

// Scene is sent once per client before any Frame.
type Scene struct {
	Mechanism string  `json:"mechanism"`
	Shapes    []Shape `json:"shapes"`
}

// NewScene lists the bodies of m. meshes maps body names to scene nodes.
func NewScene(m *mechanism.Mechanism, meshes map[string]string) *Scene {
	sc := &Scene{Mechanism: m.Name(), Shapes: make([]Shape, m.NumBodies())}
	for i := range sc.Shapes {
		b := m.Body(mechanism.BodyID(i))
		size := []float64{b.Shape.Radius, b.Shape.Height}
		if b.Shape.Kind == mechanism.ShapeBox {
			size = b.Shape.Lengths[:]
		}
		sc.Shapes[i] = Shape{
			Name:  b.Name,
			Group: b.Group,
			Kind:  b.Shape.Kind.String(),
			Size:  size,
			Fixed: b.Fixed,
			Mesh:  meshes[b.Name],
		}
	}
	return sc
}

// Output ...
type Output struct {
	Self  string `json:"self"`
	Frame *Frame `json:"frame"`
}
