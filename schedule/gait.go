package schedule

import (
	"fmt"
	"strings"

	"github.com/nobonobo/rigsim/mechanism"
)

// Direction is the travel command of a directional gait.
type Direction int

// Directions.
const (
	None Direction = iota
	Left
	Right
	Forward
	Back
)

func (d Direction) String() string {
	switch d {
	case None:
		return "none"
	case Left:
		return "left"
	case Right:
		return "right"
	case Forward:
		return "forward"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts the names returned by String, case-insensitively.
// The empty string is None.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "stop":
		return None, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "forward":
		return Forward, nil
	case "back", "backward":
		return Back, nil
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

// MarshalText ...
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText ...
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// axis returns the travel axis index (0 x, 2 z) and the sign that maps the
// direction onto the left/forward case.
func (d Direction) axis() (int, float64) {
	switch d {
	case Left:
		return 2, 1
	case Right:
		return 2, -1
	case Forward:
		return 0, 1
	case Back:
		return 0, -1
	}
	return 0, 0
}

// Differ returns the displacement threshold for a shell speed s along the
// travel axis, already mirrored so that positive s is motion in the commanded
// direction.
func Differ(s float64) float64 {
	switch {
	case s > 1.0:
		return 0.1
	case s > 0:
		return 0.05
	case s < -2.5:
		return -0.05
	case s < -1.8:
		return 0
	case s < -0.75:
		return 0.01
	default:
		return 0.02
	}
}

// Target picks a leg distance from the mirrored displacement e of the shell
// relative to the leg anchor.
func Target(e, differ float64) float64 {
	switch {
	case e < -differ:
		return mechanism.LegExtended
	case e < -differ/2:
		return mechanism.LegHalfway
	default:
		return mechanism.LegRetracted
	}
}

// GaitLeg pairs the joint whose frame is probed with the joint that is driven.
type GaitLeg struct {
	Anchor mechanism.JointID
	Drive  mechanism.JointID
}

// LegsOf returns the gait legs of a smarticle.
func LegsOf(s *mechanism.Smarticle) []GaitLeg {
	legs := make([]GaitLeg, len(s.Legs))
	for i, l := range s.Legs {
		legs[i] = GaitLeg{Anchor: l.Prismatic, Drive: l.Drive}
	}
	return legs
}

// DirectionalGait is a banded bang-bang controller for distance-constrained
// legs: every tick it sets the imposed distance of every leg to one of
// LegRetracted, LegHalfway or LegExtended.
type DirectionalGait struct {
	Shell mechanism.BodyID
	Legs  []GaitLeg
}

// Evaluate ...
func (g *DirectionalGait) Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error) {
	out := make([]Update, 0, len(g.Legs))
	if t.Direction == None {
		for _, l := range g.Legs {
			out = append(out, SetControl(l.Drive, mechanism.Constant(mechanism.LegExtended)))
		}
		return out, nil
	}
	if t.Probe == nil {
		return nil, fmt.Errorf("directional gait: no probe")
	}
	i, sign := t.Direction.axis()
	shell := t.Probe.BodyState(g.Shell)
	differ := Differ(sign * shell.Velocity[i])
	for _, l := range g.Legs {
		e := sign * (shell.Position[i] - t.Probe.JointAnchor(l.Anchor)[i])
		out = append(out, SetControl(l.Drive, mechanism.Constant(Target(e, differ))))
	}
	return out, nil
}

// ActuatedGaitParams are the phase boundaries of the actuated demo course.
type ActuatedGaitParams struct {
	Stride    float64 `json:"stride"`     // seconds of striding before the pause, default 1.2
	Kick      float64 `json:"kick"`       // time of the kick, default 1.6
	KickSteps int64   `json:"kick_steps"` // steps the kick lasts, default 5
	Resume    float64 `json:"resume"`     // striding resumes after this time, default 3.5
	Trail     float64 `json:"trail"`      // trailing threshold while striding, default 0.02
	KickTrail float64 `json:"kick_trail"` // trailing threshold for the kick, default 0.01
	Extend    float64 `json:"extend"`     // actuator offset along its inward axis, default 0.05
	Retract   float64 `json:"retract"`    // default -0.05
	KickSlope float64 `json:"kick_slope"` // default 5.5
}

// DefaultActuatedGaitParams ...
func DefaultActuatedGaitParams() ActuatedGaitParams {
	return ActuatedGaitParams{
		Stride:    1.2,
		Kick:      1.6,
		KickSteps: 5,
		Resume:    3.5,
		Trail:     0.02,
		KickTrail: 0.01,
		Extend:    0.05,
		Retract:   -0.05,
		KickSlope: 5.5,
	}
}

// ActuatedGait runs the linear-actuator variant along +X: legs trailing the
// shell extend while the others retract, then everything retracts, a kick
// ramps the trailing legs out, and striding resumes. The kick ramp is a
// function of simulation time, not of time since the kick.
type ActuatedGait struct {
	Shell  mechanism.BodyID
	Legs   []GaitLeg
	Params ActuatedGaitParams
}

// Evaluate ...
func (g *ActuatedGait) Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error) {
	p := g.Params
	stride, kick, resume := StepsAt(p.Stride, t.Dt), StepsAt(p.Kick, t.Dt), StepsAt(p.Resume, t.Dt)
	all := func(c mechanism.ControlFunction) []Update {
		out := make([]Update, len(g.Legs))
		for i, l := range g.Legs {
			out[i] = SetControl(l.Drive, c)
		}
		return out
	}
	trailing := func(threshold float64) ([]bool, error) {
		if t.Probe == nil {
			return nil, fmt.Errorf("actuated gait: no probe")
		}
		shell := t.Probe.BodyState(g.Shell).Position.X()
		out := make([]bool, len(g.Legs))
		for i, l := range g.Legs {
			out[i] = shell-t.Probe.JointAnchor(l.Anchor).X() > threshold
		}
		return out, nil
	}
	strideUpdates := func() ([]Update, error) {
		tr, err := trailing(p.Trail)
		if err != nil {
			return nil, err
		}
		out := make([]Update, len(g.Legs))
		for i, l := range g.Legs {
			c := mechanism.Constant(p.Retract)
			if tr[i] {
				c = mechanism.Constant(p.Extend)
			}
			out[i] = SetControl(l.Drive, c)
		}
		return out, nil
	}

	switch s := t.Step; {
	case s < stride:
		return strideUpdates()
	case s == kick:
		tr, err := trailing(p.KickTrail)
		if err != nil {
			return nil, err
		}
		var out []Update
		for i, l := range g.Legs {
			if tr[i] {
				out = append(out, SetControl(l.Drive, mechanism.Ramp(p.Retract, p.KickSlope)))
			}
		}
		return out, nil
	case s == kick+p.KickSteps:
		return all(mechanism.Constant(p.Retract)), nil
	case s > resume:
		return strideUpdates()
	case s < kick:
		return all(mechanism.Constant(p.Retract)), nil
	}
	return nil, nil
}
