// Package schedule decides, once per tick, which joints change actuator mode
// or control function. Policies are evaluated before the physics step so the
// new targets are integrated by it.
package schedule

import (
	"fmt"

	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
)

// Update changes the binding of one joint. A nil field leaves that part of
// the binding as it is.
type Update struct {
	Joint   mechanism.JointID
	Mode    *mechanism.ActuatorMode
	Control *mechanism.ControlFunction
}

func (u Update) String() string {
	mode, ctrl := "-", "-"
	if u.Mode != nil {
		mode = u.Mode.String()
	}
	if u.Control != nil {
		ctrl = u.Control.String()
	}
	return fmt.Sprintf("joint %d: mode=%s control=%s", u.Joint, mode, ctrl)
}

// SetMode ...
func SetMode(j mechanism.JointID, m mechanism.ActuatorMode) Update {
	return Update{Joint: j, Mode: &m}
}

// SetControl ...
func SetControl(j mechanism.JointID, c mechanism.ControlFunction) Update {
	return Update{Joint: j, Control: &c}
}

// Set changes both mode and control.
func Set(j mechanism.JointID, m mechanism.ActuatorMode, c mechanism.ControlFunction) Update {
	return Update{Joint: j, Mode: &m, Control: &c}
}

// Probe reads the state of the running simulation.
type Probe interface {
	BodyState(mechanism.BodyID) mechanism.BodyState
	// JointAnchor returns the world position of the joint frame carried by
	// the moving side of the joint, e.g. the leg of a prismatic leg joint.
	JointAnchor(mechanism.JointID) geometry.Vec3
}

// Tick is the input of one policy evaluation.
type Tick struct {
	Step      int64
	Time      float64
	Dt        float64
	Direction Direction
	Probe     Probe
}

// Policy computes the joint updates for a tick. Evaluate must not mutate the
// mechanism; the driver applies the returned updates.
type Policy interface {
	Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(t Tick, m *mechanism.Mechanism) ([]Update, error)

// Evaluate ...
func (f PolicyFunc) Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error) {
	return f(t, m)
}

// Policies evaluates each policy in order and concatenates their updates.
type Policies []Policy

// Evaluate ...
func (ps Policies) Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error) {
	var out []Update
	for _, p := range ps {
		u, err := p.Evaluate(t, m)
		if err != nil {
			return nil, err
		}
		out = append(out, u...)
	}
	return out, nil
}

// StepsAt converts a duration in seconds to a step count.
func StepsAt(seconds, dt float64) int64 {
	if dt <= 0 {
		return 0
	}
	return int64(seconds/dt + 0.5)
}
