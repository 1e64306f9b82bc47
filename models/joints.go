package models

import (
	"fmt"
	"math"

	"github.com/ianremmler/ode"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
)

// Motor limits.
const (
	MaxMotorForce = 1e4
	ServoGain     = 50.0
	ServoMaxSpeed = 5.0
)

// link is a hinge (revolute) or a slider (prismatic, distance, linear
// actuator). Distance and actuator sliders are servoed to the imposed value.
type link struct {
	spec    mechanism.JointSpec
	hinge   ode.HingeJoint
	slider  ode.SliderJoint
	mode    mechanism.ActuatorMode
	control mechanism.ControlFunction
	rest    float64

	// Anchor point in the frame of the body the joint moves.
	anchorBody  *rigid
	anchorLocal geometry.Vec3
}

// motor is the parameter interface shared by hinges and sliders.
type motor interface {
	SetParam(parameter int, value float64)
	Destroy()
}

func (l *link) isHinge() bool { return l.spec.Kind == mechanism.Revolute }

func (l *link) joint() motor {
	if l.isHinge() {
		return l.hinge
	}
	return l.slider
}

// CreateJoint attaches child (BodyB, or BodyA for distance joints) to parent
// so that positive coordinates move the child along the anchor axis.
func (ctx *Context) CreateJoint(spec mechanism.JointSpec, a, b driver.BodyHandle) (driver.JointHandle, error) {
	ctx.Lock()
	defer ctx.Unlock()
	ra, err := ctx.rigid(a)
	if err != nil {
		return -1, err
	}
	rb, err := ctx.rigid(b)
	if err != nil {
		return -1, err
	}
	l := &link{spec: spec, anchorBody: rb}
	axis := spec.Anchor.Axis()
	child, parent := rb.body, ra.body
	switch spec.Kind {
	case mechanism.Revolute:
		l.hinge = ctx.World.NewHingeJoint(ode.JointGroup(0))
		l.hinge.Attach(child, parent)
		l.hinge.SetAnchor(toVector(spec.Anchor.Position))
		l.hinge.SetAxis(toVector(axis))
	case mechanism.Prismatic:
		l.slider = ctx.World.NewSliderJoint(ode.JointGroup(0))
		l.slider.Attach(child, parent)
		l.slider.SetAxis(toVector(axis))
	case mechanism.Distance:
		d := spec.Anchor.Position.Sub(spec.Target)
		l.rest = d.Len()
		if l.rest > geometry.Epsilon {
			axis = d.Normalize()
		}
		fallthrough
	case mechanism.LinearActuator:
		child, parent = ra.body, rb.body
		l.anchorBody = ra
		l.slider = ctx.World.NewSliderJoint(ode.JointGroup(0))
		l.slider.Attach(child, parent)
		l.slider.SetAxis(toVector(axis))
	default:
		return -1, fmt.Errorf("ode: joint %q: unsupported kind %v", spec.Name, spec.Kind)
	}
	l.anchorLocal = geometry.InverseTransform(l.anchorBody.pos, l.anchorBody.rot, spec.Anchor.Position)
	ctx.joints = append(ctx.joints, l)
	return driver.JointHandle(len(ctx.joints) - 1), nil
}

// SetJointMode ...
func (ctx *Context) SetJointMode(h driver.JointHandle, mode mechanism.ActuatorMode) error {
	ctx.Lock()
	defer ctx.Unlock()
	l, err := ctx.link(h)
	if err != nil {
		return err
	}
	j := l.joint()
	switch mode {
	case mechanism.PositionLock:
		q := l.coordinate()
		j.SetParam(ode.FMaxJtParam, 0)
		j.SetParam(ode.LoStopJtParam, q)
		j.SetParam(ode.HiStopJtParam, q)
	case mechanism.SpeedControl:
		j.SetParam(ode.FMaxJtParam, MaxMotorForce)
	default:
		j.SetParam(ode.FMaxJtParam, 0)
	}
	l.mode = mode
	return nil
}

// SetJointControl ...
func (ctx *Context) SetJointControl(h driver.JointHandle, f mechanism.ControlFunction) error {
	ctx.Lock()
	defer ctx.Unlock()
	l, err := ctx.link(h)
	if err != nil {
		return err
	}
	l.control = f
	return nil
}

// coordinate is the hinge angle, slider displacement, or current distance.
func (l *link) coordinate() float64 {
	if l.isHinge() {
		return l.hinge.Angle()
	}
	q := l.slider.Position()
	if l.spec.Kind == mechanism.Distance {
		return l.rest + q
	}
	return q
}

// Coordinate ...
func (ctx *Context) Coordinate(h driver.JointHandle) float64 {
	ctx.RLock()
	defer ctx.RUnlock()
	return ctx.joints[h].coordinate()
}

// drive applies the binding for the coming step. Torques and forces are
// cleared by ODE after every step, so they are re-applied each time.
func (l *link) drive(t, dt float64) {
	u := l.control.Eval(t)
	j := l.joint()
	if l.spec.Kind.ImposesDistance() {
		v := ServoGain * (u - l.coordinate())
		v = math.Max(-ServoMaxSpeed, math.Min(ServoMaxSpeed, v))
		j.SetParam(ode.FMaxJtParam, MaxMotorForce)
		j.SetParam(ode.VelJtParam, v)
		return
	}
	switch l.mode {
	case mechanism.SpeedControl:
		j.SetParam(ode.VelJtParam, u)
	case mechanism.TorqueControl:
		if l.isHinge() {
			l.hinge.AddTorque(u)
		} else {
			l.slider.AddForce(u)
		}
	}
}

func (l *link) destroy() {
	l.joint().Destroy()
}

// JointAnchor returns the anchor point carried by the moving side: BodyB for
// hinges and prismatic sliders, BodyA for distance and actuator sliders.
func (ctx *Context) JointAnchor(h driver.JointHandle) geometry.Vec3 {
	ctx.RLock()
	defer ctx.RUnlock()
	l := ctx.joints[h]
	a := l.anchorBody
	return geometry.Transform(a.pos, a.rot, l.anchorLocal)
}
