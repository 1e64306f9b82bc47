package models

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/ianremmler/ode"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
)

// cylinderOffset turns ODE's Z-aligned cylinder onto the local Y axis.
var cylinderOffset = mgl64.QuatRotate(-math.Pi/2, geometry.AxisX)

// rigid is a body, or a static geom for fixed bodies.
type rigid struct {
	spec mechanism.BodySpec
	body ode.Body
	geom ode.Geom

	pos geometry.Vec3
	rot geometry.Quat
	vel geometry.Vec3
	acc geometry.Vec3
}

func (ctx *Context) newGeom(s mechanism.Shape) (ode.Geom, error) {
	switch s.Kind {
	case mechanism.ShapeBox:
		return ctx.Space.NewBox(toVector(s.Lengths)), nil
	case mechanism.ShapeSphere:
		return ctx.Space.NewSphere(s.Radius), nil
	case mechanism.ShapeCylinder:
		return ctx.Space.NewCylinder(s.Radius, s.Height), nil
	}
	return nil, fmt.Errorf("ode: unsupported shape %v", s.Kind)
}

func newMass(spec mechanism.BodySpec) (*ode.Mass, error) {
	mass := ode.NewMass()
	s := spec.Shape
	density := spec.Density
	if spec.MassOverride > 0 {
		density = 1
	}
	switch s.Kind {
	case mechanism.ShapeBox:
		mass.SetBox(density, toVector(s.Lengths))
	case mechanism.ShapeSphere:
		mass.SetSphere(density, s.Radius)
	case mechanism.ShapeCylinder:
		mass.SetCylinder(density, 2, s.Radius, s.Height) // 2: y-axis length = height
	default:
		return nil, fmt.Errorf("ode: unsupported shape %v", s.Kind)
	}
	if spec.MassOverride > 0 {
		mass.Adjust(spec.MassOverride)
	}
	if !(spec.Mass() > 0) {
		return nil, fmt.Errorf("ode: body %q has no mass", spec.Name)
	}
	return mass, nil
}

// CreateBody adds a dynamic body, with a geom when it collides, or a static
// geom for a fixed body.
func (ctx *Context) CreateBody(spec mechanism.BodySpec) (driver.BodyHandle, error) {
	ctx.Lock()
	defer ctx.Unlock()
	r := &rigid{spec: spec, pos: spec.Pose.Position, rot: spec.Pose.Orientation}
	if r.rot == (geometry.Quat{}) {
		r.rot = geometry.Identity()
	}
	if spec.Fixed {
		geom, err := ctx.newGeom(spec.Shape)
		if err != nil {
			return -1, err
		}
		geom.SetPosition(toVector(r.pos))
		q := r.rot
		if spec.Shape.Kind == mechanism.ShapeCylinder {
			q = geometry.Compose(q, cylinderOffset)
		}
		geom.SetQuaternion(toQuaternion(q))
		r.geom = geom
	} else {
		mass, err := newMass(spec)
		if err != nil {
			return -1, err
		}
		body := ctx.NewBody()
		body.SetMass(mass)
		body.SetPosition(toVector(r.pos))
		body.SetQuaternion(toQuaternion(r.rot))
		r.body = body
		if spec.Collide {
			geom, err := ctx.newGeom(spec.Shape)
			if err != nil {
				return -1, err
			}
			geom.SetBody(body)
			if spec.Shape.Kind == mechanism.ShapeCylinder {
				geom.SetOffsetQuaternion(toQuaternion(cylinderOffset))
			}
			r.geom = geom
		}
	}
	ctx.bodies = append(ctx.bodies, r)
	return driver.BodyHandle(len(ctx.bodies) - 1), nil
}

// sample refreshes the cached state after a step.
func (r *rigid) sample(dt float64) error {
	if r.body == 0 {
		return nil
	}
	pos := fromVector(r.body.Position())
	vel := fromVector(r.body.LinearVelocity())
	rot := fromQuaternion(r.body.Quaternion())
	if !geometry.Finite(pos) || !geometry.Finite(vel) || math.IsNaN(rot.W) {
		return &driver.DivergenceError{Body: r.spec.Name, Reason: fmt.Sprintf("position %v velocity %v", pos, vel)}
	}
	r.acc = vel.Sub(r.vel).Mul(1 / dt)
	r.pos, r.vel, r.rot = pos, vel, rot
	return nil
}

func (r *rigid) destroy() {
	if r.geom != nil {
		r.geom.Destroy()
	}
	if r.body != 0 {
		r.body.Destroy()
	}
}

// BodyState ...
func (ctx *Context) BodyState(h driver.BodyHandle) mechanism.BodyState {
	ctx.RLock()
	defer ctx.RUnlock()
	r := ctx.bodies[h]
	return mechanism.BodyState{Position: r.pos, Velocity: r.vel, Acceleration: r.acc, Orientation: r.rot}
}
