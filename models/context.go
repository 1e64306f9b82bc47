// Package models is the ODE physics backend.
package models

import (
	"fmt"
	"sync"

	"github.com/ianremmler/ode"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/protocol"
)

func init() {
	ode.Init(0, ode.AllAFlag)
}

var _ driver.Backend = (*Context)(nil)

// Context ...
type Context struct {
	sync.RWMutex
	ode.World
	Space      ode.HashSpace
	JointGroup ode.JointGroup
	Profile    protocol.WorldProfile

	bodies []*rigid
	joints []*link
	time   float64
}

// NewContext ...
func NewContext(profile protocol.WorldProfile) *Context {
	ctx := &Context{
		World:      ode.NewWorld(),
		Space:      ode.NilSpace().NewHashSpace(),
		JointGroup: ode.NewJointGroup(10000),
		Profile:    profile,
	}
	if len(profile.Gravity) == 3 {
		ctx.World.SetGravity(ode.V3(profile.Gravity...))
	}
	if profile.CFM > 0 {
		ctx.World.SetCFM(profile.CFM)
	}
	if profile.ERP > 0 {
		ctx.World.SetERP(profile.ERP)
	}
	if profile.QuickStepW > 0 {
		ctx.World.SetQuickStepW(profile.QuickStepW)
	}
	if profile.QuickStepNumIterations > 0 {
		ctx.World.SetQuickStepNumIterations(profile.QuickStepNumIterations)
	}
	ctx.World.SetAutoDisable(false)
	return ctx
}

func callback(data interface{}, obj1, obj2 ode.Geom) {
	ctx := data.(*Context)
	body1, body2 := obj1.Body(), obj2.Body()
	if body1 == 0 && body2 == 0 {
		return
	}
	if body1 != 0 && body2 != 0 && body1.Connected(body2) {
		return
	}
	n := ctx.Profile.CollideNum
	if n <= 0 {
		n = 1
	}
	for _, cg := range obj1.Collide(obj2, uint16(n), 0) {
		contact := ode.NewContact()
		contact.Surface.Mode = 0
		contact.Surface.Mu = ctx.Profile.Mu
		contact.Surface.Mu2 = 0
		if ctx.Profile.SoftErp > 0 {
			contact.Surface.Mode |= ode.SoftERPCtParam
			contact.Surface.SoftErp = ctx.Profile.SoftErp
		}
		if ctx.Profile.SoftCfm > 0 {
			contact.Surface.Mode |= ode.SoftCFMCtParam
			contact.Surface.SoftCfm = ctx.Profile.SoftCfm
		}
		contact.Geom = cg
		ct := ctx.World.NewContactJoint(ctx.JointGroup, contact)
		ct.Attach(body1, body2)
	}
}

// Advance applies the joint drives, collides, steps the world and checks
// the result.
func (ctx *Context) Advance(dt float64) error {
	ctx.Lock()
	defer ctx.Unlock()
	for _, j := range ctx.joints {
		j.drive(ctx.time, dt)
	}
	ctx.Space.Collide(ctx, callback)
	ctx.World.QuickStep(dt)
	ctx.JointGroup.Empty()
	ctx.time += dt
	for _, b := range ctx.bodies {
		if err := b.sample(dt); err != nil {
			return err
		}
	}
	return nil
}

// Time ...
func (ctx *Context) Time() float64 {
	ctx.RLock()
	defer ctx.RUnlock()
	return ctx.time
}

// Close releases the ODE objects.
func (ctx *Context) Close() error {
	ctx.Lock()
	defer ctx.Unlock()
	for _, j := range ctx.joints {
		j.destroy()
	}
	for _, b := range ctx.bodies {
		b.destroy()
	}
	ctx.joints, ctx.bodies = nil, nil
	ctx.JointGroup.Destroy()
	ctx.Space.Destroy()
	ctx.World.Destroy()
	return nil
}

func (ctx *Context) rigid(h driver.BodyHandle) (*rigid, error) {
	if int(h) < 0 || int(h) >= len(ctx.bodies) {
		return nil, fmt.Errorf("ode: body handle %d out of range", h)
	}
	return ctx.bodies[h], nil
}

func (ctx *Context) link(h driver.JointHandle) (*link, error) {
	if int(h) < 0 || int(h) >= len(ctx.joints) {
		return nil, fmt.Errorf("ode: joint handle %d out of range", h)
	}
	return ctx.joints[h], nil
}

func toVector(v geometry.Vec3) ode.Vector3 { return ode.V3(v[0], v[1], v[2]) }

func fromVector(v ode.Vector3) geometry.Vec3 { return geometry.V3(v[0], v[1], v[2]) }

func toQuaternion(q geometry.Quat) ode.Quaternion {
	return ode.Quaternion{q.W, q.V[0], q.V[1], q.V[2]}
}

func fromQuaternion(q ode.Quaternion) geometry.Quat {
	return geometry.Quat{W: q[0], V: geometry.V3(q[1], q[2], q[3])}
}
