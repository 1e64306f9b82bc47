// Package kinematic is a physics backend without dynamics: no gravity, no
// contacts, no inertia coupling. Every joint carries a scalar coordinate
// that is integrated from its binding and places the joint's child body
// relative to its parent. It is used by tests and headless dry runs.
package kinematic

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
)

type body struct {
	spec     mechanism.BodySpec
	pos      geometry.Vec3
	rot      geometry.Quat
	vel, acc geometry.Vec3
}

// joint positions child in the frame of parent. Revolute and prismatic
// joints move BodyB relative to BodyA; distance and actuator joints move
// BodyA (the anchor side) relative to BodyB (the target side).
type joint struct {
	spec          mechanism.JointSpec
	parent, child driver.BodyHandle
	mode          mechanism.ActuatorMode
	control       mechanism.ControlFunction
	q, qd         float64

	// Rest placement, in the parent's frame.
	childPos geometry.Vec3
	childRot geometry.Quat
	pivot    geometry.Vec3
	axis     geometry.Vec3
	rest     float64

	// Anchor point in the child's frame.
	anchorLocal geometry.Vec3
}

// Backend ...
type Backend struct {
	bodies []*body
	joints []*joint
	order  []int
	time   float64
}

// New ...
func New() *Backend { return &Backend{} }

// CreateBody ...
func (k *Backend) CreateBody(spec mechanism.BodySpec) (driver.BodyHandle, error) {
	rot := spec.Pose.Orientation
	if rot == (geometry.Quat{}) {
		rot = geometry.Identity()
	}
	k.bodies = append(k.bodies, &body{spec: spec, pos: spec.Pose.Position, rot: rot})
	return driver.BodyHandle(len(k.bodies) - 1), nil
}

func (k *Backend) body(h driver.BodyHandle) (*body, error) {
	if int(h) < 0 || int(h) >= len(k.bodies) {
		return nil, fmt.Errorf("kinematic: body handle %d out of range", h)
	}
	return k.bodies[h], nil
}

// CreateJoint ...
func (k *Backend) CreateJoint(spec mechanism.JointSpec, a, b driver.BodyHandle) (driver.JointHandle, error) {
	if _, err := k.body(a); err != nil {
		return -1, err
	}
	bb, err := k.body(b)
	if err != nil {
		return -1, err
	}
	j := &joint{spec: spec, parent: a, child: b}
	if spec.Kind.ImposesDistance() {
		j.parent, j.child = b, a
	}
	p, c := k.bodies[j.parent], k.bodies[j.child]
	j.anchorLocal = geometry.InverseTransform(c.pos, c.rot, spec.Anchor.Position)
	inv := p.rot.Inverse()
	j.childPos = geometry.InverseTransform(p.pos, p.rot, c.pos)
	j.childRot = inv.Mul(c.rot).Normalize()
	j.pivot = geometry.InverseTransform(p.pos, p.rot, spec.Anchor.Position)
	j.axis = inv.Rotate(spec.Anchor.Axis()).Normalize()
	switch spec.Kind {
	case mechanism.Distance:
		target := geometry.InverseTransform(bb.pos, bb.rot, spec.Target)
		d := j.pivot.Sub(target)
		j.rest = d.Len()
		if j.rest > geometry.Epsilon {
			j.axis = d.Normalize()
		}
		j.q = j.rest
	case mechanism.LinearActuator:
		j.q = 0
	}
	k.joints = append(k.joints, j)
	k.order = nil
	return driver.JointHandle(len(k.joints) - 1), nil
}

func (k *Backend) joint(h driver.JointHandle) (*joint, error) {
	if int(h) < 0 || int(h) >= len(k.joints) {
		return nil, fmt.Errorf("kinematic: joint handle %d out of range", h)
	}
	return k.joints[h], nil
}

// SetJointMode ...
func (k *Backend) SetJointMode(h driver.JointHandle, mode mechanism.ActuatorMode) error {
	j, err := k.joint(h)
	if err != nil {
		return err
	}
	if mode == mechanism.PositionLock {
		j.qd = 0
	}
	j.mode = mode
	return nil
}

// SetJointControl ...
func (k *Backend) SetJointControl(h driver.JointHandle, f mechanism.ControlFunction) error {
	j, err := k.joint(h)
	if err != nil {
		return err
	}
	j.control = f
	return nil
}

// Coordinate returns the joint angle (revolute), displacement (prismatic),
// distance (distance) or offset (linear actuator).
func (k *Backend) Coordinate(h driver.JointHandle) float64 {
	return k.joints[h].q
}

// Time returns the integrated time.
func (k *Backend) Time() float64 { return k.time }

// sortJoints orders joints by the breadth-first depth of their parent in the
// parent-to-child graph, so parents are placed before their children. Walks
// start from bodies that are nobody's child; bodies only reachable through a
// cycle start a walk of their own.
func (k *Backend) sortJoints() {
	g := simple.NewDirectedGraph()
	for i := range k.bodies {
		g.AddNode(simple.Node(i))
	}
	for _, j := range k.joints {
		if j.parent != j.child {
			g.SetEdge(simple.Edge{F: simple.Node(j.parent), T: simple.Node(j.child)})
		}
	}
	depth := make(map[int64]int, len(k.bodies))
	var bfs traverse.BreadthFirst
	walk := func(from graph.Node) {
		bfs.Walk(g, from, func(n graph.Node, d int) bool {
			if _, ok := depth[n.ID()]; !ok {
				depth[n.ID()] = d
			}
			return false
		})
	}
	for i := range k.bodies {
		if g.To(int64(i)).Len() == 0 {
			walk(simple.Node(i))
		}
	}
	for i := range k.bodies {
		if _, ok := depth[int64(i)]; !ok {
			walk(simple.Node(i))
		}
	}
	k.order = make([]int, len(k.joints))
	for i := range k.joints {
		k.order[i] = i
	}
	sort.SliceStable(k.order, func(a, b int) bool {
		return depth[int64(k.joints[k.order[a]].parent)] < depth[int64(k.joints[k.order[b]].parent)]
	})
}

// Advance integrates every joint coordinate over dt, then places the child
// bodies and differentiates their positions.
func (k *Backend) Advance(dt float64) error {
	if k.order == nil {
		k.sortJoints()
	}
	prev := make([]geometry.Vec3, len(k.bodies))
	for i, b := range k.bodies {
		prev[i] = b.pos
	}
	for _, i := range k.order {
		j := k.joints[i]
		u := j.control.Eval(k.time)
		switch {
		case j.spec.Kind.ImposesDistance():
			j.q = u
		case j.mode == mechanism.SpeedControl:
			j.qd = u
			j.q += u * dt
		case j.mode == mechanism.TorqueControl:
			j.qd += u * dt
			j.q += j.qd * dt
		}
		if math.IsNaN(j.q) || math.IsInf(j.q, 0) {
			return &driver.DivergenceError{Body: k.bodies[j.child].spec.Name, Reason: fmt.Sprintf("joint %q coordinate %v", j.spec.Name, j.q)}
		}
		k.place(j)
	}
	k.time += dt
	for i, b := range k.bodies {
		vel := b.pos.Sub(prev[i]).Mul(1 / dt)
		b.acc = vel.Sub(b.vel).Mul(1 / dt)
		b.vel = vel
		if !geometry.Finite(b.pos) || !geometry.Finite(b.vel) {
			return &driver.DivergenceError{Body: b.spec.Name, Reason: "non-finite state"}
		}
	}
	return nil
}

func (k *Backend) place(j *joint) {
	c := k.bodies[j.child]
	if c.spec.Fixed {
		return
	}
	p := k.bodies[j.parent]
	pos, rot := j.childPos, j.childRot
	switch j.spec.Kind {
	case mechanism.Revolute:
		r := mgl64.QuatRotate(j.q, j.axis)
		pos = j.pivot.Add(r.Rotate(pos.Sub(j.pivot)))
		rot = r.Mul(rot)
	case mechanism.Prismatic, mechanism.LinearActuator:
		pos = pos.Add(j.axis.Mul(j.q))
	case mechanism.Distance:
		pos = pos.Add(j.axis.Mul(j.q - j.rest))
	}
	c.pos = geometry.Transform(p.pos, p.rot, pos)
	c.rot = geometry.Compose(p.rot, rot)
}

// BodyState ...
func (k *Backend) BodyState(h driver.BodyHandle) mechanism.BodyState {
	b := k.bodies[h]
	return mechanism.BodyState{Position: b.pos, Velocity: b.vel, Acceleration: b.acc, Orientation: b.rot}
}

// JointAnchor returns the anchor point carried by the moving side of the
// joint: BodyB for revolute and prismatic joints, BodyA for distance and
// linear actuator joints.
func (k *Backend) JointAnchor(h driver.JointHandle) geometry.Vec3 {
	j := k.joints[h]
	c := k.bodies[j.child]
	return geometry.Transform(c.pos, c.rot, j.anchorLocal)
}
